package file

import (
	"context"
	"sort"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/persistence"
)

// EnrollmentRepository handles enrollment documents.
type EnrollmentRepository struct {
	store *store
}

func (r *EnrollmentRepository) GetByID(_ context.Context, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment

	found, err := r.store.read(id, &enrollment)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrEnrollmentNotFound
	}

	return &enrollment, nil
}

func (r *EnrollmentRepository) ListByJourney(ctx context.Context, journeyID string) ([]*models.Enrollment, error) {
	return r.list(ctx, func(e *models.Enrollment) bool {
		return e.JourneyID == journeyID
	})
}

func (r *EnrollmentRepository) ListByContact(ctx context.Context, journeyID, contactID string) ([]*models.Enrollment, error) {
	return r.list(ctx, func(e *models.Enrollment) bool {
		return e.JourneyID == journeyID && e.ContactID == contactID
	})
}

func (r *EnrollmentRepository) Save(_ context.Context, enrollment *models.Enrollment) error {
	return r.store.write(enrollment.ID, enrollment)
}

func (r *EnrollmentRepository) list(ctx context.Context, keep func(*models.Enrollment) bool) ([]*models.Enrollment, error) {
	ids, err := r.store.ids()
	if err != nil {
		return nil, err
	}

	enrollments := make([]*models.Enrollment, 0)

	for _, id := range ids {
		enrollment, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if keep(enrollment) {
			enrollments = append(enrollments, enrollment)
		}
	}

	// Newest first: re-enrollment cooldown checks look at the most recent row.
	sort.Slice(enrollments, func(i, j int) bool {
		return enrollments[i].EnrolledAt.After(enrollments[j].EnrolledAt)
	})

	return enrollments, nil
}
