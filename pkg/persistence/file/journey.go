package file

import (
	"context"
	"sort"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/persistence"
)

// JourneyRepository handles journey definition documents.
type JourneyRepository struct {
	store       *store
	steps       *StepRepository
	enrollments *EnrollmentRepository
	executions  *ExecutionRepository
}

func (r *JourneyRepository) GetByID(_ context.Context, id string) (*models.Journey, error) {
	var journey models.Journey

	found, err := r.store.read(id, &journey)
	if err != nil {
		return nil, persistence.NewJourneyError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewJourneyError("GetByID", id, persistence.ErrJourneyNotFound)
	}

	return &journey, nil
}

func (r *JourneyRepository) List(ctx context.Context, opts persistence.ListJourneysOptions) ([]*models.Journey, error) {
	ids, err := r.store.ids()
	if err != nil {
		return nil, persistence.NewJourneyError("List", "", err)
	}

	journeys := make([]*models.Journey, 0, len(ids))

	for _, id := range ids {
		journey, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if opts.TenantID != "" && journey.TenantID != opts.TenantID {
			continue
		}

		if opts.Status != nil && journey.Status != *opts.Status {
			continue
		}

		if opts.TriggerType != nil && journey.TriggerType != *opts.TriggerType {
			continue
		}

		journeys = append(journeys, journey)
	}

	sort.Slice(journeys, func(i, j int) bool {
		return journeys[i].CreatedAt.After(journeys[j].CreatedAt)
	})

	return paginate(journeys, opts.Offset, opts.Limit), nil
}

func (r *JourneyRepository) Save(_ context.Context, journey *models.Journey) error {
	if err := r.store.write(journey.ID, journey); err != nil {
		return persistence.NewJourneyError("Save", journey.ID, err)
	}

	return nil
}

// Delete removes the journey document and cascades to its steps,
// enrollments and their executions.
func (r *JourneyRepository) Delete(ctx context.Context, id string) error {
	steps, err := r.steps.ListByJourney(ctx, id)
	if err != nil {
		return persistence.NewJourneyError("Delete", id, err)
	}

	for _, step := range steps {
		if err := r.steps.Delete(ctx, step.ID); err != nil {
			return persistence.NewJourneyError("Delete", id, err)
		}
	}

	enrollments, err := r.enrollments.ListByJourney(ctx, id)
	if err != nil {
		return persistence.NewJourneyError("Delete", id, err)
	}

	for _, enrollment := range enrollments {
		executions, err := r.executions.ListByEnrollment(ctx, enrollment.ID)
		if err != nil {
			return persistence.NewJourneyError("Delete", id, err)
		}

		for _, execution := range executions {
			if err := r.executions.store.delete(execution.ID); err != nil {
				return persistence.NewJourneyError("Delete", id, err)
			}
		}

		if err := r.enrollments.store.delete(enrollment.ID); err != nil {
			return persistence.NewJourneyError("Delete", id, err)
		}
	}

	if err := r.store.delete(id); err != nil {
		return persistence.NewJourneyError("Delete", id, err)
	}

	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if limit <= 0 {
		limit = len(items)
	}

	if offset >= len(items) {
		return make([]T, 0)
	}

	end := offset + limit
	if end > len(items) {
		end = len(items)
	}

	return items[offset:end]
}
