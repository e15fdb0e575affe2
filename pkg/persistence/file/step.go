package file

import (
	"context"
	"sort"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/persistence"
)

// StepRepository handles step documents. Steps are stored flat and indexed
// by scanning; the step count per journey is small enough that a secondary
// index is not worth a second file.
type StepRepository struct {
	store *store
}

func (r *StepRepository) GetByID(_ context.Context, id string) (*models.Step, error) {
	var step models.Step

	found, err := r.store.read(id, &step)
	if err != nil {
		return nil, &persistence.StepError{Op: "GetByID", StepID: id, Err: err}
	}

	if !found {
		return nil, &persistence.StepError{Op: "GetByID", StepID: id, Err: persistence.ErrStepNotFound}
	}

	return &step, nil
}

func (r *StepRepository) ListByJourney(ctx context.Context, journeyID string) ([]*models.Step, error) {
	ids, err := r.store.ids()
	if err != nil {
		return nil, &persistence.StepError{Op: "ListByJourney", JourneyID: journeyID, Err: err}
	}

	steps := make([]*models.Step, 0)

	for _, id := range ids {
		step, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if step.JourneyID == journeyID {
			steps = append(steps, step)
		}
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].CreatedAt.Before(steps[j].CreatedAt)
	})

	return steps, nil
}

func (r *StepRepository) Save(_ context.Context, step *models.Step) error {
	if err := r.store.write(step.ID, step); err != nil {
		return &persistence.StepError{Op: "Save", JourneyID: step.JourneyID, StepID: step.ID, Err: err}
	}

	return nil
}

func (r *StepRepository) Delete(_ context.Context, id string) error {
	if err := r.store.delete(id); err != nil {
		return &persistence.StepError{Op: "Delete", StepID: id, Err: err}
	}

	return nil
}
