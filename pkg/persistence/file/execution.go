package file

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/persistence"
)

// ExecutionRepository handles the step execution log. The claim CAS is
// implemented under the store lock: read, check due, flip to executing and
// write back before anyone else can observe the row.
type ExecutionRepository struct {
	store *store
	mu    *sync.Mutex
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.StepExecution, error) {
	var execution models.StepExecution

	found, err := r.store.read(id, &execution)
	if err != nil {
		return nil, &persistence.ExecutionError{Op: "GetByID", ExecutionID: id, Err: err}
	}

	if !found {
		return nil, &persistence.ExecutionError{Op: "GetByID", ExecutionID: id, Err: persistence.ErrExecutionNotFound}
	}

	return &execution, nil
}

func (r *ExecutionRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]*models.StepExecution, error) {
	executions, err := r.list(ctx, func(x *models.StepExecution) bool {
		return x.EnrollmentID == enrollmentID
	})
	if err != nil {
		return nil, &persistence.ExecutionError{Op: "ListByEnrollment", EnrollmentID: enrollmentID, Err: err}
	}

	return executions, nil
}

func (r *ExecutionRepository) OpenByEnrollment(ctx context.Context, enrollmentID string) (*models.StepExecution, error) {
	executions, err := r.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	for _, execution := range executions {
		if !execution.IsTerminal() {
			return execution, nil
		}
	}

	return nil, nil
}

func (r *ExecutionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.StepExecution, error) {
	executions, err := r.list(ctx, func(x *models.StepExecution) bool {
		return x.IsDue(now)
	})
	if err != nil {
		return nil, &persistence.ExecutionError{Op: "ListDue", Err: err}
	}

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

func (r *ExecutionRepository) Save(_ context.Context, execution *models.StepExecution) error {
	if err := r.store.write(execution.ID, execution); err != nil {
		return &persistence.ExecutionError{Op: "Save", EnrollmentID: execution.EnrollmentID, ExecutionID: execution.ID, Err: err}
	}

	return nil
}

func (r *ExecutionRepository) Claim(_ context.Context, id string, now time.Time) (*models.StepExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var execution models.StepExecution

	found, err := r.store.readLocked(id, &execution)
	if err != nil {
		return nil, &persistence.ExecutionError{Op: "Claim", ExecutionID: id, Err: err}
	}

	if !found {
		return nil, &persistence.ExecutionError{Op: "Claim", ExecutionID: id, Err: persistence.ErrExecutionNotFound}
	}

	if !execution.IsDue(now) {
		return nil, &persistence.ExecutionError{Op: "Claim", ExecutionID: id, Err: persistence.ErrExecutionNotClaimable}
	}

	execution.Status = models.ExecutionStatusExecuting
	execution.StartedAt = &now

	if err := r.store.writeLocked(id, &execution); err != nil {
		return nil, &persistence.ExecutionError{Op: "Claim", ExecutionID: id, Err: err}
	}

	return &execution, nil
}

func (r *ExecutionRepository) list(ctx context.Context, keep func(*models.StepExecution) bool) ([]*models.StepExecution, error) {
	ids, err := r.store.ids()
	if err != nil {
		return nil, err
	}

	executions := make([]*models.StepExecution, 0)

	for _, id := range ids {
		execution, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if keep(execution) {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.Before(executions[j].CreatedAt)
	})

	return executions, nil
}
