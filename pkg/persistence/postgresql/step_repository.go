package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/persistence"
)

// StepRepository handles journey step database operations.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const stepColumns = `id, journey_id, name, type, config, next_step_id, condition_true_step_id,
	condition_false_step_id, position_x, position_y, total_executions, total_success,
	total_failure, created_at, updated_at`

func (r *StepRepository) GetByID(ctx context.Context, id string) (*models.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM journey_steps WHERE id = $1`

	step, err := scanStep(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.StepError{Op: "GetByID", StepID: id, Err: persistence.ErrStepNotFound}
		}

		return nil, &persistence.StepError{Op: "GetByID", StepID: id, Err: err}
	}

	return step, nil
}

func (r *StepRepository) ListByJourney(ctx context.Context, journeyID string) ([]*models.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM journey_steps WHERE journey_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, journeyID)
	if err != nil {
		return nil, &persistence.StepError{Op: "ListByJourney", JourneyID: journeyID, Err: err}
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	steps := make([]*models.Step, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, &persistence.StepError{Op: "ListByJourney", JourneyID: journeyID, Err: err}
		}

		steps = append(steps, step)
	}

	if err := rows.Err(); err != nil {
		return nil, &persistence.StepError{Op: "ListByJourney", JourneyID: journeyID, Err: err}
	}

	return steps, nil
}

func (r *StepRepository) Save(ctx context.Context, step *models.Step) error {
	config, err := json.Marshal(step.Config)
	if err != nil {
		return &persistence.StepError{Op: "Save", JourneyID: step.JourneyID, StepID: step.ID, Err: fmt.Errorf("failed to marshal config: %w", err)}
	}

	query := `
		INSERT INTO journey_steps (` + stepColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			config = EXCLUDED.config,
			next_step_id = EXCLUDED.next_step_id,
			condition_true_step_id = EXCLUDED.condition_true_step_id,
			condition_false_step_id = EXCLUDED.condition_false_step_id,
			position_x = EXCLUDED.position_x,
			position_y = EXCLUDED.position_y,
			total_executions = EXCLUDED.total_executions,
			total_success = EXCLUDED.total_success,
			total_failure = EXCLUDED.total_failure,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.JourneyID,
		step.Name,
		step.Type,
		config,
		step.Next,
		step.ConditionTrue,
		step.ConditionFalse,
		step.PositionX,
		step.PositionY,
		step.TotalExecutions,
		step.TotalSuccess,
		step.TotalFailure,
		step.CreatedAt,
		step.UpdatedAt,
	)
	if err != nil {
		return &persistence.StepError{Op: "Save", JourneyID: step.JourneyID, StepID: step.ID, Err: err}
	}

	return nil
}

func (r *StepRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM journey_steps WHERE id = $1", id)
	if err != nil {
		return &persistence.StepError{Op: "Delete", StepID: id, Err: err}
	}

	return nil
}

func scanStep(row rowScanner) (*models.Step, error) {
	var (
		step   models.Step
		config []byte
	)

	err := row.Scan(
		&step.ID,
		&step.JourneyID,
		&step.Name,
		&step.Type,
		&config,
		&step.Next,
		&step.ConditionTrue,
		&step.ConditionFalse,
		&step.PositionX,
		&step.PositionY,
		&step.TotalExecutions,
		&step.TotalSuccess,
		&step.TotalFailure,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(config) > 0 {
		if err := json.Unmarshal(config, &step.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step config: %w", err)
		}
	}

	return &step, nil
}
