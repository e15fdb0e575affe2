package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/persistence"
)

// ExecutionRepository handles the step execution log.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const executionColumns = `id, enrollment_id, step_id, status, scheduled_for, result, error_message,
	retry_count, decision_made, decision_reason, provider_message_id, opened_at, clicked_at,
	created_at, started_at, finished_at`

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.StepExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM step_executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ExecutionError{Op: "GetByID", ExecutionID: id, Err: persistence.ErrExecutionNotFound}
		}

		return nil, &persistence.ExecutionError{Op: "GetByID", ExecutionID: id, Err: err}
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]*models.StepExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM step_executions WHERE enrollment_id = $1 ORDER BY created_at`

	return r.queryExecutions(ctx, query, enrollmentID)
}

func (r *ExecutionRepository) OpenByEnrollment(ctx context.Context, enrollmentID string) (*models.StepExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM step_executions
		WHERE enrollment_id = $1 AND status NOT IN ('executed', 'failed', 'skipped')
		ORDER BY created_at DESC LIMIT 1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, enrollmentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, &persistence.ExecutionError{Op: "OpenByEnrollment", EnrollmentID: enrollmentID, Err: err}
	}

	return execution, nil
}

func (r *ExecutionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.StepExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM step_executions
		WHERE status = 'pending' OR (status = 'scheduled' AND scheduled_for <= $1)
		ORDER BY created_at LIMIT $2`

	if limit <= 0 {
		limit = 100
	}

	return r.queryExecutions(ctx, query, now, limit)
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.StepExecution) error {
	result, err := json.Marshal(execution.Result)
	if err != nil {
		return &persistence.ExecutionError{Op: "Save", ExecutionID: execution.ID, Err: fmt.Errorf("failed to marshal result: %w", err)}
	}

	query := `
		INSERT INTO step_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			scheduled_for = EXCLUDED.scheduled_for,
			result = EXCLUDED.result,
			error_message = EXCLUDED.error_message,
			retry_count = EXCLUDED.retry_count,
			decision_made = EXCLUDED.decision_made,
			decision_reason = EXCLUDED.decision_reason,
			provider_message_id = EXCLUDED.provider_message_id,
			opened_at = EXCLUDED.opened_at,
			clicked_at = EXCLUDED.clicked_at,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.EnrollmentID,
		execution.StepID,
		execution.Status,
		execution.ScheduledFor,
		result,
		execution.ErrorMessage,
		execution.RetryCount,
		execution.DecisionMade,
		execution.DecisionReason,
		execution.ProviderMessageID,
		execution.OpenedAt,
		execution.ClickedAt,
		execution.CreatedAt,
		execution.StartedAt,
		execution.FinishedAt,
	)
	if err != nil {
		return &persistence.ExecutionError{Op: "Save", EnrollmentID: execution.EnrollmentID, ExecutionID: execution.ID, Err: err}
	}

	return nil
}

// Claim flips a due execution to executing in a single UPDATE guarded by
// the due predicate, so two runners can never claim the same row.
func (r *ExecutionRepository) Claim(ctx context.Context, id string, now time.Time) (*models.StepExecution, error) {
	query := `
		UPDATE step_executions
		SET status = 'executing', started_at = $2
		WHERE id = $1
			AND (status = 'pending' OR (status = 'scheduled' AND scheduled_for <= $2))
		RETURNING ` + executionColumns

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ExecutionError{Op: "Claim", ExecutionID: id, Err: persistence.ErrExecutionNotClaimable}
		}

		return nil, &persistence.ExecutionError{Op: "Claim", ExecutionID: id, Err: err}
	}

	return execution, nil
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.StepExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	executions := make([]*models.StepExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row rowScanner) (*models.StepExecution, error) {
	var (
		execution models.StepExecution
		result    []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.EnrollmentID,
		&execution.StepID,
		&execution.Status,
		&execution.ScheduledFor,
		&result,
		&execution.ErrorMessage,
		&execution.RetryCount,
		&execution.DecisionMade,
		&execution.DecisionReason,
		&execution.ProviderMessageID,
		&execution.OpenedAt,
		&execution.ClickedAt,
		&execution.CreatedAt,
		&execution.StartedAt,
		&execution.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(result) > 0 && string(result) != "null" {
		if err := json.Unmarshal(result, &execution.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution result: %w", err)
		}
	}

	return &execution, nil
}
