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

// EnrollmentRepository handles enrollment database operations.
type EnrollmentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const enrollmentColumns = `id, journey_id, contact_id, tenant_id, status, current_step_id, context,
	source, exit_reason, last_error, steps_completed, emails_sent, emails_opened, emails_clicked,
	enrolled_at, started_at, completed_at, exited_at, goal_reached_at, failed_at`

func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM journey_enrollments WHERE id = $1`

	enrollment, err := scanEnrollment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrEnrollmentNotFound
		}

		return nil, fmt.Errorf("failed to get enrollment %s: %w", id, err)
	}

	return enrollment, nil
}

func (r *EnrollmentRepository) ListByJourney(ctx context.Context, journeyID string) ([]*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM journey_enrollments WHERE journey_id = $1 ORDER BY enrolled_at DESC`

	return r.queryEnrollments(ctx, query, journeyID)
}

func (r *EnrollmentRepository) ListByContact(ctx context.Context, journeyID, contactID string) ([]*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM journey_enrollments
		WHERE journey_id = $1 AND contact_id = $2 ORDER BY enrolled_at DESC`

	return r.queryEnrollments(ctx, query, journeyID, contactID)
}

func (r *EnrollmentRepository) Save(ctx context.Context, enrollment *models.Enrollment) error {
	contextJSON, err := json.Marshal(enrollment.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal enrollment context: %w", err)
	}

	query := `
		INSERT INTO journey_enrollments (` + enrollmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_step_id = EXCLUDED.current_step_id,
			context = EXCLUDED.context,
			exit_reason = EXCLUDED.exit_reason,
			last_error = EXCLUDED.last_error,
			steps_completed = EXCLUDED.steps_completed,
			emails_sent = EXCLUDED.emails_sent,
			emails_opened = EXCLUDED.emails_opened,
			emails_clicked = EXCLUDED.emails_clicked,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			exited_at = EXCLUDED.exited_at,
			goal_reached_at = EXCLUDED.goal_reached_at,
			failed_at = EXCLUDED.failed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		enrollment.ID,
		enrollment.JourneyID,
		enrollment.ContactID,
		enrollment.TenantID,
		enrollment.Status,
		enrollment.CurrentStepID,
		contextJSON,
		enrollment.Source,
		enrollment.ExitReason,
		enrollment.LastError,
		enrollment.StepsCompleted,
		enrollment.EmailsSent,
		enrollment.EmailsOpened,
		enrollment.EmailsClicked,
		enrollment.EnrolledAt,
		enrollment.StartedAt,
		enrollment.CompletedAt,
		enrollment.ExitedAt,
		enrollment.GoalReachedAt,
		enrollment.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save enrollment %s: %w", enrollment.ID, err)
	}

	return nil
}

func (r *EnrollmentRepository) queryEnrollments(ctx context.Context, query string, args ...any) ([]*models.Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	enrollments := make([]*models.Enrollment, 0)

	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}

		enrollments = append(enrollments, enrollment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enrollments: %w", err)
	}

	return enrollments, nil
}

func scanEnrollment(row rowScanner) (*models.Enrollment, error) {
	var (
		enrollment  models.Enrollment
		contextJSON []byte
	)

	err := row.Scan(
		&enrollment.ID,
		&enrollment.JourneyID,
		&enrollment.ContactID,
		&enrollment.TenantID,
		&enrollment.Status,
		&enrollment.CurrentStepID,
		&contextJSON,
		&enrollment.Source,
		&enrollment.ExitReason,
		&enrollment.LastError,
		&enrollment.StepsCompleted,
		&enrollment.EmailsSent,
		&enrollment.EmailsOpened,
		&enrollment.EmailsClicked,
		&enrollment.EnrolledAt,
		&enrollment.StartedAt,
		&enrollment.CompletedAt,
		&enrollment.ExitedAt,
		&enrollment.GoalReachedAt,
		&enrollment.FailedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &enrollment.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal enrollment context: %w", err)
		}
	}

	return &enrollment, nil
}
