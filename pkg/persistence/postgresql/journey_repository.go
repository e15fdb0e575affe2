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

// JourneyRepository handles journey-related database operations.
type JourneyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const journeyColumns = `id, tenant_id, name, description, status, trigger_type, trigger_conditions,
	goal, re_enrollment, tags, total_enrolled, total_completed, total_goal_reached,
	created_at, updated_at, activated_at, archived_at`

func (r *JourneyRepository) GetByID(ctx context.Context, id string) (*models.Journey, error) {
	query := `SELECT ` + journeyColumns + ` FROM journeys WHERE id = $1`

	journey, err := scanJourney(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewJourneyError("GetByID", id, persistence.ErrJourneyNotFound)
		}

		return nil, persistence.NewJourneyError("GetByID", id, err)
	}

	return journey, nil
}

func (r *JourneyRepository) List(ctx context.Context, opts persistence.ListJourneysOptions) ([]*models.Journey, error) {
	query := `SELECT ` + journeyColumns + ` FROM journeys WHERE 1=1`
	args := make([]any, 0, 5)

	if opts.TenantID != "" {
		args = append(args, opts.TenantID)
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}

	if opts.Status != nil {
		args = append(args, string(*opts.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	if opts.TriggerType != nil {
		args = append(args, string(*opts.TriggerType))
		query += fmt.Sprintf(" AND trigger_type = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewJourneyError("List", "", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	journeys := make([]*models.Journey, 0)

	for rows.Next() {
		journey, err := scanJourney(rows)
		if err != nil {
			return nil, persistence.NewJourneyError("List", "", err)
		}

		journeys = append(journeys, journey)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewJourneyError("List", "", err)
	}

	return journeys, nil
}

func (r *JourneyRepository) Save(ctx context.Context, journey *models.Journey) error {
	triggerConditions, err := json.Marshal(journey.TriggerConditions)
	if err != nil {
		return persistence.NewJourneyError("Save", journey.ID, fmt.Errorf("failed to marshal trigger conditions: %w", err))
	}

	goal, err := json.Marshal(journey.Goal)
	if err != nil {
		return persistence.NewJourneyError("Save", journey.ID, fmt.Errorf("failed to marshal goal: %w", err))
	}

	reEnrollment, err := json.Marshal(journey.ReEnrollment)
	if err != nil {
		return persistence.NewJourneyError("Save", journey.ID, fmt.Errorf("failed to marshal re-enrollment policy: %w", err))
	}

	tags, err := json.Marshal(journey.Tags)
	if err != nil {
		return persistence.NewJourneyError("Save", journey.ID, fmt.Errorf("failed to marshal tags: %w", err))
	}

	query := `
		INSERT INTO journeys (` + journeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			trigger_type = EXCLUDED.trigger_type,
			trigger_conditions = EXCLUDED.trigger_conditions,
			goal = EXCLUDED.goal,
			re_enrollment = EXCLUDED.re_enrollment,
			tags = EXCLUDED.tags,
			total_enrolled = EXCLUDED.total_enrolled,
			total_completed = EXCLUDED.total_completed,
			total_goal_reached = EXCLUDED.total_goal_reached,
			updated_at = EXCLUDED.updated_at,
			activated_at = EXCLUDED.activated_at,
			archived_at = EXCLUDED.archived_at
	`

	_, err = r.db.ExecContext(ctx, query,
		journey.ID,
		journey.TenantID,
		journey.Name,
		journey.Description,
		journey.Status,
		journey.TriggerType,
		triggerConditions,
		goal,
		reEnrollment,
		tags,
		journey.TotalEnrolled,
		journey.TotalCompleted,
		journey.TotalGoalReached,
		journey.CreatedAt,
		journey.UpdatedAt,
		journey.ActivatedAt,
		journey.ArchivedAt,
	)
	if err != nil {
		return persistence.NewJourneyError("Save", journey.ID, err)
	}

	return nil
}

// Delete removes the journey; steps, enrollments and executions cascade via
// foreign keys.
func (r *JourneyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM journeys WHERE id = $1", id)
	if err != nil {
		return persistence.NewJourneyError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewJourneyError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewJourneyError("Delete", id, persistence.ErrJourneyNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJourney(row rowScanner) (*models.Journey, error) {
	var (
		journey           models.Journey
		triggerConditions []byte
		goal              []byte
		reEnrollment      []byte
		tags              []byte
	)

	err := row.Scan(
		&journey.ID,
		&journey.TenantID,
		&journey.Name,
		&journey.Description,
		&journey.Status,
		&journey.TriggerType,
		&triggerConditions,
		&goal,
		&reEnrollment,
		&tags,
		&journey.TotalEnrolled,
		&journey.TotalCompleted,
		&journey.TotalGoalReached,
		&journey.CreatedAt,
		&journey.UpdatedAt,
		&journey.ActivatedAt,
		&journey.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(triggerConditions) > 0 {
		if err := json.Unmarshal(triggerConditions, &journey.TriggerConditions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger conditions: %w", err)
		}
	}

	if len(goal) > 0 && string(goal) != "null" {
		if err := json.Unmarshal(goal, &journey.Goal); err != nil {
			return nil, fmt.Errorf("failed to unmarshal goal: %w", err)
		}
	}

	if len(reEnrollment) > 0 {
		if err := json.Unmarshal(reEnrollment, &journey.ReEnrollment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal re-enrollment policy: %w", err)
		}
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &journey.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	return &journey, nil
}
