package journey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/persistence"
)

// ConfigValidator checks a step config against its type's schema. The
// registry implements this; the store only needs the one method.
type ConfigValidator interface {
	ValidateConfig(stepType models.StepType, config map[string]any) error
}

// Store is the durable CRUD layer for steps and their edges. It is a dumb
// graph repository: it enforces referential integrity of a single connect
// (both ends exist, same journey) but leaves whole-graph consistency to
// the validator.
type Store struct {
	persistence persistence.Persistence
	configs     ConfigValidator
	logger      *slog.Logger
}

// NewStore creates a graph store. configs may be nil, in which case step
// configs are accepted unchecked.
func NewStore(persistence persistence.Persistence, configs ConfigValidator, logger *slog.Logger) *Store {
	return &Store{
		persistence: persistence,
		configs:     configs,
		logger:      logger.With("module", "graph_store"),
	}
}

// CreateStepInput carries the fields of a new step.
type CreateStepInput struct {
	JourneyID string         `json:"journey_id" validate:"required"`
	Name      string         `json:"name"       validate:"required,min=1"`
	Type      models.StepType `json:"type"      validate:"required"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// CreateStep adds a step with no edges to the journey's graph.
func (s *Store) CreateStep(ctx context.Context, input CreateStepInput) (*models.Step, error) {
	journeyModel, err := s.persistence.JourneyRepository().GetByID(ctx, input.JourneyID)
	if err != nil {
		return nil, err
	}

	if !journeyModel.IsEditable() {
		s.logger.WarnContext(ctx, "Editing graph outside draft/paused",
			"journey_id", journeyModel.ID, "status", journeyModel.Status)
	}

	if s.configs != nil {
		if err := s.configs.ValidateConfig(input.Type, input.Config); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidStepConfig, err)
		}
	}

	now := time.Now().UTC()
	step := &models.Step{
		ID:        uuid.New().String(),
		JourneyID: input.JourneyID,
		Name:      input.Name,
		Type:      input.Type,
		Config:    input.Config,
		PositionX: input.PositionX,
		PositionY: input.PositionY,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.persistence.StepRepository().Save(ctx, step); err != nil {
		return nil, err
	}

	return step, nil
}

// Connect overwrites the named edge on the source step so it points at the
// target. Both steps must exist and belong to the same journey.
func (s *Store) Connect(ctx context.Context, sourceID, targetID string, kind models.EdgeKind) error {
	source, err := s.persistence.StepRepository().GetByID(ctx, sourceID)
	if err != nil {
		return err
	}

	target, err := s.persistence.StepRepository().GetByID(ctx, targetID)
	if err != nil {
		return err
	}

	if source.JourneyID != target.JourneyID {
		return &persistence.StepError{Op: "Connect", JourneyID: source.JourneyID, StepID: sourceID, Err: ErrCrossJourneyEdge}
	}

	if err := source.SetEdge(kind, &target.ID); err != nil {
		return err
	}

	source.UpdatedAt = time.Now().UTC()

	return s.persistence.StepRepository().Save(ctx, source)
}

// Disconnect clears the named edge on the source step. Idempotent: clearing
// an empty slot succeeds.
func (s *Store) Disconnect(ctx context.Context, sourceID string, kind models.EdgeKind) error {
	source, err := s.persistence.StepRepository().GetByID(ctx, sourceID)
	if err != nil {
		return err
	}

	if err := source.SetEdge(kind, nil); err != nil {
		return err
	}

	source.UpdatedAt = time.Now().UTC()

	return s.persistence.StepRepository().Save(ctx, source)
}

// PositionUpdate moves one step in the editor canvas.
type PositionUpdate struct {
	StepID    string `json:"step_id" validate:"required"`
	PositionX int    `json:"position_x"`
	PositionY int    `json:"position_y"`
}

// UpdatePositions bulk-moves steps for editor layout. No business-rule
// impact; unknown step ids are reported, known ones are still moved.
func (s *Store) UpdatePositions(ctx context.Context, batch []PositionUpdate) error {
	for _, update := range batch {
		step, err := s.persistence.StepRepository().GetByID(ctx, update.StepID)
		if err != nil {
			return err
		}

		step.PositionX = update.PositionX
		step.PositionY = update.PositionY
		step.UpdatedAt = time.Now().UTC()

		if err := s.persistence.StepRepository().Save(ctx, step); err != nil {
			return err
		}
	}

	return nil
}

// DeleteStep removes the step. Edges elsewhere that pointed at it become
// dangling until the validator next runs; the store does not chase them.
func (s *Store) DeleteStep(ctx context.Context, id string) error {
	step, err := s.persistence.StepRepository().GetByID(ctx, id)
	if err != nil {
		return err
	}

	return s.persistence.StepRepository().Delete(ctx, step.ID)
}

// Steps returns the full step arena of one journey.
func (s *Store) Steps(ctx context.Context, journeyID string) ([]*models.Step, error) {
	return s.persistence.StepRepository().ListByJourney(ctx, journeyID)
}
