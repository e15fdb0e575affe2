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

// LifecyclePolicy holds the configurable edges of the lifecycle rules.
type LifecyclePolicy struct {
	// ExitEnrollmentsOnArchive exits in-flight enrollments when the
	// journey is archived. Default off: archiving stops new admissions,
	// not runs already in progress.
	ExitEnrollmentsOnArchive bool
}

// Manager owns journey definition CRUD and the draft → active → paused →
// archived status machine. Activation is gated on the graph validator.
type Manager struct {
	persistence persistence.Persistence
	policy      LifecyclePolicy
	logger      *slog.Logger
}

// NewManager creates a definition lifecycle manager.
func NewManager(persistence persistence.Persistence, policy LifecyclePolicy, logger *slog.Logger) *Manager {
	return &Manager{
		persistence: persistence,
		policy:      policy,
		logger:      logger.With("module", "journey_lifecycle"),
	}
}

// CreateJourneyInput carries the fields of a new definition.
type CreateJourneyInput struct {
	TenantID          string                    `json:"tenant_id"    validate:"required"`
	Name              string                    `json:"name"         validate:"required,min=3"`
	Description       string                    `json:"description"`
	TriggerType       models.TriggerType        `json:"trigger_type"`
	TriggerConditions map[string]any            `json:"trigger_conditions,omitempty"`
	Goal              *models.Goal              `json:"goal,omitempty"`
	ReEnrollment      models.ReEnrollmentPolicy `json:"re_enrollment"`
	Tags              []string                  `json:"tags,omitempty"`
}

// Create persists a new definition in draft status.
func (m *Manager) Create(ctx context.Context, input CreateJourneyInput) (*models.Journey, error) {
	now := time.Now().UTC()

	triggerType := input.TriggerType
	if triggerType == "" {
		triggerType = models.TriggerManual
	}

	journeyModel := &models.Journey{
		ID:                uuid.New().String(),
		TenantID:          input.TenantID,
		Name:              input.Name,
		Description:       input.Description,
		Status:            models.JourneyStatusDraft,
		TriggerType:       triggerType,
		TriggerConditions: input.TriggerConditions,
		Goal:              input.Goal,
		ReEnrollment:      input.ReEnrollment,
		Tags:              input.Tags,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := m.persistence.JourneyRepository().Save(ctx, journeyModel); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Created journey", "journey_id", journeyModel.ID, "name", journeyModel.Name)

	return journeyModel, nil
}

// UpdateJourneyInput carries a partial definition update. Nil fields are
// left untouched.
type UpdateJourneyInput struct {
	Name              *string                    `json:"name,omitempty" validate:"omitempty,min=3"`
	Description       *string                    `json:"description,omitempty"`
	TriggerType       *models.TriggerType        `json:"trigger_type,omitempty"`
	TriggerConditions map[string]any             `json:"trigger_conditions,omitempty"`
	Goal              *models.Goal               `json:"goal,omitempty"`
	ReEnrollment      *models.ReEnrollmentPolicy `json:"re_enrollment,omitempty"`
	Tags              []string                   `json:"tags,omitempty"`
}

// Update applies a partial update to a definition. Archived journeys are
// frozen; every other status accepts metadata changes.
func (m *Manager) Update(ctx context.Context, journeyID string, input UpdateJourneyInput) (*models.Journey, error) {
	journeyModel, err := m.persistence.JourneyRepository().GetByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	if journeyModel.Status == models.JourneyStatusArchived {
		return nil, ErrJourneyArchived
	}

	if input.Name != nil {
		journeyModel.Name = *input.Name
	}

	if input.Description != nil {
		journeyModel.Description = *input.Description
	}

	if input.TriggerType != nil {
		journeyModel.TriggerType = *input.TriggerType
	}

	if input.TriggerConditions != nil {
		journeyModel.TriggerConditions = input.TriggerConditions
	}

	if input.Goal != nil {
		journeyModel.Goal = input.Goal
	}

	if input.ReEnrollment != nil {
		journeyModel.ReEnrollment = *input.ReEnrollment
	}

	if input.Tags != nil {
		journeyModel.Tags = input.Tags
	}

	journeyModel.UpdatedAt = time.Now().UTC()

	if err := m.persistence.JourneyRepository().Save(ctx, journeyModel); err != nil {
		return nil, err
	}

	return journeyModel, nil
}

// Get fetches one definition.
func (m *Manager) Get(ctx context.Context, id string) (*models.Journey, error) {
	return m.persistence.JourneyRepository().GetByID(ctx, id)
}

// List fetches definitions with filtering and pagination.
func (m *Manager) List(ctx context.Context, opts persistence.ListJourneysOptions) ([]*models.Journey, error) {
	return m.persistence.JourneyRepository().List(ctx, opts)
}

// Delete removes a definition and cascades to steps, enrollments and the
// execution log.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.persistence.JourneyRepository().Delete(ctx, id)
}

// ValidateGraph runs the validator over the journey's current graph.
func (m *Manager) ValidateGraph(ctx context.Context, journeyID string) (ValidationResult, error) {
	if _, err := m.persistence.JourneyRepository().GetByID(ctx, journeyID); err != nil {
		return ValidationResult{}, err
	}

	steps, err := m.persistence.StepRepository().ListByJourney(ctx, journeyID)
	if err != nil {
		return ValidationResult{}, err
	}

	return Validate(steps), nil
}

// Activate moves the journey to active, gated on a passing validation. On
// an invalid graph the status is left untouched and the full error list is
// returned inside an InvalidGraphError.
func (m *Manager) Activate(ctx context.Context, journeyID string) (*models.Journey, error) {
	journeyModel, err := m.persistence.JourneyRepository().GetByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	if !journeyModel.CanTransitionTo(models.JourneyStatusActive) {
		return nil, fmt.Errorf("%w: %s -> active", ErrInvalidTransition, journeyModel.Status)
	}

	result, err := m.ValidateGraph(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	if !result.Valid {
		return nil, &InvalidGraphError{JourneyID: journeyID, Errors: result.Errors}
	}

	now := time.Now().UTC()
	journeyModel.Status = models.JourneyStatusActive
	journeyModel.ActivatedAt = &now
	journeyModel.UpdatedAt = now

	if err := m.persistence.JourneyRepository().Save(ctx, journeyModel); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Activated journey", "journey_id", journeyID)

	return journeyModel, nil
}

// Pause halts an active journey. Paused journeys reject new enrollments
// and may be edited or resumed.
func (m *Manager) Pause(ctx context.Context, journeyID string) (*models.Journey, error) {
	return m.transition(ctx, journeyID, models.JourneyStatusActive, models.JourneyStatusPaused)
}

// Resume reactivates a paused journey. The graph is revalidated because
// paused journeys are editable.
func (m *Manager) Resume(ctx context.Context, journeyID string) (*models.Journey, error) {
	journeyModel, err := m.persistence.JourneyRepository().GetByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	if journeyModel.Status != models.JourneyStatusPaused {
		return nil, fmt.Errorf("%w: %s -> active", ErrInvalidTransition, journeyModel.Status)
	}

	result, err := m.ValidateGraph(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	if !result.Valid {
		return nil, &InvalidGraphError{JourneyID: journeyID, Errors: result.Errors}
	}

	journeyModel.Status = models.JourneyStatusActive
	journeyModel.UpdatedAt = time.Now().UTC()

	if err := m.persistence.JourneyRepository().Save(ctx, journeyModel); err != nil {
		return nil, err
	}

	return journeyModel, nil
}

// Archive terminally retires the journey. In-flight enrollments keep
// running unless the policy says otherwise; archiving stops admissions,
// not runs.
func (m *Manager) Archive(ctx context.Context, journeyID string) (*models.Journey, error) {
	journeyModel, err := m.persistence.JourneyRepository().GetByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	if !journeyModel.CanTransitionTo(models.JourneyStatusArchived) {
		return nil, fmt.Errorf("%w: %s -> archived", ErrInvalidTransition, journeyModel.Status)
	}

	now := time.Now().UTC()
	journeyModel.Status = models.JourneyStatusArchived
	journeyModel.ArchivedAt = &now
	journeyModel.UpdatedAt = now

	if err := m.persistence.JourneyRepository().Save(ctx, journeyModel); err != nil {
		return nil, err
	}

	if m.policy.ExitEnrollmentsOnArchive {
		if err := m.exitActiveEnrollments(ctx, journeyID); err != nil {
			return nil, err
		}
	}

	m.logger.InfoContext(ctx, "Archived journey", "journey_id", journeyID,
		"exited_enrollments", m.policy.ExitEnrollmentsOnArchive)

	return journeyModel, nil
}

// Clone deep-copies the definition and its whole graph into a fresh draft
// with zeroed counters. Two passes: create the new steps under remapped
// ids, then rewrite every edge through the id map, preserving topology
// exactly.
func (m *Manager) Clone(ctx context.Context, journeyID string) (*models.Journey, error) {
	original, err := m.persistence.JourneyRepository().GetByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	steps, err := m.persistence.StepRepository().ListByJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	clone := &models.Journey{
		ID:                uuid.New().String(),
		TenantID:          original.TenantID,
		Name:              original.Name + " (copy)",
		Description:       original.Description,
		Status:            models.JourneyStatusDraft,
		TriggerType:       original.TriggerType,
		TriggerConditions: copyMap(original.TriggerConditions),
		Goal:              copyGoal(original.Goal),
		ReEnrollment:      original.ReEnrollment,
		Tags:              append([]string(nil), original.Tags...),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := m.persistence.JourneyRepository().Save(ctx, clone); err != nil {
		return nil, err
	}

	// Pass one: create the remapped steps without edges.
	idMap := make(map[string]string, len(steps))
	cloned := make([]*models.Step, 0, len(steps))

	for _, step := range steps {
		newStep := &models.Step{
			ID:        uuid.New().String(),
			JourneyID: clone.ID,
			Name:      step.Name,
			Type:      step.Type,
			Config:    copyMap(step.Config),
			PositionX: step.PositionX,
			PositionY: step.PositionY,
			CreatedAt: now,
			UpdatedAt: now,
		}

		idMap[step.ID] = newStep.ID
		cloned = append(cloned, newStep)
	}

	// Pass two: rewrite edges through the id map.
	for i, step := range steps {
		cloned[i].Next = remapEdge(step.Next, idMap)
		cloned[i].ConditionTrue = remapEdge(step.ConditionTrue, idMap)
		cloned[i].ConditionFalse = remapEdge(step.ConditionFalse, idMap)

		if err := m.persistence.StepRepository().Save(ctx, cloned[i]); err != nil {
			return nil, err
		}
	}

	m.logger.InfoContext(ctx, "Cloned journey", "journey_id", journeyID,
		"clone_id", clone.ID, "steps", len(cloned))

	return clone, nil
}

func (m *Manager) transition(ctx context.Context, journeyID string, from, to models.JourneyStatus) (*models.Journey, error) {
	journeyModel, err := m.persistence.JourneyRepository().GetByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	if journeyModel.Status != from || !journeyModel.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, journeyModel.Status, to)
	}

	journeyModel.Status = to
	journeyModel.UpdatedAt = time.Now().UTC()

	if err := m.persistence.JourneyRepository().Save(ctx, journeyModel); err != nil {
		return nil, err
	}

	return journeyModel, nil
}

func (m *Manager) exitActiveEnrollments(ctx context.Context, journeyID string) error {
	enrollments, err := m.persistence.EnrollmentRepository().ListByJourney(ctx, journeyID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	for _, enrollment := range enrollments {
		if enrollment.IsTerminal() {
			continue
		}

		enrollment.Status = models.EnrollmentStatusExited
		enrollment.ExitReason = "journey archived"
		enrollment.ExitedAt = &now
		enrollment.CurrentStepID = nil

		if err := m.persistence.EnrollmentRepository().Save(ctx, enrollment); err != nil {
			return err
		}
	}

	return nil
}

func remapEdge(edge *string, idMap map[string]string) *string {
	if edge == nil {
		return nil
	}

	if mapped, ok := idMap[*edge]; ok {
		return &mapped
	}

	// Dangling edge in the original: drop it rather than point the clone
	// at the original's step.
	return nil
}

func copyMap(original map[string]any) map[string]any {
	if original == nil {
		return nil
	}

	result := make(map[string]any, len(original))
	for k, v := range original {
		result[k] = v
	}

	return result
}

func copyGoal(goal *models.Goal) *models.Goal {
	if goal == nil {
		return nil
	}

	return &models.Goal{
		Type:       goal.Type,
		Conditions: copyMap(goal.Conditions),
	}
}
