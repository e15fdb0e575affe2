// Package enrollment owns admission into journeys and the enrollment
// status machine. Every status change flows through the controller so the
// invariants (one live run per contact, at most one open execution) hold
// in one place.
package enrollment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/enroutehq/enroute/pkg/eventbus"
	"github.com/enroutehq/enroute/pkg/events"
	"github.com/enroutehq/enroute/pkg/journey"
	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/persistence"
)

// Controller admits contacts into journeys and drives enrollments through
// their lifecycle.
type Controller struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewController creates an enrollment controller. The publisher may be nil
// in tests that do not care about events.
func NewController(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Controller {
	return &Controller{
		persistence: persistence,
		publisher:   publisher,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "enrollment"),
	}
}

// EnrollInput carries one admission request.
type EnrollInput struct {
	JourneyID string         `validate:"required"`
	ContactID string         `validate:"required"`
	TenantID  string         `validate:"required"`
	Source    string         `validate:"omitempty"`
	Context   map[string]any `validate:"omitempty"`
}

// Enroll admits a contact into an active journey: it enforces the journey's
// re-enrollment policy, creates the enrollment at the graph's entry step and
// opens the first pending execution.
func (c *Controller) Enroll(ctx context.Context, input EnrollInput) (*models.Enrollment, error) {
	if err := c.validator.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid enrollment input: %w", err)
	}

	journeyModel, err := c.persistence.JourneyRepository().GetByID(ctx, input.JourneyID)
	if err != nil {
		return nil, err
	}

	if journeyModel.TenantID != input.TenantID {
		return nil, ErrTenantMismatch
	}

	if !journeyModel.AcceptsEnrollments() {
		return nil, fmt.Errorf("%w: status %s", ErrJourneyNotActive, journeyModel.Status)
	}

	history, err := c.persistence.EnrollmentRepository().ListByContact(ctx, input.JourneyID, input.ContactID)
	if err != nil {
		return nil, err
	}

	if err := checkAdmission(journeyModel.ReEnrollment, history, time.Now().UTC()); err != nil {
		return nil, err
	}

	steps, err := c.persistence.StepRepository().ListByJourney(ctx, input.JourneyID)
	if err != nil {
		return nil, err
	}

	entry := journey.EntryStep(steps)
	if entry == nil {
		return nil, fmt.Errorf("journey %s has no entry step", input.JourneyID)
	}

	now := time.Now().UTC()
	enrollmentModel := &models.Enrollment{
		ID:            uuid.New().String(),
		JourneyID:     input.JourneyID,
		ContactID:     input.ContactID,
		TenantID:      input.TenantID,
		Status:        models.EnrollmentStatusActive,
		CurrentStepID: &entry.ID,
		Context:       input.Context,
		Source:        input.Source,
		EnrolledAt:    now,
		StartedAt:     &now,
	}

	if err := c.persistence.EnrollmentRepository().Save(ctx, enrollmentModel); err != nil {
		return nil, err
	}

	execution := &models.StepExecution{
		ID:           uuid.New().String(),
		EnrollmentID: enrollmentModel.ID,
		StepID:       entry.ID,
		Status:       models.ExecutionStatusPending,
		CreatedAt:    now,
	}

	if err := c.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return nil, err
	}

	journeyModel.TotalEnrolled++
	if err := c.persistence.JourneyRepository().Save(ctx, journeyModel); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Enrolled contact",
		"journey_id", input.JourneyID, "contact_id", input.ContactID,
		"enrollment_id", enrollmentModel.ID, "entry_step_id", entry.ID)

	c.publish(ctx, journeyModel, events.EnrollmentCreated{
		BaseEvent:    c.baseEvent(events.EnrollmentCreatedEvent, journeyModel),
		EnrollmentID: enrollmentModel.ID,
		ContactID:    input.ContactID,
		Source:       input.Source,
		EntryStepID:  entry.ID,
	})

	return enrollmentModel, nil
}

// Exit removes the contact from the journey. Idempotent: exiting a terminal
// enrollment is a no-op. Any open execution is skipped so no side effect
// fires after the exit.
func (c *Controller) Exit(ctx context.Context, enrollmentID, reason string) (*models.Enrollment, error) {
	enrollmentModel, err := c.persistence.EnrollmentRepository().GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	if enrollmentModel.IsTerminal() {
		return enrollmentModel, nil
	}

	now := time.Now().UTC()
	enrollmentModel.Status = models.EnrollmentStatusExited
	enrollmentModel.ExitReason = reason
	enrollmentModel.ExitedAt = &now
	enrollmentModel.CurrentStepID = nil

	if err := c.persistence.EnrollmentRepository().Save(ctx, enrollmentModel); err != nil {
		return nil, err
	}

	if err := c.skipOpenExecution(ctx, enrollmentID); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Exited enrollment",
		"enrollment_id", enrollmentID, "reason", reason)

	c.publishForJourney(ctx, enrollmentModel.JourneyID, events.EnrollmentExited{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentExitedEvent, enrollmentModel.JourneyID),
		EnrollmentID: enrollmentModel.ID,
		ContactID:    enrollmentModel.ContactID,
		Reason:       reason,
	})

	return enrollmentModel, nil
}

// Pause suspends a live enrollment. The open execution stays put; the
// runner refuses to claim executions of paused enrollments.
func (c *Controller) Pause(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	enrollmentModel, err := c.persistence.EnrollmentRepository().GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	if enrollmentModel.IsTerminal() {
		return nil, ErrEnrollmentTerminal
	}

	if enrollmentModel.Status == models.EnrollmentStatusPaused {
		return enrollmentModel, nil
	}

	enrollmentModel.Status = models.EnrollmentStatusPaused

	if err := c.persistence.EnrollmentRepository().Save(ctx, enrollmentModel); err != nil {
		return nil, err
	}

	c.publishForJourney(ctx, enrollmentModel.JourneyID, events.EnrollmentPaused{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentPausedEvent, enrollmentModel.JourneyID),
		EnrollmentID: enrollmentModel.ID,
		ContactID:    enrollmentModel.ContactID,
	})

	return enrollmentModel, nil
}

// Resume reactivates a paused enrollment.
func (c *Controller) Resume(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	enrollmentModel, err := c.persistence.EnrollmentRepository().GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	if enrollmentModel.Status != models.EnrollmentStatusPaused {
		return nil, ErrEnrollmentNotPaused
	}

	enrollmentModel.Status = models.EnrollmentStatusActive

	if err := c.persistence.EnrollmentRepository().Save(ctx, enrollmentModel); err != nil {
		return nil, err
	}

	c.publishForJourney(ctx, enrollmentModel.JourneyID, events.EnrollmentResumed{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentResumedEvent, enrollmentModel.JourneyID),
		EnrollmentID: enrollmentModel.ID,
		ContactID:    enrollmentModel.ContactID,
	})

	return enrollmentModel, nil
}

// Complete ends the run successfully after the graph's last step.
func (c *Controller) Complete(ctx context.Context, journeyModel *models.Journey, enrollmentModel *models.Enrollment) error {
	now := time.Now().UTC()
	enrollmentModel.Status = models.EnrollmentStatusCompleted
	enrollmentModel.CompletedAt = &now
	enrollmentModel.CurrentStepID = nil

	if err := c.persistence.EnrollmentRepository().Save(ctx, enrollmentModel); err != nil {
		return err
	}

	journeyModel.TotalCompleted++
	if err := c.persistence.JourneyRepository().Save(ctx, journeyModel); err != nil {
		return err
	}

	c.publish(ctx, journeyModel, events.EnrollmentCompleted{
		BaseEvent:      c.baseEvent(events.EnrollmentCompletedEvent, journeyModel),
		EnrollmentID:   enrollmentModel.ID,
		ContactID:      enrollmentModel.ContactID,
		StepsCompleted: enrollmentModel.StepsCompleted,
	})

	return nil
}

// ReachGoal ends the run because the journey's goal predicate matched.
func (c *Controller) ReachGoal(ctx context.Context, journeyModel *models.Journey, enrollmentModel *models.Enrollment) error {
	now := time.Now().UTC()
	enrollmentModel.Status = models.EnrollmentStatusGoalReached
	enrollmentModel.GoalReachedAt = &now
	enrollmentModel.CurrentStepID = nil

	if err := c.persistence.EnrollmentRepository().Save(ctx, enrollmentModel); err != nil {
		return err
	}

	journeyModel.TotalGoalReached++
	if err := c.persistence.JourneyRepository().Save(ctx, journeyModel); err != nil {
		return err
	}

	goalType := ""
	if journeyModel.Goal != nil {
		goalType = journeyModel.Goal.Type
	}

	c.publish(ctx, journeyModel, events.EnrollmentGoalReached{
		BaseEvent:    c.baseEvent(events.EnrollmentGoalReachedEvent, journeyModel),
		EnrollmentID: enrollmentModel.ID,
		ContactID:    enrollmentModel.ContactID,
		GoalType:     goalType,
	})

	return nil
}

// Fail marks the run as failed after a step exhausted its retries. The
// current step pointer is left in place so the failure site stays visible.
func (c *Controller) Fail(ctx context.Context, enrollmentModel *models.Enrollment, stepID, errorMessage string) error {
	now := time.Now().UTC()
	enrollmentModel.Status = models.EnrollmentStatusFailed
	enrollmentModel.LastError = errorMessage
	enrollmentModel.FailedAt = &now

	if err := c.persistence.EnrollmentRepository().Save(ctx, enrollmentModel); err != nil {
		return err
	}

	c.publishForJourney(ctx, enrollmentModel.JourneyID, events.EnrollmentFailed{
		BaseEvent:    events.NewBaseEvent(events.EnrollmentFailedEvent, enrollmentModel.JourneyID),
		EnrollmentID: enrollmentModel.ID,
		ContactID:    enrollmentModel.ContactID,
		StepID:       stepID,
		Error:        errorMessage,
	})

	return nil
}

// RecordEmailEvent ingests a delivery provider callback for a sent email.
// The first "opened" or "clicked" stamps the execution, bumps the
// enrollment counters and patches the enrollment context so condition
// steps can route on engagement. Repeated callbacks are no-ops.
func (c *Controller) RecordEmailEvent(ctx context.Context, executionID, event string, at time.Time) (*models.StepExecution, error) {
	execution, err := c.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	enrollmentModel, err := c.persistence.EnrollmentRepository().GetByID(ctx, execution.EnrollmentID)
	if err != nil {
		return nil, err
	}

	at = at.UTC()

	switch event {
	case "opened":
		if execution.OpenedAt != nil {
			return execution, nil
		}

		execution.OpenedAt = &at
		enrollmentModel.EmailsOpened++
		enrollmentModel.SetContextValue("opened_email", true)
	case "clicked":
		if execution.ClickedAt != nil {
			return execution, nil
		}

		execution.ClickedAt = &at
		enrollmentModel.EmailsClicked++
		enrollmentModel.SetContextValue("clicked_email", true)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngagementEvent, event)
	}

	if err := c.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return nil, err
	}

	if err := c.persistence.EnrollmentRepository().Save(ctx, enrollmentModel); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Recorded email engagement",
		"execution_id", executionID, "event", event)

	c.publishForJourney(ctx, enrollmentModel.JourneyID, events.EmailEngagement{
		BaseEvent:    events.NewBaseEvent(events.EmailEngagementEvent, enrollmentModel.JourneyID),
		EnrollmentID: enrollmentModel.ID,
		ExecutionID:  execution.ID,
		ContactID:    enrollmentModel.ContactID,
		Event:        event,
		OccurredAt:   at,
	})

	return execution, nil
}

// Get fetches one enrollment.
func (c *Controller) Get(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	return c.persistence.EnrollmentRepository().GetByID(ctx, enrollmentID)
}

// ListByJourney fetches a journey's enrollments.
func (c *Controller) ListByJourney(ctx context.Context, journeyID string) ([]*models.Enrollment, error) {
	return c.persistence.EnrollmentRepository().ListByJourney(ctx, journeyID)
}

// checkAdmission enforces the re-enrollment policy against the contact's
// enrollment history, newest first.
func checkAdmission(policy models.ReEnrollmentPolicy, history []*models.Enrollment, now time.Time) error {
	for _, past := range history {
		if !past.IsTerminal() {
			return ErrAlreadyEnrolled
		}
	}

	if len(history) == 0 {
		return nil
	}

	if !policy.Allowed {
		return ErrReEnrollmentNotAllowed
	}

	if policy.MaxEnrollmentsPerContact > 0 && len(history) >= policy.MaxEnrollmentsPerContact {
		return fmt.Errorf("%w: contact reached the limit of %d enrollments",
			ErrReEnrollmentNotAllowed, policy.MaxEnrollmentsPerContact)
	}

	if policy.CooldownDays > 0 {
		if last := history[0].TerminalAt(); last != nil {
			eligible := last.AddDate(0, 0, policy.CooldownDays)
			if now.Before(eligible) {
				return fmt.Errorf("%w: cooldown until %s",
					ErrReEnrollmentNotAllowed, eligible.Format(time.RFC3339))
			}
		}
	}

	return nil
}

func (c *Controller) skipOpenExecution(ctx context.Context, enrollmentID string) error {
	open, err := c.persistence.ExecutionRepository().OpenByEnrollment(ctx, enrollmentID)
	if err != nil {
		return err
	}

	if open == nil || open.Status == models.ExecutionStatusExecuting {
		// An executing row belongs to a runner; it notices the terminal
		// enrollment when it finishes.
		return nil
	}

	now := time.Now().UTC()
	open.Status = models.ExecutionStatusSkipped
	open.FinishedAt = &now

	return c.persistence.ExecutionRepository().Save(ctx, open)
}

func (c *Controller) baseEvent(eventType events.EventType, journeyModel *models.Journey) events.BaseEvent {
	base := events.NewBaseEvent(eventType, journeyModel.ID)
	base.TenantID = journeyModel.TenantID

	return base
}

func (c *Controller) publish(ctx context.Context, journeyModel *models.Journey, event eventbus.Event) {
	c.publishForJourney(ctx, journeyModel.ID, event)
}

func (c *Controller) publishForJourney(ctx context.Context, journeyID string, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	if err := c.publisher.Publish(ctx, journeyID, event); err != nil {
		c.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "journey_id", journeyID, "error", err)
	}
}
