// Package runner executes claimed step executions: it performs the step's
// side effect through its handler, selects the outgoing edge and advances
// the enrollment, one step per claim.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/enroutehq/enroute/pkg/enrollment"
	"github.com/enroutehq/enroute/pkg/eventbus"
	"github.com/enroutehq/enroute/pkg/events"
	"github.com/enroutehq/enroute/pkg/models"
	"github.com/enroutehq/enroute/pkg/otelhelper"
	"github.com/enroutehq/enroute/pkg/persistence"
	"github.com/enroutehq/enroute/pkg/protocol"
	"github.com/enroutehq/enroute/pkg/registry"
	"github.com/enroutehq/enroute/pkg/steps/condition"
)

// ErrGraphDrift means the journey graph changed under an active enrollment
// and the enrollment's position no longer exists.
var ErrGraphDrift = errors.New("graph changed under active enrollment")

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 30 * time.Second
)

// Config tunes the runner.
type Config struct {
	WorkerID string
	// MaxRetries is the number of re-attempts after the first failure
	// before the enrollment fails.
	MaxRetries int
	// RetryBackoff is the base delay before a retry; it doubles per
	// attempt.
	RetryBackoff time.Duration
}

// Runner drives step executions to completion.
type Runner struct {
	persistence   persistence.Persistence
	registry      *registry.Registry
	collaborators protocol.Collaborators
	controller    *enrollment.Controller
	publisher     eventbus.EventPublisher
	tracer        trace.Tracer
	logger        *slog.Logger
	config        Config
}

// NewRunner creates a runner. The publisher and tracer may be nil in
// tests.
func NewRunner(
	persistence persistence.Persistence,
	reg *registry.Registry,
	collaborators protocol.Collaborators,
	controller *enrollment.Controller,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
	config Config,
) *Runner {
	if config.WorkerID == "" {
		config.WorkerID = "worker-" + uuid.New().String()
	}

	if config.MaxRetries <= 0 {
		config.MaxRetries = defaultMaxRetries
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = defaultRetryBackoff
	}

	return &Runner{
		persistence:   persistence,
		registry:      reg,
		collaborators: collaborators,
		controller:    controller,
		publisher:     publisher,
		tracer:        tracer,
		logger:        logger.With("module", "runner", "worker_id", config.WorkerID),
		config:        config,
	}
}

// ProcessDue claims and processes every due execution, up to limit. Used
// by the dispatcher sweep; returns the number of executions processed.
func (r *Runner) ProcessDue(ctx context.Context, limit int) (int, error) {
	due, err := r.persistence.ExecutionRepository().ListDue(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, err
	}

	processed := 0

	for _, execution := range due {
		if err := r.ProcessExecution(ctx, execution.ID); err != nil {
			r.logger.ErrorContext(ctx, "Failed to process execution",
				"execution_id", execution.ID, "error", err)

			continue
		}

		processed++
	}

	return processed, nil
}

// ProcessEnrollment drains the enrollment's open execution chain: it keeps
// processing while the open execution is immediately due, so a freshly
// enrolled contact moves through consecutive non-waiting steps without
// waiting for the next sweep. Stops at the first scheduled, terminal or
// missing execution.
func (r *Runner) ProcessEnrollment(ctx context.Context, enrollmentID string) error {
	for {
		open, err := r.persistence.ExecutionRepository().OpenByEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}

		if open == nil || !open.IsDue(time.Now().UTC()) {
			return nil
		}

		if err := r.ProcessExecution(ctx, open.ID); err != nil {
			return err
		}

		next, err := r.persistence.ExecutionRepository().OpenByEnrollment(ctx, enrollmentID)
		if err != nil {
			return err
		}

		// No progress means a lost claim race or a held run; let the
		// sweep pick it up later.
		if next == nil || next.ID == open.ID {
			return nil
		}
	}
}

// ProcessExecution claims one execution and runs it end to end. Losing the
// claim race is not an error: some other worker has the row.
func (r *Runner) ProcessExecution(ctx context.Context, executionID string) error {
	now := time.Now().UTC()

	execution, err := r.persistence.ExecutionRepository().Claim(ctx, executionID, now)
	if err != nil {
		if errors.Is(err, persistence.ErrExecutionNotClaimable) {
			r.logger.DebugContext(ctx, "Execution not claimable", "execution_id", executionID)

			return nil
		}

		return err
	}

	enrollmentModel, err := r.persistence.EnrollmentRepository().GetByID(ctx, execution.EnrollmentID)
	if err != nil {
		return err
	}

	logger := r.logger.With(
		"execution_id", execution.ID,
		"enrollment_id", enrollmentModel.ID,
		"journey_id", enrollmentModel.JourneyID,
	)

	// The enrollment may have been paused or terminated between the
	// execution's creation and this claim.
	if enrollmentModel.IsTerminal() {
		logger.InfoContext(ctx, "Enrollment terminal, skipping execution")

		return r.finishExecution(ctx, execution, models.ExecutionStatusSkipped)
	}

	if enrollmentModel.Status == models.EnrollmentStatusPaused {
		logger.InfoContext(ctx, "Enrollment paused, releasing claim")

		return r.releaseClaim(ctx, execution)
	}

	journeyModel, err := r.persistence.JourneyRepository().GetByID(ctx, enrollmentModel.JourneyID)
	if err != nil {
		return err
	}

	// A paused journey holds every run in place. Archived journeys keep
	// their in-flight enrollments running.
	if journeyModel.Status == models.JourneyStatusPaused {
		logger.InfoContext(ctx, "Journey paused, releasing claim")

		return r.releaseClaim(ctx, execution)
	}

	step, err := r.persistence.StepRepository().GetByID(ctx, execution.StepID)
	if err != nil {
		if errors.Is(err, persistence.ErrStepNotFound) {
			return r.failForDrift(ctx, execution, enrollmentModel, logger)
		}

		return err
	}

	return r.run(ctx, journeyModel, step, enrollmentModel, execution, logger)
}

func (r *Runner) run(
	ctx context.Context,
	journeyModel *models.Journey,
	step *models.Step,
	enrollmentModel *models.Enrollment,
	execution *models.StepExecution,
	logger *slog.Logger,
) error {
	spanCtx := ctx

	if r.tracer != nil {
		var span trace.Span

		spanCtx, span = otelhelper.StartSpan(ctx, r.tracer, "runner.execute_step",
			attribute.String(otelhelper.JourneyIDKey, journeyModel.ID),
			attribute.String(otelhelper.StepIDKey, step.ID),
			attribute.String(otelhelper.StepTypeKey, string(step.Type)),
			attribute.String(otelhelper.EnrollmentIDKey, enrollmentModel.ID),
			attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		)
		defer span.End()
	}

	started := time.Now()

	outcome, err := r.executeHandler(spanCtx, journeyModel, step, enrollmentModel, execution, logger)
	if err != nil {
		return r.handleFailure(spanCtx, journeyModel, step, enrollmentModel, execution, err, logger)
	}

	if outcome.DeferUntil != nil {
		return r.reschedule(spanCtx, enrollmentModel, execution, *outcome.DeferUntil, logger)
	}

	return r.advance(spanCtx, journeyModel, step, enrollmentModel, execution, outcome, started, logger)
}

func (r *Runner) executeHandler(
	ctx context.Context,
	journeyModel *models.Journey,
	step *models.Step,
	enrollmentModel *models.Enrollment,
	execution *models.StepExecution,
	logger *slog.Logger,
) (*protocol.StepOutcome, error) {
	handler, err := r.registry.Create(step.Type, r.collaborators)
	if err != nil {
		return nil, err
	}

	var contact *protocol.ContactSummary
	if r.collaborators.Contacts != nil {
		contact, err = r.collaborators.Contacts.GetContact(ctx, enrollmentModel.ContactID)
		if err != nil {
			logger.WarnContext(ctx, "Failed to resolve contact", "error", err)
		}
	}

	outcome, err := handler.Execute(ctx, protocol.StepInput{
		Journey:    journeyModel,
		Step:       step,
		Enrollment: enrollmentModel,
		Execution:  execution,
		Contact:    contact,
	}, logger)
	if err != nil {
		return nil, err
	}

	if outcome == nil {
		outcome = &protocol.StepOutcome{}
	}

	return outcome, nil
}

// reschedule parks the execution for a later wake-up without advancing
// the enrollment.
func (r *Runner) reschedule(
	ctx context.Context,
	enrollmentModel *models.Enrollment,
	execution *models.StepExecution,
	until time.Time,
	logger *slog.Logger,
) error {
	execution.Status = models.ExecutionStatusScheduled
	execution.ScheduledFor = &until
	execution.StartedAt = nil

	if err := r.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Execution scheduled", "scheduled_for", until)

	r.publish(ctx, enrollmentModel.JourneyID, events.StepScheduled{
		BaseEvent:    r.baseEvent(events.StepScheduledEvent, enrollmentModel.JourneyID),
		EnrollmentID: enrollmentModel.ID,
		ExecutionID:  execution.ID,
		StepID:       execution.StepID,
		ScheduledFor: until,
	})

	return nil
}

func (r *Runner) advance(
	ctx context.Context,
	journeyModel *models.Journey,
	step *models.Step,
	enrollmentModel *models.Enrollment,
	execution *models.StepExecution,
	outcome *protocol.StepOutcome,
	started time.Time,
	logger *slog.Logger,
) error {
	now := time.Now().UTC()

	execution.Status = models.ExecutionStatusExecuted
	execution.FinishedAt = &now
	execution.Result = outcome.Result
	execution.ProviderMessageID = outcome.ProviderMessageID

	if outcome.Branch != nil {
		matched := outcome.Branch.Label == "true"
		execution.DecisionMade = &matched
		execution.DecisionReason = outcome.Branch.Reason
	}

	if err := r.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return err
	}

	for key, value := range outcome.ContextPatch {
		enrollmentModel.SetContextValue(key, value)
	}

	enrollmentModel.StepsCompleted++
	if outcome.EmailSent {
		enrollmentModel.EmailsSent++
	}

	step.TotalExecutions++
	step.TotalSuccess++

	if err := r.persistence.StepRepository().Save(ctx, step); err != nil {
		return err
	}

	r.publish(ctx, journeyModel.ID, events.StepExecuted{
		BaseEvent:    r.baseEvent(events.StepExecutedEvent, journeyModel.ID),
		EnrollmentID: enrollmentModel.ID,
		ExecutionID:  execution.ID,
		StepID:       step.ID,
		StepType:     step.Type,
		DurationMs:   time.Since(started).Milliseconds(),
		Result:       outcome.Result,
	})

	// Goal check comes before edge selection: a satisfied goal ends the
	// run wherever it stands.
	reached, err := r.goalReached(ctx, journeyModel, enrollmentModel)
	if err != nil {
		logger.WarnContext(ctx, "Goal evaluation failed", "error", err)
	}

	if reached {
		logger.InfoContext(ctx, "Goal reached")

		if err := r.persistence.EnrollmentRepository().Save(ctx, enrollmentModel); err != nil {
			return err
		}

		return r.controller.ReachGoal(ctx, journeyModel, enrollmentModel)
	}

	// An exit step is the graph's designed end of the road: the contact
	// finished the path, so the enrollment completes.
	if outcome.Exit {
		logger.InfoContext(ctx, "Exit step reached, completing enrollment")

		if err := r.persistence.EnrollmentRepository().Save(ctx, enrollmentModel); err != nil {
			return err
		}

		return r.controller.Complete(ctx, journeyModel, enrollmentModel)
	}

	// A step with no outgoing edge mid-flight means the graph changed
	// under the enrollment, same as a deleted target.
	nextID := nextEdge(step, outcome)
	if nextID == nil {
		return r.failForDrift(ctx, execution, enrollmentModel, logger)
	}

	if _, err := r.persistence.StepRepository().GetByID(ctx, *nextID); err != nil {
		if errors.Is(err, persistence.ErrStepNotFound) {
			return r.failForDrift(ctx, execution, enrollmentModel, logger)
		}

		return err
	}

	enrollmentModel.CurrentStepID = nextID

	if err := r.persistence.EnrollmentRepository().Save(ctx, enrollmentModel); err != nil {
		return err
	}

	next := &models.StepExecution{
		ID:           uuid.New().String(),
		EnrollmentID: enrollmentModel.ID,
		StepID:       *nextID,
		Status:       models.ExecutionStatusPending,
		CreatedAt:    now,
	}

	logger.InfoContext(ctx, "Advanced enrollment", "next_step_id", *nextID)

	return r.persistence.ExecutionRepository().Save(ctx, next)
}

func (r *Runner) handleFailure(
	ctx context.Context,
	journeyModel *models.Journey,
	step *models.Step,
	enrollmentModel *models.Enrollment,
	execution *models.StepExecution,
	execErr error,
	logger *slog.Logger,
) error {
	execution.RetryCount++
	execution.ErrorMessage = execErr.Error()

	willRetry := execution.RetryCount <= r.config.MaxRetries

	if willRetry {
		backoff := r.config.RetryBackoff * time.Duration(1<<(execution.RetryCount-1))
		retryAt := time.Now().UTC().Add(backoff)

		execution.Status = models.ExecutionStatusScheduled
		execution.ScheduledFor = &retryAt
		execution.StartedAt = nil

		logger.WarnContext(ctx, "Step failed, will retry",
			"error", execErr, "retry_count", execution.RetryCount, "retry_at", retryAt)
	} else {
		now := time.Now().UTC()
		execution.Status = models.ExecutionStatusFailed
		execution.FinishedAt = &now

		logger.ErrorContext(ctx, "Step failed, retries exhausted",
			"error", execErr, "retry_count", execution.RetryCount)
	}

	if err := r.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return err
	}

	r.publish(ctx, journeyModel.ID, events.StepExecutionFailed{
		BaseEvent:    r.baseEvent(events.StepExecutionFailedEvent, journeyModel.ID),
		EnrollmentID: enrollmentModel.ID,
		ExecutionID:  execution.ID,
		StepID:       step.ID,
		StepType:     step.Type,
		Error:        execErr.Error(),
		RetryCount:   execution.RetryCount,
		WillRetry:    willRetry,
	})

	if willRetry {
		return nil
	}

	step.TotalExecutions++
	step.TotalFailure++

	if err := r.persistence.StepRepository().Save(ctx, step); err != nil {
		return err
	}

	return r.controller.Fail(ctx, enrollmentModel, step.ID, execErr.Error())
}

// failForDrift fails only the affected enrollment when its position no
// longer exists in the graph. Other enrollments of the journey keep
// running.
func (r *Runner) failForDrift(
	ctx context.Context,
	execution *models.StepExecution,
	enrollmentModel *models.Enrollment,
	logger *slog.Logger,
) error {
	logger.ErrorContext(ctx, "Graph drift detected", "step_id", execution.StepID)

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.ErrorMessage = ErrGraphDrift.Error()
	execution.FinishedAt = &now

	if err := r.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return err
	}

	return r.controller.Fail(ctx, enrollmentModel, execution.StepID, ErrGraphDrift.Error())
}

// releaseClaim puts a claimed execution back the way it was so a later
// sweep can pick it up once the pause lifts.
func (r *Runner) releaseClaim(ctx context.Context, execution *models.StepExecution) error {
	if execution.ScheduledFor != nil {
		execution.Status = models.ExecutionStatusScheduled
	} else {
		execution.Status = models.ExecutionStatusPending
	}

	execution.StartedAt = nil

	return r.persistence.ExecutionRepository().Save(ctx, execution)
}

func (r *Runner) finishExecution(ctx context.Context, execution *models.StepExecution, status models.ExecutionStatus) error {
	now := time.Now().UTC()
	execution.Status = status
	execution.FinishedAt = &now

	return r.persistence.ExecutionRepository().Save(ctx, execution)
}

func (r *Runner) goalReached(ctx context.Context, journeyModel *models.Journey, enrollmentModel *models.Enrollment) (bool, error) {
	if journeyModel.Goal == nil || len(journeyModel.Goal.Conditions) == 0 {
		return false, nil
	}

	var contact *protocol.ContactSummary
	if r.collaborators.Contacts != nil {
		resolved, err := r.collaborators.Contacts.GetContact(ctx, enrollmentModel.ContactID)
		if err == nil {
			contact = resolved
		}
	}

	matched, _, err := condition.Evaluate(journeyModel.Goal.Conditions, condition.Data(enrollmentModel.Context, contact))
	if err != nil {
		return false, fmt.Errorf("goal predicate: %w", err)
	}

	return matched, nil
}

// nextEdge selects the outgoing edge: branch steps route on the decision,
// everything else follows next.
func nextEdge(step *models.Step, outcome *protocol.StepOutcome) *string {
	if step.IsBranch() {
		if outcome.Branch != nil && outcome.Branch.Label == "true" {
			return step.ConditionTrue
		}

		return step.ConditionFalse
	}

	return step.Next
}

func (r *Runner) baseEvent(eventType events.EventType, journeyID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, journeyID)
	base.WorkerID = r.config.WorkerID

	return base
}

func (r *Runner) publish(ctx context.Context, journeyID string, event eventbus.Event) {
	if r.publisher == nil {
		return
	}

	if err := r.publisher.Publish(ctx, journeyID, event); err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
