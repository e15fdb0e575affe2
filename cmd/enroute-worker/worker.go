package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/trace"

	"github.com/enroutehq/enroute/pkg/collaborators"
	"github.com/enroutehq/enroute/pkg/enrollment"
	"github.com/enroutehq/enroute/pkg/eventbus"
	"github.com/enroutehq/enroute/pkg/events"
	"github.com/enroutehq/enroute/pkg/persistence"
	"github.com/enroutehq/enroute/pkg/registry"
	"github.com/enroutehq/enroute/pkg/runner"
)

// Worker reacts to enrollment events on the bus and drives the affected
// enrollment's open executions. The dispatcher's sweep covers everything
// the bus misses: scheduled delays, retries and lost claims.
type Worker struct {
	id       string
	runner   *runner.Runner
	eventBus eventbus.EventBus
	logger   *slog.Logger
}

func NewWorker(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	registry *registry.Registry,
	client *collaborators.Client,
	tracer trace.Tracer,
	logger *slog.Logger,
	config runner.Config,
) *Worker {
	controller := enrollment.NewController(persistence, eventBus, logger)
	enroller := enrollment.NewEnroller(controller)

	stepRunner := runner.NewRunner(
		persistence,
		registry,
		client.Bundle(enroller),
		controller,
		eventBus,
		tracer,
		logger,
		config,
	)

	return &Worker{
		id:       id,
		runner:   stepRunner,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker subscriptions")

	if err := w.eventBus.Handle(events.EnrollmentCreatedEvent, w.handleEnrollmentCreated); err != nil {
		return err
	}

	if err := w.eventBus.Handle(events.EnrollmentResumedEvent, w.handleEnrollmentResumed); err != nil {
		return err
	}

	subscribeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.eventBus.Subscribe(subscribeCtx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker")
	cancel()

	return nil
}

func (w *Worker) handleEnrollmentCreated(ctx context.Context, event any) error {
	created, ok := event.(*events.EnrollmentCreated)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for EnrollmentCreated")

		return nil
	}

	w.logger.InfoContext(ctx, "Processing new enrollment",
		"enrollment_id", created.EnrollmentID,
		"journey_id", created.JourneyID,
		"event_id", created.ID,
	)

	return w.runner.ProcessEnrollment(ctx, created.EnrollmentID)
}

func (w *Worker) handleEnrollmentResumed(ctx context.Context, event any) error {
	resumed, ok := event.(*events.EnrollmentResumed)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for EnrollmentResumed")

		return nil
	}

	w.logger.InfoContext(ctx, "Processing resumed enrollment",
		"enrollment_id", resumed.EnrollmentID,
		"journey_id", resumed.JourneyID,
	)

	return w.runner.ProcessEnrollment(ctx, resumed.EnrollmentID)
}
