package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/enroutehq/enroute/pkg/eventbus"
	"github.com/enroutehq/enroute/pkg/events"
	"github.com/enroutehq/enroute/pkg/otelhelper"
)

func consumeEvents(
	ctx context.Context,
	logger *slog.Logger,
	reader *kafkago.Reader,
	tracer trace.Tracer,
	handlers map[events.EventType]eventbus.EventHandler,
) {
	for {
		message, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.InfoContext(ctx, "Stopping consumer, context done")

				break
			}

			logger.ErrorContext(ctx, "Failed to fetch message", "error", err)

			continue
		}

		var eventType events.EventType

		carrier := propagation.MapCarrier{}

		for _, header := range message.Headers {
			if header.Key == events.EventTypeMetadataKey {
				eventType = events.EventType(header.Value)
			} else {
				carrier[header.Key] = string(header.Value)
			}
		}

		propagator := otel.GetTextMapPropagator()
		msgCtx := propagator.Extract(ctx, carrier)

		traceCtx, span := otelhelper.StartSpan(msgCtx, tracer, "eventbus.consume",
			attribute.String("kafka.key", string(message.Key)),
			attribute.String("kafka.topic", message.Topic),
		)

		handler, exists := handlers[eventType]
		if !exists {
			commit(msgCtx, logger, reader, message)
			span.End()

			continue
		}

		event := newEvent(eventType)
		if event == nil {
			logger.ErrorContext(msgCtx, "Unknown event type", "event_type", eventType)
			otelhelper.SetError(span, errors.New("unknown event type"))
			commit(msgCtx, logger, reader, message)
			span.End()

			continue
		}

		if err := json.Unmarshal(message.Value, event); err != nil {
			logger.ErrorContext(msgCtx, "Failed to unmarshal event", "error", err, "event_type", eventType)
			otelhelper.SetError(span, err)
			commit(msgCtx, logger, reader, message)
			span.End()

			continue
		}

		if err := handler(traceCtx, event); err != nil {
			logger.ErrorContext(msgCtx, "Failed to handle event", "error", err, "event_type", eventType)
			otelhelper.SetError(span, err)
			commit(msgCtx, logger, reader, message)
			span.End()

			continue
		}

		span.AddEvent("event_handled")
		commit(msgCtx, logger, reader, message)
		span.End()
	}
}

func newEvent(eventType events.EventType) any {
	switch eventType {
	case events.JourneyActivatedEvent:
		return &events.JourneyActivated{}
	case events.JourneyPausedEvent:
		return &events.JourneyPaused{}
	case events.JourneyArchivedEvent:
		return &events.JourneyArchived{}
	case events.EnrollmentCreatedEvent:
		return &events.EnrollmentCreated{}
	case events.EnrollmentPausedEvent:
		return &events.EnrollmentPaused{}
	case events.EnrollmentResumedEvent:
		return &events.EnrollmentResumed{}
	case events.EnrollmentExitedEvent:
		return &events.EnrollmentExited{}
	case events.EnrollmentCompletedEvent:
		return &events.EnrollmentCompleted{}
	case events.EnrollmentGoalReachedEvent:
		return &events.EnrollmentGoalReached{}
	case events.EnrollmentFailedEvent:
		return &events.EnrollmentFailed{}
	case events.StepExecutedEvent:
		return &events.StepExecuted{}
	case events.StepExecutionFailedEvent:
		return &events.StepExecutionFailed{}
	case events.StepScheduledEvent:
		return &events.StepScheduled{}
	default:
		return nil
	}
}

func commit(ctx context.Context, logger *slog.Logger, reader *kafkago.Reader, message kafkago.Message) {
	if err := reader.CommitMessages(ctx, message); err != nil {
		logger.ErrorContext(ctx, "Failed to commit message", "error", err)
	}
}
