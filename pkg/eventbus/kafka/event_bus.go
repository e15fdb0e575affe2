// Package kafka provides a kafka-go backed event bus for deployments that
// run against Kafka without the watermill layer.
package kafka

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/enroutehq/enroute/pkg/eventbus"
	"github.com/enroutehq/enroute/pkg/events"
)

type kafkaEventBus struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	writer   *kafkago.Writer
	reader   *kafkago.Reader
	handlers map[events.EventType]eventbus.EventHandler
}

func NewEventBus(logger *slog.Logger, tracer trace.Tracer) (eventbus.EventBus, error) {
	brokersStr := os.Getenv("KAFKA_BROKERS")

	splitBrokers := strings.Split(brokersStr, ",")
	if len(splitBrokers) == 0 || (len(splitBrokers) == 1 && splitBrokers[0] == "") {
		return nil, errors.New("no Kafka brokers configured")
	}

	writer := kafkago.NewWriter(kafkago.WriterConfig{
		Brokers: splitBrokers,
		Topic:   events.Topic,
	})

	groupID := os.Getenv("KAFKA_GROUP_ID")
	if groupID == "" {
		groupID = "cg-enroute-event-bus"
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: splitBrokers,
		Topic:   events.Topic,
		GroupID: groupID,
	})

	return &kafkaEventBus{
		logger:   logger,
		tracer:   tracer,
		writer:   writer,
		reader:   reader,
		handlers: make(map[events.EventType]eventbus.EventHandler),
	}, nil
}

func (k *kafkaEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	return publishEvent(ctx, k.logger, k.writer, key, event)
}

func (k *kafkaEventBus) Subscribe(ctx context.Context) error {
	k.logger.InfoContext(ctx, "Subscribing to events")

	go consumeEvents(ctx, k.logger, k.reader, k.tracer, k.handlers)

	return nil
}

func (k *kafkaEventBus) Close() error {
	if err := k.writer.Close(); err != nil {
		k.logger.Error("Failed to close Kafka writer", "error", err)

		return err
	}

	if err := k.reader.Close(); err != nil {
		k.logger.Error("Failed to close Kafka reader", "error", err)

		return err
	}

	return nil
}

func (k *kafkaEventBus) GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func (k *kafkaEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	k.handlers[eventType] = handler

	return nil
}
