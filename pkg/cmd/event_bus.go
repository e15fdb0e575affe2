package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"go.opentelemetry.io/otel/trace"

	"github.com/enroutehq/enroute/pkg/channels/gochannel"
	kafkachannel "github.com/enroutehq/enroute/pkg/channels/kafka"
	"github.com/enroutehq/enroute/pkg/eventbus"
	kafkabus "github.com/enroutehq/enroute/pkg/eventbus/kafka"
)

// NewEventBus creates an event bus for the given provider: "kafka" runs
// watermill over Kafka, "kafka-go" runs the raw kafka-go bus, "memory"
// serves development and tests.
func NewEventBus(provider, serviceName string, logger *slog.Logger, tracer trace.Tracer) eventbus.EventBus {
	switch provider {
	case "kafka":
		pub, sub, err := kafkachannel.CreateChannel(watermill.NewSlogLogger(logger), serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "kafka-go":
		bus, err := kafkabus.NewEventBus(logger, tracer)
		if err != nil {
			panic(fmt.Errorf("failed to create kafka-go event bus: %w", err))
		}

		return bus
	case "memory":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
