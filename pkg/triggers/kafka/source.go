// Package kafka provides the Kafka-backed trigger signal source.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/enroutehq/enroute/pkg/enrollment"
)

// DefaultTopic is consumed when the config names no topic.
const DefaultTopic = "enroute.signals"

const (
	kafkaSessionTimeout    = 10 * time.Second
	kafkaHeartbeatInterval = 3 * time.Second
	kafkaRetryInterval     = 5 * time.Second
)

// Source consumes trigger signals from a Kafka topic and fans each one out
// through the enrollment matcher.
type Source struct {
	topic         string
	consumerGroup string
	brokers       []string
	matcher       *enrollment.Matcher
	consumer      sarama.ConsumerGroup
	logger        *slog.Logger
}

// NewSource creates a Kafka signal source. Config keys: topic,
// consumer_group and brokers (comma-separated, falls back to
// KAFKA_BROKERS).
func NewSource(config map[string]any, matcher *enrollment.Matcher, logger *slog.Logger) (*Source, error) {
	topic, _ := config["topic"].(string)
	if topic == "" {
		topic = DefaultTopic
	}

	consumerGroup, _ := config["consumer_group"].(string)
	if consumerGroup == "" {
		consumerGroup = "cg-enroute-signals"
	}

	brokersStr, _ := config["brokers"].(string)
	if brokersStr == "" {
		brokersStr = os.Getenv("KAFKA_BROKERS")
		if brokersStr == "" {
			brokersStr = "localhost:9092"
		}
	}

	brokers := strings.Split(brokersStr, ",")
	for i, broker := range brokers {
		brokers[i] = strings.TrimSpace(broker)
	}

	return &Source{
		topic:         topic,
		consumerGroup: consumerGroup,
		brokers:       brokers,
		matcher:       matcher,
		logger: logger.With(
			"module", "kafka_source",
			"topic", topic,
			"consumer_group", consumerGroup,
		),
	}, nil
}

// Start creates the consumer group and launches the consume loop.
func (s *Source) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting Kafka signal source")

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Session.Timeout = kafkaSessionTimeout
	config.Consumer.Group.Heartbeat.Interval = kafkaHeartbeatInterval
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(s.brokers, s.consumerGroup, config)
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}

	s.consumer = consumer

	go s.consuming(ctx)
	go s.monitorConsumerErrors(ctx)

	return nil
}

// Stop closes the consumer group.
func (s *Source) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping Kafka signal source")

	if s.consumer != nil {
		return s.consumer.Close()
	}

	return nil
}

func (s *Source) consuming(ctx context.Context) {
	handler := &consumerGroupHandler{source: s}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Kafka signal source context cancelled")

			return
		default:
			err := s.consumer.Consume(ctx, []string{s.topic}, handler)
			if err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}

				s.logger.ErrorContext(ctx, "Kafka consumer error", "error", err)
				time.Sleep(kafkaRetryInterval)
			}
		}
	}
}

func (s *Source) monitorConsumerErrors(ctx context.Context) {
	for {
		select {
		case err := <-s.consumer.Errors():
			if err != nil {
				s.logger.ErrorContext(ctx, "Kafka consumer group error", "error", err)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (s *Source) processSignal(ctx context.Context, payload []byte) {
	var signal enrollment.TriggerSignal
	if err := json.Unmarshal(payload, &signal); err != nil {
		s.logger.WarnContext(ctx, "Discarding malformed signal", "error", err)

		return
	}

	if signal.TenantID == "" || signal.Type == "" || signal.ContactID == "" {
		s.logger.WarnContext(ctx, "Discarding incomplete signal",
			"tenant_id", signal.TenantID, "type", signal.Type, "contact_id", signal.ContactID)

		return
	}

	enrolled, err := s.matcher.Match(ctx, signal)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to match signal",
			"type", signal.Type, "contact_id", signal.ContactID, "error", err)

		return
	}

	s.logger.DebugContext(ctx, "Signal processed",
		"type", signal.Type, "contact_id", signal.ContactID, "enrolled", len(enrolled))
}

type consumerGroupHandler struct {
	source *Source
}

func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.source.logger.InfoContext(session.Context(), "Kafka consumer group session started")

	return nil
}

func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.source.logger.InfoContext(session.Context(), "Kafka consumer group session ended")

	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		h.source.processSignal(session.Context(), message.Value)
		session.MarkMessage(message, "")
	}

	return nil
}
