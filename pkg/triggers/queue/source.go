// Package queue consumes trigger signals from a Redis list and fans them
// out to matching journeys. CRM services push signals onto the list; the
// dispatcher runs the consumer.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/enroutehq/enroute/pkg/enrollment"
)

const DefaultQueue = "enroute.signals"

// Source is the Redis-backed trigger signal consumer.
type Source struct {
	queue      string
	connection map[string]string

	matcher *enrollment.Matcher
	client  redis.UniversalClient
	logger  *slog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSource creates a signal source. Config keys: queue (list name) and
// connection {addr, password, db}.
func NewSource(config map[string]any, matcher *enrollment.Matcher, logger *slog.Logger) (*Source, error) {
	queue, _ := config["queue"].(string)
	if queue == "" {
		queue = DefaultQueue
	}

	connectionConfig, _ := config["connection"].(map[string]any)

	connection := make(map[string]string)
	for k, v := range connectionConfig {
		if str, ok := v.(string); ok {
			connection[k] = str
		}
	}

	return &Source{
		queue:      queue,
		connection: connection,
		matcher:    matcher,
		stopCh:     make(chan struct{}),
		logger: logger.With(
			"module", "queue_source",
			"queue", queue,
		),
	}, nil
}

// Start connects to Redis and launches the consumer loop.
func (s *Source) Start(ctx context.Context) error {
	if err := s.initializeClient(ctx); err != nil {
		return fmt.Errorf("failed to initialize queue client: %w", err)
	}

	s.wg.Add(1)

	go s.consume(ctx)

	return nil
}

func (s *Source) initializeClient(ctx context.Context) error {
	addr := s.connection["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}

	db := 0

	if dbStr := s.connection["db"]; dbStr != "" {
		parsed, err := strconv.Atoi(dbStr)
		if err != nil {
			return fmt.Errorf("invalid db value: %w", err)
		}

		db = parsed
	}

	s.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: s.connection["password"],
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s.logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return nil
}

func (s *Source) consume(ctx context.Context) {
	defer s.wg.Done()

	s.logger.InfoContext(ctx, "Starting signal consumer")

	for {
		select {
		case <-s.stopCh:
			s.logger.InfoContext(ctx, "Signal consumer stopped")

			return
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Context cancelled, stopping signal consumer")

			return
		default:
			if err := s.processSignal(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Error processing signal", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (s *Source) processSignal(ctx context.Context) error {
	result, err := s.client.BLPop(ctx, 1*time.Second, s.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop signal from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var signal enrollment.TriggerSignal
	if err := json.Unmarshal([]byte(result[1]), &signal); err != nil {
		s.logger.WarnContext(ctx, "Discarding malformed signal", "error", err)

		return nil
	}

	if signal.TenantID == "" || signal.ContactID == "" || signal.Type == "" {
		s.logger.WarnContext(ctx, "Discarding incomplete signal",
			"tenant_id", signal.TenantID, "contact_id", signal.ContactID, "type", signal.Type)

		return nil
	}

	enrolled, err := s.matcher.Match(ctx, signal)
	if err != nil {
		return fmt.Errorf("failed to match signal: %w", err)
	}

	s.logger.InfoContext(ctx, "Processed signal",
		"type", signal.Type, "contact_id", signal.ContactID, "enrolled", len(enrolled))

	return nil
}

// Stop halts the consumer and closes the Redis connection.
func (s *Source) Stop(ctx context.Context) error {
	close(s.stopCh)
	s.wg.Wait()

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
