// Package main provides the Enroute dispatcher: the cron sweep over due
// step executions plus the Redis trigger signal consumer.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/trace"

	"github.com/enroutehq/enroute/pkg/collaborators"
	"github.com/enroutehq/enroute/pkg/config"
	"github.com/enroutehq/enroute/pkg/dispatcher"
	"github.com/enroutehq/enroute/pkg/enrollment"
	"github.com/enroutehq/enroute/pkg/eventbus"
	"github.com/enroutehq/enroute/pkg/persistence"
	"github.com/enroutehq/enroute/pkg/registry"
	"github.com/enroutehq/enroute/pkg/runner"
	kafkasource "github.com/enroutehq/enroute/pkg/triggers/kafka"
	"github.com/enroutehq/enroute/pkg/triggers/queue"
)

// ServiceConfig carries the dispatcher's tunables.
type ServiceConfig struct {
	SweepCron   string
	BatchSize   int
	RedisURL    string
	Queue       string
	SourcesPath string
	Runner      runner.Config
}

type signalSource interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Service runs the sweep dispatcher and the signal sources side by side.
type Service struct {
	id         string
	dispatcher *dispatcher.Dispatcher
	sources    []signalSource
	logger     *slog.Logger
}

func NewService(
	id string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	registry *registry.Registry,
	client *collaborators.Client,
	tracer trace.Tracer,
	logger *slog.Logger,
	cfg ServiceConfig,
) (*Service, error) {
	controller := enrollment.NewController(persistence, eventBus, logger)
	enroller := enrollment.NewEnroller(controller)
	matcher := enrollment.NewMatcher(persistence, controller, logger)

	stepRunner := runner.NewRunner(
		persistence,
		registry,
		client.Bundle(enroller),
		controller,
		eventBus,
		tracer,
		logger,
		cfg.Runner,
	)

	sweeper, err := dispatcher.NewDispatcher(stepRunner, cfg.SweepCron, cfg.BatchSize, logger)
	if err != nil {
		return nil, err
	}

	sources, err := buildSources(cfg, matcher, logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		id:         id,
		dispatcher: sweeper,
		sources:    sources,
		logger:     logger,
	}, nil
}

// buildSources assembles the signal sources, either from the YAML sources
// file or a single Redis queue source from the flags.
func buildSources(cfg ServiceConfig, matcher *enrollment.Matcher, logger *slog.Logger) ([]signalSource, error) {
	if cfg.SourcesPath == "" {
		source, err := queue.NewSource(map[string]any{
			"queue": cfg.Queue,
			"connection": map[string]any{
				"addr": cfg.RedisURL,
			},
		}, matcher, logger)
		if err != nil {
			return nil, err
		}

		return []signalSource{source}, nil
	}

	configs, err := config.LoadSignalSources(cfg.SourcesPath)
	if err != nil {
		return nil, err
	}

	sources := make([]signalSource, 0, len(configs))

	for _, sourceConfig := range configs {
		var source signalSource

		switch sourceConfig.Type {
		case "queue":
			source, err = queue.NewSource(sourceConfig.Configuration, matcher, logger)
		case "kafka":
			source, err = kafkasource.NewSource(sourceConfig.Configuration, matcher, logger)
		}

		if err != nil {
			return nil, err
		}

		sources = append(sources, source)
	}

	return sources, nil
}

// Start launches the sweep and the signal consumers, then blocks until
// SIGINT or SIGTERM.
func (s *Service) Start(ctx context.Context) error {
	if err := s.dispatcher.Start(ctx); err != nil {
		return err
	}

	for i, source := range s.sources {
		if err := source.Start(ctx); err != nil {
			s.stopSources(ctx, i)
			s.dispatcher.Stop()

			return err
		}
	}

	s.logger.InfoContext(ctx, "Dispatcher started successfully", "sources", len(s.sources))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	s.logger.InfoContext(ctx, "Shutting down dispatcher")

	s.dispatcher.Stop()
	s.stopSources(ctx, len(s.sources))

	return nil
}

func (s *Service) stopSources(ctx context.Context, count int) {
	for _, source := range s.sources[:count] {
		if err := source.Stop(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to stop signal source", "error", err)
		}
	}
}
