package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/enroutehq/enroute/pkg/cmd"
	"github.com/enroutehq/enroute/pkg/collaborators"
	"github.com/enroutehq/enroute/pkg/log"
	"github.com/enroutehq/enroute/pkg/otelhelper"
	"github.com/enroutehq/enroute/pkg/runner"
)

const defaultBatchSize = 100

func main() {
	command := &cli.Command{
		Name:                  "enroute-dispatcher",
		EnableShellCompletion: true,
		Usage:                 "Sweep due step executions and consume trigger signals",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dispatcher-id",
				Aliases: []string{"id"},
				Usage:   "Custom dispatcher ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("DISPATCHER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, kafka-go, memory)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "plugins-path",
				Usage:    "Path to the directory containing step handler plugins",
				Value:    "./plugins",
				Required: false,
				Sources:  cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "sweep-cron",
				Usage:   "Cron expression for the due execution sweep",
				Value:   "* * * * *",
				Sources: cli.EnvVars("SWEEP_CRON"),
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Maximum executions claimed per sweep",
				Value:   defaultBatchSize,
				Sources: cli.EnvVars("SWEEP_BATCH_SIZE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis address for the trigger signal queue",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "signal-queue",
				Usage:   "Redis list the trigger signals are consumed from",
				Value:   "",
				Sources: cli.EnvVars("SIGNAL_QUEUE"),
			},
			&cli.StringFlag{
				Name:    "sources-config",
				Usage:   "Path to a YAML file describing signal sources; overrides the Redis flags",
				Value:   "",
				Sources: cli.EnvVars("SOURCES_CONFIG"),
			},
			&cli.StringFlag{
				Name:     "crm-url",
				Usage:    "Base URL of the CRM service",
				Required: true,
				Sources:  cli.EnvVars("CRM_URL"),
			},
			&cli.StringFlag{
				Name:     "delivery-url",
				Usage:    "Base URL of the outbound delivery service",
				Required: true,
				Sources:  cli.EnvVars("DELIVERY_URL"),
			},
			&cli.StringFlag{
				Name:     "ai-url",
				Usage:    "Base URL of the AI decision service",
				Required: true,
				Sources:  cli.EnvVars("AI_URL"),
			},
			&cli.StringFlag{
				Name:    "collaborator-api-key",
				Usage:   "Bearer token for collaborator services",
				Value:   "",
				Sources: cli.EnvVars("COLLABORATOR_API_KEY"),
			},
			&cli.IntFlag{
				Name:    "max-retries",
				Usage:   "Step failure retries before the enrollment fails",
				Value:   3,
				Sources: cli.EnvVars("MAX_RETRIES"),
			},
			&cli.DurationFlag{
				Name:    "retry-backoff",
				Usage:   "Base delay before a step retry, doubled per attempt",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("RETRY_BACKOFF"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			dispatcherID := command.String("dispatcher-id")
			if dispatcherID == "" {
				dispatcherID = fmt.Sprintf("dispatcher-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("enroute-dispatcher").With("dispatcher_id", dispatcherID)

			logger.InfoContext(ctx, "Initializing Enroute Dispatcher")

			tracer, err := otelhelper.NewTracer(ctx, "enroute-dispatcher")
			if err != nil {
				logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)
			}

			registry := cmd.NewRegistry(logger, command.String("plugins-path"))

			eventBus := cmd.NewEventBus(command.String("event-bus"), "enroute-dispatcher", logger, tracer)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			client := collaborators.NewClient(collaborators.Config{
				CRMBaseURL:      command.String("crm-url"),
				DeliveryBaseURL: command.String("delivery-url"),
				AIBaseURL:       command.String("ai-url"),
				APIKey:          command.String("collaborator-api-key"),
			})

			service, err := NewService(
				dispatcherID,
				persistence,
				eventBus,
				registry,
				client,
				tracer,
				logger,
				ServiceConfig{
					SweepCron: command.String("sweep-cron"),
					BatchSize: command.Int("batch-size"),
					RedisURL:    command.String("redis-url"),
					Queue:       command.String("signal-queue"),
					SourcesPath: command.String("sources-config"),
					Runner: runner.Config{
						WorkerID:     dispatcherID,
						MaxRetries:   command.Int("max-retries"),
						RetryBackoff: command.Duration("retry-backoff"),
					},
				},
			)
			if err != nil {
				return err
			}

			if err := service.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start dispatcher", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
