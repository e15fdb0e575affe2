package main

import (
	"context"
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

func main() {
	command := &cli.Command{
		Name:                  "enroute-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute journey steps",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("enroute-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Enroute Worker")

			tracer, err := otelhelper.NewTracer(ctx, "enroute-worker")
			if err != nil {
				logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)
			}

			registry := cmd.NewRegistry(logger, command.String("plugins-path"))

			eventBus := cmd.NewEventBus(command.String("event-bus"), "enroute-worker", logger, tracer)
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

			worker := NewWorker(
				workerID,
				persistence,
				eventBus,
				registry,
				client,
				tracer,
				logger,
				runner.Config{
					WorkerID:     workerID,
					MaxRetries:   command.Int("max-retries"),
					RetryBackoff: command.Duration("retry-backoff"),
				},
			)

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
