// Package main provides the Enroute API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/enroutehq/enroute/pkg/enrollment"
	"github.com/enroutehq/enroute/pkg/eventbus"
	"github.com/enroutehq/enroute/pkg/journey"
	"github.com/enroutehq/enroute/pkg/persistence"
	"github.com/enroutehq/enroute/pkg/registry"
	"github.com/enroutehq/enroute/pkg/web"
)

type API struct {
	logger        *slog.Logger
	persistence   persistence.Persistence
	registry      *registry.Registry
	eventBus      eventbus.EventBus
	validate      *validator.Validate
	exitOnArchive bool
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	exitOnArchive bool,
) *API {
	return &API{
		logger:        logger,
		persistence:   persistence,
		registry:      registry,
		eventBus:      eventBus,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		exitOnArchive: exitOnArchive,
	}
}

func (a *API) App() *fiber.App {
	policy := journey.LifecyclePolicy{ExitEnrollmentsOnArchive: a.exitOnArchive}
	lifecycle := journey.NewManager(a.persistence, policy, a.logger)
	store := journey.NewStore(a.persistence, a.registry, a.logger)
	controller := enrollment.NewController(a.persistence, a.eventBus, a.logger)
	matcher := enrollment.NewMatcher(a.persistence, controller, a.logger)

	handlers := web.NewAPIHandlers(lifecycle, store, controller, matcher, a.registry, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Enroute API")
	})

	j := app.Group("/journeys")
	j.Get("/", handlers.GetJourneys)
	j.Post("/", handlers.CreateJourney)
	j.Get("/:id", handlers.GetJourney)
	j.Patch("/:id", handlers.UpdateJourney)
	j.Delete("/:id", handlers.DeleteJourney)
	j.Post("/:id/activate", handlers.ActivateJourney)
	j.Post("/:id/pause", handlers.PauseJourney)
	j.Post("/:id/resume", handlers.ResumeJourney)
	j.Post("/:id/archive", handlers.ArchiveJourney)
	j.Post("/:id/clone", handlers.CloneJourney)
	j.Get("/:id/validate", handlers.ValidateJourney)

	// Graph endpoints:
	j.Get("/:id/steps", handlers.GetSteps)
	j.Post("/:id/steps", handlers.CreateStep)
	j.Post("/:id/steps/connect", handlers.ConnectSteps)
	j.Post("/:id/steps/disconnect", handlers.DisconnectSteps)
	j.Patch("/:id/steps/positions", handlers.UpdatePositions)
	j.Delete("/:id/steps/:stepId", handlers.DeleteStep)

	// Enrollment endpoints:
	j.Post("/:id/enrollments", handlers.EnrollContact)
	j.Get("/:id/enrollments", handlers.GetJourneyEnrollments)

	e := app.Group("/enrollments")
	e.Get("/:id", handlers.GetEnrollment)
	e.Post("/:id/exit", handlers.ExitEnrollment)
	e.Post("/:id/pause", handlers.PauseEnrollment)
	e.Post("/:id/resume", handlers.ResumeEnrollment)
	e.Get("/:id/executions", handlers.GetEnrollmentExecutions)

	app.Post("/executions/:id/events", handlers.RecordDeliveryEvent)
	app.Post("/signals", handlers.Signal)
	app.Get("/step-types", handlers.GetStepTypes)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
