// Package main provides the Runledger API server implementation.
package main

import (
	"log/slog"

	"github.com/dukex/runledger/pkg/eventbus"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/dukex/runledger/pkg/registry"
	"github.com/dukex/runledger/pkg/services"
	"github.com/dukex/runledger/pkg/web"
	"github.com/dukex/runledger/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	statusBus   *eventbus.StatusBus
	launcher    *workflow.Launcher
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	statusBus *eventbus.StatusBus,
	launcher *workflow.Launcher,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		registry:    registry,
		statusBus:   statusBus,
		launcher:    launcher,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	executionService := services.NewExecutions(a.persistence, a.launcher, a.validate, a.logger)
	workflowService := services.NewWorkflows(a.persistence, a.launcher, a.validate, a.logger)

	handlers := web.NewAPIHandlers(executionService, workflowService, a.validate, a.registry, a.statusBus, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.persistence.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Runledger API")
	})

	handlers.Register(app)

	return app
}
