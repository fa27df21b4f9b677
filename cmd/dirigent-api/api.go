// Package main provides the Dirigent boundary API server.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dirigent-dev/dirigent/pkg/eventbus"
	"github.com/dirigent-dev/dirigent/pkg/gates"
	"github.com/dirigent-dev/dirigent/pkg/persistence"
	"github.com/dirigent-dev/dirigent/pkg/planner"
	"github.com/dirigent-dev/dirigent/pkg/registry"
	"github.com/dirigent-dev/dirigent/pkg/runner"
	"github.com/dirigent-dev/dirigent/pkg/web"
	"github.com/dirigent-dev/dirigent/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	planner     planner.Planner
	waker       gates.Waker
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	plan planner.Planner,
	waker gates.Waker,
) *API {
	return &API{
		logger:      logger,
		persistence: p,
		eventBus:    eventBus,
		planner:     plan,
		waker:       waker,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App(ctx context.Context) (*fiber.App, error) {
	reg := registry.NewRegistry(a.logger, a.persistence.WorkerRepository())
	if err := reg.Load(ctx); err != nil {
		return nil, err
	}

	service := workflow.NewService(a.logger, a.persistence.WorkflowRepository(), a.planner, reg, a.eventBus)
	gateManager := gates.NewManager(a.logger, a.persistence.GateRepository(), a.eventBus, a.waker, gates.Config{})

	// Handles are process-local; this registry only ever stops invocations
	// started by an engine embedded in the same process.
	handles := runner.NewHandleRegistry()

	handlers := web.NewAPIHandlers(service, gateManager, a.persistence, handles, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Dirigent API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.StartWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/resume", handlers.ResumeWorkflow)
	w.Get("/:id/runs", handlers.GetWorkflowRuns)
	w.Get("/:id/gates", handlers.GetWorkflowGates)

	app.Post("/gates/:id/resolve", handlers.ResolveGate)
	app.Delete("/runs/:id/process", handlers.StopRunProcess)

	return app, nil
}

func (a *API) Start(ctx context.Context, port int) error {
	app, err := a.App(ctx)
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
