// Package main provides the Dirigent workflow execution engine.
package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/dirigent-dev/dirigent/pkg/cmd"
	"github.com/dirigent-dev/dirigent/pkg/log"
	"github.com/dirigent-dev/dirigent/pkg/otelhelper"
	"github.com/dirigent-dev/dirigent/pkg/planner"
)

func main() {
	command := &cli.Command{
		Name:                  "dirigent-engine",
		EnableShellCompletion: true,
		Usage:                 "Run queued workflows to completion",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "engine-id",
				Aliases: []string{"id"},
				Usage:   "Custom engine ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ENGINE_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for gate wake hints (optional, polling works without it)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "planner-url",
				Usage:    "Base URL of the chat completions endpoint used for planning",
				Required: true,
				Sources:  cli.EnvVars("PLANNER_URL"),
			},
			&cli.StringFlag{
				Name:    "planner-model",
				Usage:   "Model name sent to the planner endpoint",
				Value:   "gpt-4o-mini",
				Sources: cli.EnvVars("PLANNER_MODEL"),
			},
			&cli.StringFlag{
				Name:    "planner-api-key",
				Usage:   "API key for the planner endpoint",
				Value:   "",
				Sources: cli.EnvVars("PLANNER_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "sandbox-dir",
				Usage:   "Directory where adopted worker scripts are stored",
				Value:   "./workers/generated",
				Sources: cli.EnvVars("SANDBOX_DIR"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Value:   false,
				Sources: cli.EnvVars("OTEL_ENABLED"),
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

			engineID := command.String("engine-id")
			if engineID == "" {
				engineID = "engine-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("dirigent-engine").With("engine_id", engineID)

			logger.InfoContext(ctx, "Initializing Dirigent engine")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "dirigent-engine", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			plan, err := planner.NewHTTPPlanner(logger, planner.Config{
				BaseURL: command.String("planner-url"),
				Model:   command.String("planner-model"),
				APIKey:  command.String("planner-api-key"),
			})
			if err != nil {
				return err
			}

			var tracer trace.Tracer
			if command.Bool("tracing") {
				tracer, err = otelhelper.NewTracer(ctx, "dirigent-engine")
				if err != nil {
					return err
				}
			}

			manager := NewEngineManager(
				engineID,
				logger,
				persistence,
				eventBus,
				plan,
				cmd.NewGateWaker(command.String("redis-url")),
				tracer,
				command.String("sandbox-dir"),
			)

			if err := manager.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start engine", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
