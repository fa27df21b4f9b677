package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dirigent-dev/dirigent/pkg/cmd"
	"github.com/dirigent-dev/dirigent/pkg/log"
	"github.com/dirigent-dev/dirigent/pkg/planner"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "dirigent-api",
		Usage:                 "Create workflows and resolve approval gates",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
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
				Usage:   "Redis URL for gate wake hints (optional)",
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
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Dirigent API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "dirigent-api", logger)
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

			api := NewAPI(
				logger,
				persistence,
				eventBus,
				plan,
				cmd.NewGateWaker(command.String("redis-url")),
			)

			if err := api.Start(ctx, command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
