package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/runledger/pkg/cmd"
	"github.com/dukex/runledger/pkg/log"
	"github.com/dukex/runledger/pkg/otelhelper"
	"github.com/dukex/runledger/pkg/triggers/schedule"
	"github.com/dukex/runledger/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort                    = 9091
	defaultMaxConcurrentExecutions = 8
	defaultSubscriptionTTL         = 5 * time.Minute
	shutdownTimeout                = 30 * time.Second
)

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "runledger-api",
		Usage:                 "Serve execution history, control and the live status stream",
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
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (memory://, file://path, postgres://...)",
				Value:   "memory://",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.IntFlag{
				Name:    "max-concurrent-executions",
				Usage:   "Executions run at once by the in-process dispatcher",
				Value:   defaultMaxConcurrentExecutions,
				Sources: cli.EnvVars("MAX_CONCURRENT_EXECUTIONS"),
			},
			&cli.StringFlag{
				Name:     "subscription-secret",
				Usage:    "Secret used to sign subscription tokens",
				Required: false,
				Sources:  cli.EnvVars("SUBSCRIPTION_SECRET"),
			},
			&cli.DurationFlag{
				Name:    "subscription-ttl",
				Usage:   "Lifetime of subscription tokens",
				Value:   defaultSubscriptionTTL,
				Sources: cli.EnvVars("SUBSCRIPTION_TTL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL; when set subscription tokens are stored in Redis and can be revoked",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "enable-scheduler",
				Usage:   "Launch executions for schedule trigger nodes",
				Value:   true,
				Sources: cli.EnvVars("ENABLE_SCHEDULER"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
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

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing Runledger API")

			tracer, shutdownTracer, err := otelhelper.NewTracer(ctx, "runledger-api", command.Bool("otel-enabled"))
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			defer func() {
				if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			registry := cmd.NewRegistry(logger)

			issuer, err := cmd.NewTokenIssuer(
				command.String("redis-url"),
				command.String("subscription-secret"),
				command.Duration("subscription-ttl"),
			)
			if err != nil {
				return fmt.Errorf("failed to create subscription token issuer: %w", err)
			}

			busConfig := cmd.BusConfig{
				Provider: command.String("event-bus"),
				Brokers:  command.String("kafka-brokers"),
			}

			statusBus := cmd.NewStatusBus(busConfig, issuer, logger)
			defer func() {
				if err := statusBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close status bus", "error", err)
				}
			}()

			var dispatcher workflow.Dispatcher

			if busConfig.Provider == "kafka" {
				eventBus := cmd.NewEventBus(busConfig, logger)
				defer func() {
					if err := eventBus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()

				dispatcher = workflow.NewQueueDispatcher(eventBus)
			} else {
				executor := workflow.NewExecutor(persistence, registry, statusBus, logger, workflow.WithTracer(tracer))
				local := workflow.NewLocalDispatcher(executor, int64(command.Int("max-concurrent-executions")), logger)

				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
					defer cancel()

					if err := local.Shutdown(shutdownCtx); err != nil {
						logger.ErrorContext(ctx, "Failed to drain running executions", "error", err)
					}
				}()

				dispatcher = local
			}

			launcher := workflow.NewLauncher(persistence, dispatcher, logger)

			if command.Bool("enable-scheduler") {
				scheduler := schedule.NewScheduler(persistence.WorkflowRepository(), launcher, logger)
				if err := scheduler.Start(ctx); err != nil {
					return fmt.Errorf("failed to start scheduler: %w", err)
				}

				defer scheduler.Stop()
			}

			api := NewAPI(logger, persistence, registry, statusBus, launcher)
			app := api.App()

			go func() {
				<-ctx.Done()

				logger.Info("Shutting down Runledger API")

				if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
					logger.Error("Failed to shutdown API server", "error", err)
				}
			}()

			logger.InfoContext(ctx, "Runledger API listening", "port", command.Int("port"))

			if err := app.Listen(fmt.Sprintf(":%d", command.Int("port")), fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		os.Exit(1)
	}
}
