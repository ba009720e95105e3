// Package main provides the Runledger queue worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/runledger/pkg/cmd"
	"github.com/dukex/runledger/pkg/log"
	"github.com/dukex/runledger/pkg/otelhelper"
	"github.com/dukex/runledger/pkg/workflow"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultMaxConcurrentExecutions = 8
	shutdownTimeout                = 30 * time.Second
)

var errQueueRequired = errors.New("the worker consumes the kafka execution queue; set --event-bus=kafka")

func main() {
	command := &cli.Command{
		Name:                  "runledger-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute queued workflow runs",
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
				Usage:   "Event bus type (kafka)",
				Value:   "kafka",
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
				Usage:   "Executions this worker runs at once",
				Value:   defaultMaxConcurrentExecutions,
				Sources: cli.EnvVars("MAX_CONCURRENT_EXECUTIONS"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("runledger-worker").With("worker_id", workerID)

			busConfig := cmd.BusConfig{
				Provider: command.String("event-bus"),
				Brokers:  command.String("kafka-brokers"),
			}
			if busConfig.Provider != "kafka" {
				return errQueueRequired
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing Runledger Worker")

			tracer, shutdownTracer, err := otelhelper.NewTracer(ctx, "runledger-worker", command.Bool("otel-enabled"))
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			defer func() {
				if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
				}
			}()

			registry := cmd.NewRegistry(logger)

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			// Publish only: nothing subscribes here, so no token issuer is needed.
			statusBus := cmd.NewStatusBus(busConfig, nil, logger)
			defer func() {
				if err := statusBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close status bus", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(busConfig, logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			executor := workflow.NewExecutor(persistence, registry, statusBus, logger, workflow.WithTracer(tracer))
			worker := workflow.NewWorker(workerID, eventBus, executor, int64(command.Int("max-concurrent-executions")), logger)

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)

				return err
			}

			logger.InfoContext(ctx, "Worker started successfully")

			<-ctx.Done()

			logger.Info("Shutting down worker...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			return worker.Shutdown(shutdownCtx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		os.Exit(1)
	}
}
