// Package main provides the runledger admin CLI for inspecting and controlling executions.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dukex/runledger/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "runledger",
		Usage:                 "Inspect and control workflow executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type used to queue reruns (kafka)",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "owner",
				Usage:   "Act as this user; empty sees every execution",
				Sources: cli.EnvVars("RUNLEDGER_OWNER"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:    "executions",
				Aliases: []string{"x"},
				Usage:   "Query and control executions",
				Commands: []*cli.Command{
					{
						Name:    "list",
						Aliases: []string{"ls"},
						Usage:   "List executions, newest first",
						Flags:   append(filterFlags(), pageFlags()...),
						Action:  listExecutions,
					},
					{
						Name:   "stats",
						Usage:  "Show status counts, success rate and average duration",
						Flags:  filterFlags(),
						Action: executionStats,
					},
					{
						Name:      "show",
						Usage:     "Show an execution and its node logs",
						ArgsUsage: "<execution-id>",
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:    "follow",
								Aliases: []string{"f"},
								Usage:   "Print node status changes until the execution finishes",
							},
							&cli.DurationFlag{
								Name:  "interval",
								Usage: "Poll interval used with --follow",
								Value: time.Second,
							},
						},
						Action: showExecution,
					},
					{
						Name:      "cancel",
						Usage:     "Request cancellation of a pending or running execution",
						ArgsUsage: "<execution-id>",
						Action:    cancelExecution,
					},
					{
						Name:      "rerun",
						Usage:     "Queue a new execution with the original trigger payload",
						ArgsUsage: "<execution-id>",
						Action:    rerunExecution,
					},
				},
			},
		},
	}
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "status", Usage: "Only executions in this status"},
		&cli.StringFlag{Name: "trigger-type", Usage: "Only executions started by this trigger type"},
		&cli.StringFlag{Name: "search", Usage: "Case-insensitive workflow name search"},
		&cli.StringFlag{Name: "workflow", Usage: "Only executions of this workflow id"},
	}
}

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "page", Value: 1, Usage: "Page number, starting at 1"},
		&cli.IntFlag{Name: "page-size", Value: 20, Usage: "Rows per page (max 100)"},
	}
}
