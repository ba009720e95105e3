package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dukex/runledger/pkg/cmd"
	"github.com/dukex/runledger/pkg/eventbus"
	"github.com/dukex/runledger/pkg/log"
	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/dukex/runledger/pkg/services"
	"github.com/dukex/runledger/pkg/workflow"
	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"
)

var (
	errExecutionIDRequired = errors.New("an execution id is required")
	errQueueRequired       = errors.New("reruns are queued for a worker; set --event-bus=kafka")
	errInvalidInterval     = errors.New("--interval must be positive")
)

// session is the store and services one command runs against.
type session struct {
	store      persistence.Persistence
	bus        eventbus.EventBus
	executions *services.Executions
	owner      string
}

func openSession(ctx context.Context, command *cli.Command) (*session, error) {
	logger := log.WithModule("runledger-cli")

	store, err := cmd.OpenPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, err
	}

	s := &session{store: store, owner: command.String("owner")}

	var dispatcher workflow.Dispatcher = unavailableDispatcher{}

	if command.String("event-bus") == "kafka" {
		s.bus = cmd.NewEventBus(cmd.BusConfig{Provider: "kafka", Brokers: command.String("kafka-brokers")}, logger)
		dispatcher = workflow.NewQueueDispatcher(s.bus)
	}

	launcher := workflow.NewLauncher(store, dispatcher, logger)
	s.executions = services.NewExecutions(store, launcher, validator.New(validator.WithRequiredStructEnabled()), logger)

	return s, nil
}

func (s *session) Close(ctx context.Context) error {
	var errs []error

	if s.bus != nil {
		errs = append(errs, s.bus.Close())
	}

	errs = append(errs, s.store.Close(ctx))

	return errors.Join(errs...)
}

// withSession opens a session for the duration of fn.
func withSession(ctx context.Context, command *cli.Command, fn func(*session) error) (err error) {
	s, err := openSession(ctx, command)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, s.Close(context.WithoutCancel(ctx)))
	}()

	return fn(s)
}

type unavailableDispatcher struct{}

func (unavailableDispatcher) Dispatch(context.Context, *models.Execution) error {
	return errQueueRequired
}

func filtersFrom(command *cli.Command) services.ExecutionFilters {
	return services.ExecutionFilters{
		Status:      models.ExecutionStatus(command.String("status")),
		TriggerType: models.TriggerType(command.String("trigger-type")),
		Search:      command.String("search"),
		WorkflowID:  command.String("workflow"),
	}
}

func executionID(command *cli.Command) (string, error) {
	id := command.Args().First()
	if id == "" {
		return "", errExecutionIDRequired
	}

	return id, nil
}

func listExecutions(ctx context.Context, command *cli.Command) error {
	return withSession(ctx, command, func(s *session) error {
		page, err := s.executions.List(ctx, s.owner, services.ListExecutionsRequest{
			ExecutionFilters: filtersFrom(command),
			Page:             int(command.Int("page")),
			PageSize:         int(command.Int("page-size")),
		})
		if err != nil {
			return err
		}

		return writeTable(command.Root().Writer, page)
	})
}

func executionStats(ctx context.Context, command *cli.Command) error {
	return withSession(ctx, command, func(s *session) error {
		stats, err := s.executions.Stats(ctx, s.owner, filtersFrom(command))
		if err != nil {
			return err
		}

		return writeJSON(command.Root().Writer, stats)
	})
}

func showExecution(ctx context.Context, command *cli.Command) error {
	id, err := executionID(command)
	if err != nil {
		return err
	}

	return withSession(ctx, command, func(s *session) error {
		fetch := func(ctx context.Context) (*models.ExecutionDetail, error) {
			return s.executions.FetchByID(ctx, s.owner, id)
		}

		if command.Bool("follow") {
			return followExecution(ctx, command.Root().Writer, command.Duration("interval"), fetch)
		}

		detail, err := fetch(ctx)
		if err != nil {
			return err
		}

		return writeJSON(command.Root().Writer, detail)
	})
}

// followExecution polls the execution and prints each node status change
// until the execution reaches a terminal status.
func followExecution(
	ctx context.Context,
	w io.Writer,
	interval time.Duration,
	fetch func(context.Context) (*models.ExecutionDetail, error),
) error {
	if interval <= 0 {
		return errInvalidInterval
	}

	tracker := eventbus.NewStatusTracker()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		detail, err := fetch(ctx)
		if err != nil {
			return err
		}

		for _, state := range tracker.ApplyLogs(detail.Logs) {
			fmt.Fprintf(w, "%s  %-10s %s\n", state.UpdatedAt.Format(time.RFC3339), state.Status, state.NodeID)
		}

		if detail.Status.IsTerminal() {
			if detail.Error != "" {
				_, err = fmt.Fprintf(w, "execution %s %s: %s\n", detail.ID, detail.Status, detail.Error)
			} else {
				_, err = fmt.Fprintf(w, "execution %s %s\n", detail.ID, detail.Status)
			}

			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func cancelExecution(ctx context.Context, command *cli.Command) error {
	id, err := executionID(command)
	if err != nil {
		return err
	}

	return withSession(ctx, command, func(s *session) error {
		execution, err := s.executions.Cancel(ctx, s.owner, id)
		if err != nil {
			return err
		}

		return writeJSON(command.Root().Writer, execution)
	})
}

func rerunExecution(ctx context.Context, command *cli.Command) error {
	id, err := executionID(command)
	if err != nil {
		return err
	}

	// Launch stores the new row before dispatching; refuse early rather than
	// leave a QUEUED execution no worker will ever see.
	if command.String("event-bus") != "kafka" {
		return errQueueRequired
	}

	return withSession(ctx, command, func(s *session) error {
		result, err := s.executions.Rerun(ctx, s.owner, id)
		if err != nil {
			return err
		}

		return writeJSON(command.Root().Writer, result)
	})
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

func writeTable(w io.Writer, page *services.PaginatedExecutions) error {
	table := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(table, "ID\tWORKFLOW\tSTATUS\tTRIGGER\tSTARTED\tDURATION")

	for _, execution := range page.Items {
		duration := "-"
		if d, ok := execution.Duration(); ok {
			duration = d.Round(time.Millisecond).String()
		}

		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\n",
			execution.ID,
			execution.WorkflowName,
			execution.Status,
			execution.TriggerType,
			execution.StartedAt.Format(time.RFC3339),
			duration,
		)
	}

	if err := table.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "page %d of %d (%d executions)\n", page.Page, max(page.TotalPages, 1), page.TotalCount)

	return err
}
