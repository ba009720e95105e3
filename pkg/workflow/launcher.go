package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
)

// ErrInvalidTrigger is returned for a trigger event that cannot start a run.
var ErrInvalidTrigger = errors.New("invalid trigger event")

// TriggerEvent is what a trigger source delivers to start an execution.
type TriggerEvent struct {
	WorkflowID  string
	TriggerType models.TriggerType
	Payload     map[string]any
}

// Dispatcher hands a QUEUED execution to whatever will run it.
type Dispatcher interface {
	Dispatch(ctx context.Context, execution *models.Execution) error
}

// Launcher turns trigger events into QUEUED executions.
type Launcher struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

func NewLauncher(store persistence.Persistence, dispatcher Dispatcher, logger *slog.Logger) *Launcher {
	return &Launcher{
		workflows:  store.WorkflowRepository(),
		executions: store.ExecutionRepository(),
		dispatcher: dispatcher,
		logger:     logger.With("module", "launcher"),
		now:        time.Now,
	}
}

// Launch creates the execution row, snapshotting the workflow name and owner,
// and dispatches it. The returned execution is QUEUED; it may already have
// moved on by the time the caller reads it back.
func (l *Launcher) Launch(ctx context.Context, event TriggerEvent) (*models.Execution, error) {
	if event.WorkflowID == "" {
		return nil, fmt.Errorf("%w: workflow id is required", ErrInvalidTrigger)
	}

	if !event.TriggerType.IsValid() {
		return nil, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, event.TriggerType)
	}

	workflow, err := l.workflows.GetByID(ctx, event.WorkflowID)
	if err != nil {
		return nil, err
	}

	execution := models.NewExecution(workflow, event.TriggerType, models.CloneDocument(event.Payload), l.now())

	if err := l.executions.Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	logger := l.logger.With("execution_id", execution.ID, "workflow_id", workflow.ID, "trigger_type", event.TriggerType)

	if err := l.dispatcher.Dispatch(ctx, execution); err != nil {
		logger.ErrorContext(ctx, "Failed to dispatch execution", "error", err)

		dispatchErr := fmt.Errorf("failed to dispatch execution %s: %w", execution.ID, err)

		failed, failErr := l.abandon(context.WithoutCancel(ctx), execution.ID, dispatchErr.Error())
		if failErr != nil {
			logger.ErrorContext(ctx, "Failed to record dispatch failure", "error", failErr)

			return execution, dispatchErr
		}

		return failed, dispatchErr
	}

	logger.InfoContext(ctx, "Execution queued")

	return execution, nil
}

// abandon records an execution nothing will run as FAILED. The row walks the
// legal path PENDING -> RUNNING -> FAILED, so it never sits QUEUED forever.
func (l *Launcher) abandon(ctx context.Context, executionID, reason string) (*models.Execution, error) {
	var execution *models.Execution

	for _, status := range []models.ExecutionStatus{
		models.ExecutionStatusPending,
		models.ExecutionStatusRunning,
		models.ExecutionStatusFailed,
	} {
		message := ""
		if status == models.ExecutionStatusFailed {
			message = reason
		}

		updated, err := l.executions.Transition(ctx, executionID, status, message, l.now())
		if err != nil {
			return nil, err
		}

		execution = updated
	}

	return execution, nil
}
