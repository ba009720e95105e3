package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/runledger/pkg/eventbus"
	"github.com/dukex/runledger/pkg/events"
	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/otelhelper"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/dukex/runledger/pkg/protocol"
	"github.com/dukex/runledger/pkg/registry"
	"github.com/dukex/runledger/pkg/template"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Executor drives one execution from PENDING to a terminal status, visiting
// nodes one at a time in graph order.
//
// Node, template and graph failures never escape Execute: they are recorded on
// the failing log row and on the execution. Execute only returns an error when
// the store itself fails.
type Executor struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	logs       persistence.ExecutionLogRepository
	registry   *registry.Registry
	publisher  eventbus.StatusPublisher
	tracer     trace.Tracer
	logger     *slog.Logger
	now        func() time.Time
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

func WithNow(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

func NewExecutor(
	store persistence.Persistence,
	registry *registry.Registry,
	publisher eventbus.StatusPublisher,
	logger *slog.Logger,
	opts ...ExecutorOption,
) *Executor {
	executor := &Executor{
		workflows:  store.WorkflowRepository(),
		executions: store.ExecutionRepository(),
		logs:       store.ExecutionLogRepository(),
		registry:   registry,
		publisher:  publisher,
		tracer:     otelhelper.NoopTracer(),
		logger:     logger.With("module", "workflow_executor"),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute runs the execution identified by executionID. A QUEUED execution is
// first moved to PENDING. Executions that are already terminal, or that were
// cancelled before they started, are left untouched.
func (e *Executor) Execute(ctx context.Context, executionID string) error {
	logger := e.logger.With("execution_id", executionID)

	execution, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to load execution: %w", err)
	}

	logger = logger.With("workflow_id", execution.WorkflowID)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "execution.run",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
		attribute.String(otelhelper.WorkflowNameKey, execution.WorkflowName),
		attribute.String(otelhelper.TriggerTypeKey, string(execution.TriggerType)),
	)
	defer span.End()

	execution, started, err := e.start(ctx, execution)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	if !started {
		logger.InfoContext(ctx, "Execution not runnable, skipping", "status", execution.Status)

		return nil
	}

	logger.InfoContext(ctx, "Starting execution")

	status, reason, err := e.run(ctx, logger, execution)
	if err != nil {
		otelhelper.SetError(span, err)

		// Leave an inspectable terminal row even when the store misbehaved mid-run.
		_ = e.finish(context.WithoutCancel(ctx), logger, execution.ID, models.ExecutionStatusFailed, err.Error())

		return err
	}

	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(status)))

	if status == models.ExecutionStatusFailed {
		otelhelper.SetError(span, errors.New(reason))
	}

	if status == models.ExecutionStatusCancelled {
		logger.InfoContext(ctx, "Execution cancelled, stopped at node boundary")

		return nil
	}

	// An interrupted worker still records the outcome.
	return e.finish(context.WithoutCancel(ctx), logger, execution.ID, status, reason)
}

// start moves the execution to RUNNING. It reports false when the execution is
// not in a state this worker may run.
func (e *Executor) start(ctx context.Context, execution *models.Execution) (*models.Execution, bool, error) {
	if execution.Status == models.ExecutionStatusQueued {
		next, err := e.executions.Transition(ctx, execution.ID, models.ExecutionStatusPending, "", e.now())
		if err != nil {
			if models.IsInvalidTransition(err) {
				return execution, false, nil
			}

			return nil, false, fmt.Errorf("failed to mark execution pending: %w", err)
		}

		execution = next
	}

	if execution.Status != models.ExecutionStatusPending {
		return execution, false, nil
	}

	next, err := e.executions.Transition(ctx, execution.ID, models.ExecutionStatusRunning, "", e.now())
	if err != nil {
		if models.IsInvalidTransition(err) {
			// Cancelled while pending.
			return execution, false, nil
		}

		return nil, false, fmt.Errorf("failed to mark execution running: %w", err)
	}

	return next, true, nil
}

// run visits the nodes and returns the terminal status the execution should
// take, with the failure reason when FAILED.
func (e *Executor) run(ctx context.Context, logger *slog.Logger, execution *models.Execution) (models.ExecutionStatus, string, error) {
	workflow, err := e.workflows.GetByID(ctx, execution.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return models.ExecutionStatusFailed, "workflow not found: " + execution.WorkflowID, nil
		}

		return "", "", fmt.Errorf("failed to load workflow: %w", err)
	}

	order, err := Plan(workflow)
	if err != nil {
		logger.WarnContext(ctx, "Workflow graph rejected", "error", err)

		return models.ExecutionStatusFailed, err.Error(), nil
	}

	outputs := make(map[string]any)

	for _, node := range order {
		cancelled, err := e.cancelled(ctx, execution.ID)
		if err != nil {
			return "", "", err
		}

		if cancelled {
			return models.ExecutionStatusCancelled, "", nil
		}

		if ctx.Err() != nil {
			return models.ExecutionStatusFailed, "execution interrupted: " + ctx.Err().Error(), nil
		}

		output, nodeErr, err := e.visit(ctx, logger, execution, node, outputs)
		if err != nil {
			return "", "", err
		}

		if nodeErr != nil {
			return models.ExecutionStatusFailed, fmt.Sprintf("node %s (%s) failed: %v", node.Name, node.ID, nodeErr), nil
		}

		if node.VariableName != "" {
			outputs[node.VariableName] = output
		}
	}

	return models.ExecutionStatusCompleted, "", nil
}

// visit runs one node. nodeErr is a recorded node failure; err is a store failure.
func (e *Executor) visit(
	ctx context.Context,
	logger *slog.Logger,
	execution *models.Execution,
	node *models.WorkflowNode,
	outputs map[string]any,
) (output map[string]any, nodeErr error, err error) {
	logger = logger.With("node_id", node.ID, "node_type", node.Type)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "node.execute",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
	)
	defer span.End()

	input, resolveErr := template.ResolveConfig(node.Config, outputs)
	if resolveErr != nil {
		// The row records the unresolved configuration so the broken reference is visible.
		input = models.CloneDocument(node.Config)
	}

	entry := models.NewRunningLog(execution.ID, node, input, e.now())

	if err := e.logs.CreateRunning(ctx, entry); err != nil {
		otelhelper.SetError(span, err)

		return nil, nil, fmt.Errorf("failed to record node start: %w", err)
	}

	e.publish(ctx, logger, entry)

	nodeErr = resolveErr
	if nodeErr == nil {
		output, nodeErr = e.invoke(ctx, execution, node, input)
	}

	if nodeErr != nil {
		logger.WarnContext(ctx, "Node failed", "error", nodeErr)
		otelhelper.SetError(span, nodeErr, attribute.String(otelhelper.NodeIDKey, node.ID))

		failed, err := e.logs.CompleteFailure(ctx, entry.ID, nodeErr.Error(), e.now())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to record node failure: %w", err)
		}

		e.publish(ctx, logger, failed)

		return nil, nodeErr, nil
	}

	completed, err := e.logs.CompleteSuccess(ctx, entry.ID, output, e.now())
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, nil, fmt.Errorf("failed to record node completion: %w", err)
	}

	e.publish(ctx, logger, completed)
	logger.DebugContext(ctx, "Node completed")

	return completed.OutputContext, nil, nil
}

// invoke calls the node executor, turning errors and panics into *models.ExecutorError.
func (e *Executor) invoke(ctx context.Context, execution *models.Execution, node *models.WorkflowNode, input map[string]any) (output map[string]any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			output = nil
			err = &models.ExecutorError{NodeID: node.ID, NodeType: node.Type, Err: fmt.Errorf("panic: %v", recovered)}
		}
	}()

	executor, err := e.registry.Get(node.Type)
	if err != nil {
		return nil, &models.ExecutorError{NodeID: node.ID, NodeType: node.Type, Err: err}
	}

	if err := e.registry.Validate(node.Type, input); err != nil {
		return nil, &models.ExecutorError{NodeID: node.ID, NodeType: node.Type, Err: err}
	}

	output, err = executor.Execute(ctx, protocol.ExecuteRequest{
		ExecutionID:    execution.ID,
		NodeID:         node.ID,
		NodeType:       node.Type,
		Input:          input,
		CredentialRef:  node.CredentialRef,
		TriggerPayload: execution.TriggerPayload,
	})
	if err != nil {
		return nil, &models.ExecutorError{NodeID: node.ID, NodeType: node.Type, Err: err}
	}

	if output == nil {
		output = map[string]any{}
	}

	return output, nil
}

func (e *Executor) cancelled(ctx context.Context, executionID string) (bool, error) {
	current, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		return false, fmt.Errorf("failed to reload execution: %w", err)
	}

	return current.Status == models.ExecutionStatusCancelled, nil
}

// finish moves a RUNNING execution to its terminal status. A concurrent cancel
// wins: the execution then stays CANCELLED.
func (e *Executor) finish(ctx context.Context, logger *slog.Logger, executionID string, status models.ExecutionStatus, reason string) error {
	_, err := e.executions.Transition(ctx, executionID, status, reason, e.now())
	if err != nil {
		if models.IsInvalidTransition(err) {
			logger.InfoContext(ctx, "Execution already terminal, keeping its status", "wanted", status)

			return nil
		}

		return fmt.Errorf("failed to finish execution: %w", err)
	}

	if status == models.ExecutionStatusFailed {
		logger.WarnContext(ctx, "Execution failed", "reason", reason)
	} else {
		logger.InfoContext(ctx, "Execution finished", "status", status)
	}

	return nil
}

// publish emits the live status of a log row. The bus is best effort, so a
// publish failure is logged and never fails the node.
func (e *Executor) publish(ctx context.Context, logger *slog.Logger, entry *models.ExecutionLog) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.PublishNodeStatus(ctx, events.NodeStatusFromLog(entry))
	if err != nil {
		logger.WarnContext(ctx, "Failed to publish node status", "status", entry.Status, "error", err)
	}
}
