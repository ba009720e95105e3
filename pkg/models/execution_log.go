package models

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionLog is the durable record of one node visited during an execution.
// A row is created RUNNING and finalized exactly once.
type ExecutionLog struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id"`
	NodeName    string          `json:"node_name"`
	NodeType    string          `json:"node_type"`
	Status      ExecutionStatus `json:"status"`

	InputContext  map[string]any `json:"input_context"`
	OutputContext map[string]any `json:"output_context,omitempty"`
	Error         string         `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRunningLog creates the RUNNING row written right before a node executor is invoked.
func NewRunningLog(executionID string, node *WorkflowNode, input map[string]any, now time.Time) *ExecutionLog {
	if input == nil {
		input = map[string]any{}
	}

	return &ExecutionLog{
		ID:           uuid.New().String(),
		ExecutionID:  executionID,
		NodeID:       node.ID,
		NodeName:     node.Name,
		NodeType:     node.Type,
		Status:       ExecutionStatusRunning,
		InputContext: input,
		StartedAt:    now.UTC(),
	}
}

// Complete finalizes the row as COMPLETED with the node output.
func (l *ExecutionLog) Complete(output map[string]any, at time.Time) error {
	if err := l.finalize(ExecutionStatusCompleted, at); err != nil {
		return err
	}

	if output == nil {
		output = map[string]any{}
	}

	l.OutputContext = output

	return nil
}

// Fail finalizes the row as FAILED with errMsg.
func (l *ExecutionLog) Fail(errMsg string, at time.Time) error {
	if err := l.finalize(ExecutionStatusFailed, at); err != nil {
		return err
	}

	l.OutputContext = nil
	l.Error = errMsg

	return nil
}

func (l *ExecutionLog) finalize(status ExecutionStatus, at time.Time) error {
	if l.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}

	next, err := l.Status.Transition(status)
	if err != nil {
		return err
	}

	completedAt := at.UTC()
	l.Status = next
	l.CompletedAt = &completedAt

	return nil
}

// Clone returns a copy safe to hand out of a store.
func (l *ExecutionLog) Clone() *ExecutionLog {
	clone := *l

	if l.CompletedAt != nil {
		completedAt := *l.CompletedAt
		clone.CompletedAt = &completedAt
	}

	clone.InputContext = CloneDocument(l.InputContext)
	clone.OutputContext = CloneDocument(l.OutputContext)

	return &clone
}
