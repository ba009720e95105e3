package models

import (
	"time"

	"github.com/google/uuid"
)

// TriggerType identifies what started an execution.
type TriggerType string

const (
	TriggerTypeManual   TriggerType = "MANUAL"
	TriggerTypeWebhook  TriggerType = "WEBHOOK"
	TriggerTypeSchedule TriggerType = "SCHEDULE"
	TriggerTypeAPI      TriggerType = "API"
)

// IsValid reports whether t is a known trigger type.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerTypeManual, TriggerTypeWebhook, TriggerTypeSchedule, TriggerTypeAPI:
		return true
	default:
		return false
	}
}

// Execution is one run of a workflow.
type Execution struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	WorkflowName string          `json:"workflow_name"` // Snapshot taken when the run was accepted
	Owner        string          `json:"owner,omitempty"`
	Status       ExecutionStatus `json:"status"`
	TriggerType  TriggerType     `json:"trigger_type"`

	// TriggerPayload is handed to trigger nodes and replayed on rerun.
	TriggerPayload map[string]any `json:"trigger_payload,omitempty"`

	// Error records a graph failure or a summary of the failing node.
	Error string `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewExecution creates a QUEUED execution snapshotting the workflow name and owner.
func NewExecution(workflow *Workflow, triggerType TriggerType, payload map[string]any, now time.Time) *Execution {
	if payload == nil {
		payload = map[string]any{}
	}

	return &Execution{
		ID:             uuid.New().String(),
		WorkflowID:     workflow.ID,
		WorkflowName:   workflow.Name,
		Owner:          workflow.Owner,
		Status:         ExecutionStatusQueued,
		TriggerType:    triggerType,
		TriggerPayload: payload,
		StartedAt:      now.UTC(),
	}
}

// TransitionTo moves the execution to next. Entering a terminal status stamps
// CompletedAt; reason is kept as the execution error when next is FAILED.
func (e *Execution) TransitionTo(next ExecutionStatus, reason string, at time.Time) error {
	status, err := e.Status.Transition(next)
	if err != nil {
		return err
	}

	e.Status = status

	if status.IsTerminal() {
		completedAt := at.UTC()
		e.CompletedAt = &completedAt
	}

	if status == ExecutionStatusFailed {
		e.Error = reason
	}

	return nil
}

// Duration returns completedAt - startedAt, or false while the run is not terminal.
func (e *Execution) Duration() (time.Duration, bool) {
	if e.CompletedAt == nil {
		return 0, false
	}

	return e.CompletedAt.Sub(e.StartedAt), true
}

// Clone returns a deep enough copy for stores that hand out snapshots.
func (e *Execution) Clone() *Execution {
	clone := *e

	if e.CompletedAt != nil {
		completedAt := *e.CompletedAt
		clone.CompletedAt = &completedAt
	}

	clone.TriggerPayload = CloneDocument(e.TriggerPayload)

	return &clone
}

// ExecutionDetail is an execution with its log rows ordered by StartedAt.
type ExecutionDetail struct {
	*Execution

	Logs []*ExecutionLog `json:"logs"`
}
