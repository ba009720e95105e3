package models

import (
	"errors"
	"fmt"
)

// Error kinds shared by the orchestrator, the stores and the control services.
var (
	// ErrInvalidTransition indicates an illegal state-machine move.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAlreadyTerminal indicates a second terminal write to a log row.
	ErrAlreadyTerminal = errors.New("execution log already terminal")

	// ErrGraph indicates a cyclic or malformed workflow graph.
	ErrGraph = errors.New("invalid workflow graph")

	// ErrTemplate indicates an unresolvable template reference.
	ErrTemplate = errors.New("unresolvable template reference")

	// ErrExecutor indicates a node executor call failed.
	ErrExecutor = errors.New("node executor failed")
)

// TransitionError describes a rejected status move.
type TransitionError struct {
	From ExecutionStatus
	To   ExecutionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// GraphError describes why a workflow graph cannot be executed.
type GraphError struct {
	NodeID string
	Reason string
}

func (e *GraphError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("invalid workflow graph at node %s: %s", e.NodeID, e.Reason)
	}

	return "invalid workflow graph: " + e.Reason
}

func (e *GraphError) Is(target error) bool {
	return target == ErrGraph
}

// TemplateError describes a reference that could not be resolved.
type TemplateError struct {
	Reference string
	Reason    string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("cannot resolve {{%s}}: %s", e.Reference, e.Reason)
}

func (e *TemplateError) Is(target error) bool {
	return target == ErrTemplate
}

// ExecutorError wraps a failure returned (or raised) by a node executor.
type ExecutorError struct {
	NodeID   string
	NodeType string
	Err      error
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("%s node %s failed: %v", e.NodeType, e.NodeID, e.Err)
}

func (e *ExecutorError) Unwrap() error {
	return e.Err
}

func (e *ExecutorError) Is(target error) bool {
	return target == ErrExecutor
}

// IsInvalidTransition checks if an error is a rejected status move.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsAlreadyTerminal checks if an error is a repeated terminal write.
func IsAlreadyTerminal(err error) bool {
	return errors.Is(err, ErrAlreadyTerminal)
}
