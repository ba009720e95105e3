// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionLogNotFound indicates an execution log row was not found.
	ErrExecutionLogNotFound = errors.New("execution log not found")

	// ErrExecutionAlreadyExists indicates an execution with the same identifier already exists.
	ErrExecutionAlreadyExists = errors.New("execution already exists")

	// ErrDuplicateExecutionLog indicates a node already has a log row in the execution.
	ErrDuplicateExecutionLog = errors.New("execution log already exists for node")
)

// ExecutionError wraps execution-related errors with additional context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g., "GetByID", "Transition")
	ExecutionID string // Execution ID if applicable
	Err         error  // Underlying error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for execution errors.
func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// ExecutionLogError wraps node log errors with additional context.
type ExecutionLogError struct {
	Op          string // Operation being performed
	ExecutionID string // Execution ID if known
	NodeID      string // Node ID if known
	LogID       string // Log row ID if known
	Err         error  // Underlying error
}

func (e *ExecutionLogError) Error() string {
	if e.LogID != "" {
		return fmt.Sprintf("%s operation failed for execution log %s: %v", e.Op, e.LogID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for node %s in execution %s: %v", e.Op, e.NodeID, e.ExecutionID, e.Err)
}

func (e *ExecutionLogError) Unwrap() error {
	return e.Err
}

func (e *ExecutionLogError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsExecutionLogNotFound checks if an error indicates a log row was not found.
func IsExecutionLogNotFound(err error) bool {
	return errors.Is(err, ErrExecutionLogNotFound)
}

// IsDuplicateExecutionLog checks if an error indicates a second row for the same node.
func IsDuplicateExecutionLog(err error) bool {
	return errors.Is(err, ErrDuplicateExecutionLog)
}
