// Package services implements the execution history, control and workflow
// operations exposed to callers.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/dukex/runledger/pkg/workflow"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrNodesRequired        = errors.New("workflow must have at least one node")
	ErrNoWebhookTrigger     = errors.New("workflow has no webhook trigger")
	ErrInvalidPayload       = errors.New("payload rejected by webhook schema")

	// Ownership Errors (403 Forbidden).
	ErrUnauthorized = errors.New("resource belongs to another owner")

	// Conflict Errors (409 Conflict).
	ErrWorkflowExists = errors.New("workflow already exists")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrNoWebhookTrigger) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, models.ErrGraph) ||
		errors.Is(err, workflow.ErrInvalidTrigger)
}

// IsConflictError checks if an error is an illegal state change or a taken ID that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, models.ErrInvalidTransition) ||
		errors.Is(err, ErrWorkflowExists)
}

// IsNotFound checks if an error names a missing execution or workflow.
func IsNotFound(err error) bool {
	return persistence.IsExecutionNotFound(err) || persistence.IsWorkflowNotFound(err)
}

// IsUnauthorized checks if an error is an ownership violation.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
