// Package persistence provides the data storage abstraction for workflows, executions and node logs.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/runledger/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	ExecutionLogRepository() ExecutionLogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions. Executions only read them.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution rows. Status changes go through
// Transition so every backend applies the same state machine.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)

	// Transition atomically re-reads the row, validates the move and stores it.
	// reason is recorded as the execution error when moving to FAILED.
	Transition(ctx context.Context, id string, to models.ExecutionStatus, reason string, at time.Time) (*models.Execution, error)

	// List returns one page of the filtered rows ordered by StartedAt descending,
	// with the total count of the filtered set.
	List(ctx context.Context, opts ListExecutionsOptions) (*ExecutionListResult, error)

	// Stats computes the rollup from a single snapshot of the filtered rows.
	Stats(ctx context.Context, filter ExecutionFilter) (*models.ExecutionStats, error)
}

// ExecutionLogRepository stores the per-node ledger of an execution.
type ExecutionLogRepository interface {
	// CreateRunning appends a RUNNING row. A second row for the same
	// (execution, node) pair fails with ErrDuplicateExecutionLog.
	CreateRunning(ctx context.Context, log *models.ExecutionLog) error

	CompleteSuccess(ctx context.Context, logID string, output map[string]any, at time.Time) (*models.ExecutionLog, error)
	CompleteFailure(ctx context.Context, logID string, errMsg string, at time.Time) (*models.ExecutionLog, error)

	// ListByExecution returns the rows of one execution ordered by StartedAt ascending.
	ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLog, error)
}

// ExecutionFilter scopes list and stats queries. Zero values match everything.
type ExecutionFilter struct {
	Status      models.ExecutionStatus
	TriggerType models.TriggerType
	Search      string // Case-insensitive substring of the workflow name
	WorkflowID  string
	Owner       string
}

// ListExecutionsOptions is a filter plus an offset page window.
type ListExecutionsOptions struct {
	Filter ExecutionFilter
	Limit  int
	Offset int
}

type ExecutionListResult struct {
	Executions []*models.Execution
	TotalCount int64
}
