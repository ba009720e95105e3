package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/hashicorp/go-memdb"
)

// ExecutionRepository stores execution rows in memdb.
type ExecutionRepository struct {
	db *memdb.MemDB
}

func (r *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(executionsTable, idIndex, execution.ID)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	if existing != nil {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	if err := txn.Insert(executionsTable, execution.Clone()); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	txn.Commit()

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	execution, err := firstExecution(txn, id)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution.Clone(), nil
}

func (r *ExecutionRepository) Transition(_ context.Context, id string, to models.ExecutionStatus, reason string, at time.Time) (*models.Execution, error) {
	txn := r.db.Txn(true)
	defer txn.Abort()

	current, err := firstExecution(txn, id)
	if err != nil {
		return nil, persistence.NewExecutionError("Transition", id, err)
	}

	updated := current.Clone()
	if err := updated.TransitionTo(to, reason, at); err != nil {
		return nil, persistence.NewExecutionError("Transition", id, err)
	}

	if err := txn.Insert(executionsTable, updated); err != nil {
		return nil, persistence.NewExecutionError("Transition", id, err)
	}

	txn.Commit()

	return updated.Clone(), nil
}

func (r *ExecutionRepository) List(_ context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	matched, err := filteredExecutions(txn, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	persistence.SortByStartedAtDesc(matched)

	page := persistence.Window(matched, opts.Limit, opts.Offset)
	executions := make([]*models.Execution, 0, len(page))

	for _, execution := range page {
		executions = append(executions, execution.Clone())
	}

	return &persistence.ExecutionListResult{
		Executions: executions,
		TotalCount: int64(len(matched)),
	}, nil
}

func (r *ExecutionRepository) Stats(_ context.Context, filter persistence.ExecutionFilter) (*models.ExecutionStats, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	matched, err := filteredExecutions(txn, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to compute execution stats: %w", err)
	}

	return models.ComputeExecutionStats(matched), nil
}

func firstExecution(txn *memdb.Txn, id string) (*models.Execution, error) {
	obj, err := txn.First(executionsTable, idIndex, id)
	if err != nil {
		return nil, err
	}

	if obj == nil {
		return nil, persistence.ErrExecutionNotFound
	}

	return obj.(*models.Execution), nil
}

// filteredExecutions reads matching rows within txn. Stored rows are never
// mutated in place, so the returned pointers stay valid after the txn ends.
func filteredExecutions(txn *memdb.Txn, filter persistence.ExecutionFilter) ([]*models.Execution, error) {
	var (
		it  memdb.ResultIterator
		err error
	)

	if filter.WorkflowID != "" {
		it, err = txn.Get(executionsTable, "workflow_id", filter.WorkflowID)
	} else {
		it, err = txn.Get(executionsTable, idIndex)
	}

	if err != nil {
		return nil, err
	}

	matched := make([]*models.Execution, 0)

	for obj := it.Next(); obj != nil; obj = it.Next() {
		execution := obj.(*models.Execution)
		if filter.Matches(execution) {
			matched = append(matched, execution)
		}
	}

	return matched, nil
}
