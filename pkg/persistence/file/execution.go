package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
)

// ExecutionRepository handles execution-related file operations.
type ExecutionRepository struct {
	root string
	mu   *sync.RWMutex
}

func (er *ExecutionRepository) dir() string {
	return filepath.Join(er.root, executionsDir)
}

// Create writes a new execution document.
func (er *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	if err := validateID(execution.ID); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	_, err := er.read(execution.ID)
	if err == nil {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	if !errors.Is(err, persistence.ErrExecutionNotFound) {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return writeJSON(er.dir(), execution.ID, execution)
}

// GetByID retrieves an execution by its ID.
func (er *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	er.mu.RLock()
	defer er.mu.RUnlock()

	execution, err := er.read(id)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// Transition re-reads the execution under the write lock, applies the move and stores it.
func (er *ExecutionRepository) Transition(ctx context.Context, id string, to models.ExecutionStatus, reason string, at time.Time) (*models.Execution, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.NewExecutionError("Transition", id, err)
	}

	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.read(id)
	if err != nil {
		return nil, persistence.NewExecutionError("Transition", id, err)
	}

	err = execution.TransitionTo(to, reason, at)
	if err != nil {
		return nil, persistence.NewExecutionError("Transition", id, err)
	}

	err = writeJSON(er.dir(), id, execution)
	if err != nil {
		return nil, persistence.NewExecutionError("Transition", id, err)
	}

	return execution, nil
}

// List returns one page of matching executions, newest first.
func (er *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	matched, err := er.filtered(opts.Filter)
	if err != nil {
		return nil, err
	}

	persistence.SortByStartedAtDesc(matched)

	return &persistence.ExecutionListResult{
		Executions: persistence.Window(matched, opts.Limit, opts.Offset),
		TotalCount: int64(len(matched)),
	}, nil
}

// Stats rolls up matching executions read under a single lock.
func (er *ExecutionRepository) Stats(ctx context.Context, filter persistence.ExecutionFilter) (*models.ExecutionStats, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	matched, err := er.filtered(filter)
	if err != nil {
		return nil, err
	}

	return models.ComputeExecutionStats(matched), nil
}

func (er *ExecutionRepository) read(id string) (*models.Execution, error) {
	var execution models.Execution

	err := readJSON(er.dir(), id, &execution)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, err
	}

	return &execution, nil
}

func (er *ExecutionRepository) filtered(filter persistence.ExecutionFilter) ([]*models.Execution, error) {
	ids, err := listIDs(er.dir())
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Execution, 0, len(ids))

	for _, id := range ids {
		execution, err := er.read(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
		}

		if filter.Matches(execution) {
			matched = append(matched, execution)
		}
	}

	return matched, nil
}
