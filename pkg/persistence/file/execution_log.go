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

// ExecutionLogRepository stores node logs under execution_logs/<execution id>/<log id>.json.
type ExecutionLogRepository struct {
	root string
	mu   *sync.RWMutex
}

func (lr *ExecutionLogRepository) dir(executionID string) string {
	return filepath.Join(lr.root, executionLogsDir, executionID)
}

// CreateRunning appends a RUNNING row, rejecting a second row for the same node.
func (lr *ExecutionLogRepository) CreateRunning(ctx context.Context, log *models.ExecutionLog) error {
	for _, id := range []string{log.ExecutionID, log.ID} {
		if err := validateID(id); err != nil {
			return &persistence.ExecutionLogError{Op: "CreateRunning", ExecutionID: log.ExecutionID, NodeID: log.NodeID, Err: err}
		}
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	existing, err := lr.readAll(log.ExecutionID)
	if err != nil {
		return &persistence.ExecutionLogError{Op: "CreateRunning", ExecutionID: log.ExecutionID, NodeID: log.NodeID, Err: err}
	}

	for _, row := range existing {
		if row.NodeID == log.NodeID {
			return &persistence.ExecutionLogError{
				Op:          "CreateRunning",
				ExecutionID: log.ExecutionID,
				NodeID:      log.NodeID,
				Err:         persistence.ErrDuplicateExecutionLog,
			}
		}
	}

	return writeJSON(lr.dir(log.ExecutionID), log.ID, log)
}

func (lr *ExecutionLogRepository) CompleteSuccess(ctx context.Context, logID string, output map[string]any, at time.Time) (*models.ExecutionLog, error) {
	return lr.finalize("CompleteSuccess", logID, func(log *models.ExecutionLog) error {
		return log.Complete(output, at)
	})
}

func (lr *ExecutionLogRepository) CompleteFailure(ctx context.Context, logID string, errMsg string, at time.Time) (*models.ExecutionLog, error) {
	return lr.finalize("CompleteFailure", logID, func(log *models.ExecutionLog) error {
		return log.Fail(errMsg, at)
	})
}

// ListByExecution returns the rows of one execution ordered by StartedAt.
func (lr *ExecutionLogRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLog, error) {
	if err := validateID(executionID); err != nil {
		return nil, &persistence.ExecutionLogError{Op: "ListByExecution", ExecutionID: executionID, Err: err}
	}

	lr.mu.RLock()
	defer lr.mu.RUnlock()

	logs, err := lr.readAll(executionID)
	if err != nil {
		return nil, &persistence.ExecutionLogError{Op: "ListByExecution", ExecutionID: executionID, Err: err}
	}

	models.SortLogs(logs)

	return logs, nil
}

func (lr *ExecutionLogRepository) finalize(op, logID string, apply func(*models.ExecutionLog) error) (*models.ExecutionLog, error) {
	if err := validateID(logID); err != nil {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: err}
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(lr.root, executionLogsDir, "*", logID+".json"))
	if err != nil {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: err}
	}

	if len(matches) == 0 {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: persistence.ErrExecutionLogNotFound}
	}

	dir := filepath.Dir(matches[0])

	var log models.ExecutionLog

	err = readJSON(dir, logID, &log)
	if err != nil {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: err}
	}

	err = apply(&log)
	if err != nil {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: err}
	}

	err = writeJSON(dir, logID, &log)
	if err != nil {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: err}
	}

	return &log, nil
}

func (lr *ExecutionLogRepository) readAll(executionID string) ([]*models.ExecutionLog, error) {
	dir := lr.dir(executionID)

	ids, err := listIDs(dir)
	if err != nil {
		return nil, err
	}

	logs := make([]*models.ExecutionLog, 0, len(ids))

	for _, id := range ids {
		var log models.ExecutionLog

		err := readJSON(dir, id, &log)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("failed to load execution log %s: %w", id, err)
		}

		logs = append(logs, &log)
	}

	return logs, nil
}
