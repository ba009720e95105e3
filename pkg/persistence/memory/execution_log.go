package memory

import (
	"context"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/hashicorp/go-memdb"
)

// ExecutionLogRepository stores node log rows in memdb.
type ExecutionLogRepository struct {
	db *memdb.MemDB
}

func (r *ExecutionLogRepository) CreateRunning(_ context.Context, log *models.ExecutionLog) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(executionLogsTable, executionNodeIndex, log.ExecutionID, log.NodeID)
	if err != nil {
		return &persistence.ExecutionLogError{Op: "CreateRunning", ExecutionID: log.ExecutionID, NodeID: log.NodeID, Err: err}
	}

	if existing != nil {
		return &persistence.ExecutionLogError{
			Op:          "CreateRunning",
			ExecutionID: log.ExecutionID,
			NodeID:      log.NodeID,
			Err:         persistence.ErrDuplicateExecutionLog,
		}
	}

	if err := txn.Insert(executionLogsTable, log.Clone()); err != nil {
		return &persistence.ExecutionLogError{Op: "CreateRunning", ExecutionID: log.ExecutionID, NodeID: log.NodeID, Err: err}
	}

	txn.Commit()

	return nil
}

func (r *ExecutionLogRepository) CompleteSuccess(_ context.Context, logID string, output map[string]any, at time.Time) (*models.ExecutionLog, error) {
	return r.finalize("CompleteSuccess", logID, func(log *models.ExecutionLog) error {
		return log.Complete(models.CloneDocument(output), at)
	})
}

func (r *ExecutionLogRepository) CompleteFailure(_ context.Context, logID string, errMsg string, at time.Time) (*models.ExecutionLog, error) {
	return r.finalize("CompleteFailure", logID, func(log *models.ExecutionLog) error {
		return log.Fail(errMsg, at)
	})
}

func (r *ExecutionLogRepository) ListByExecution(_ context.Context, executionID string) ([]*models.ExecutionLog, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(executionLogsTable, executionIDIndex, executionID)
	if err != nil {
		return nil, &persistence.ExecutionLogError{Op: "ListByExecution", ExecutionID: executionID, Err: err}
	}

	logs := make([]*models.ExecutionLog, 0)

	for obj := it.Next(); obj != nil; obj = it.Next() {
		logs = append(logs, obj.(*models.ExecutionLog).Clone())
	}

	models.SortLogs(logs)

	return logs, nil
}

func (r *ExecutionLogRepository) finalize(op, logID string, apply func(*models.ExecutionLog) error) (*models.ExecutionLog, error) {
	txn := r.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(executionLogsTable, idIndex, logID)
	if err != nil {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: err}
	}

	if obj == nil {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: persistence.ErrExecutionLogNotFound}
	}

	updated := obj.(*models.ExecutionLog).Clone()
	if err := apply(updated); err != nil {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: err}
	}

	if err := txn.Insert(executionLogsTable, updated); err != nil {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: err}
	}

	txn.Commit()

	return updated.Clone(), nil
}
