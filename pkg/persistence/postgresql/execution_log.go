package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/lib/pq"
)

const (
	uniqueViolation         = "23505"
	executionNodeConstraint = "uq_execution_logs_execution_node"
	selectExecutionLog      = `
	SELECT
		id
	  , execution_id
	  , node_id
	  , node_name
	  , node_type
	  , status
	  , input_context
	  , output_context
	  , error_message
	  , started_at
	  , completed_at
	FROM execution_logs
`
)

// ExecutionLogRepository handles node log rows.
type ExecutionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(db *sql.DB, logger *slog.Logger) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db, logger: logger}
}

// CreateRunning inserts a RUNNING row; the unique (execution_id, node_id)
// constraint rejects a second row for the same node.
func (r *ExecutionLogRepository) CreateRunning(ctx context.Context, log *models.ExecutionLog) error {
	input, err := json.Marshal(nonNilDocument(log.InputContext))
	if err != nil {
		return &persistence.ExecutionLogError{Op: "CreateRunning", ExecutionID: log.ExecutionID, NodeID: log.NodeID, Err: err}
	}

	query := `
		INSERT INTO execution_logs (
			id, execution_id, node_id, node_name, node_type, status, input_context, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		log.ID, log.ExecutionID, log.NodeID, log.NodeName, log.NodeType,
		string(log.Status), string(input), log.StartedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == executionNodeConstraint {
			err = persistence.ErrDuplicateExecutionLog
		}

		return &persistence.ExecutionLogError{Op: "CreateRunning", ExecutionID: log.ExecutionID, NodeID: log.NodeID, Err: err}
	}

	return nil
}

func (r *ExecutionLogRepository) CompleteSuccess(ctx context.Context, logID string, output map[string]any, at time.Time) (*models.ExecutionLog, error) {
	return r.finalize(ctx, "CompleteSuccess", logID, func(log *models.ExecutionLog) error {
		return log.Complete(output, at)
	})
}

func (r *ExecutionLogRepository) CompleteFailure(ctx context.Context, logID string, errMsg string, at time.Time) (*models.ExecutionLog, error) {
	return r.finalize(ctx, "CompleteFailure", logID, func(log *models.ExecutionLog) error {
		return log.Fail(errMsg, at)
	})
}

func (r *ExecutionLogRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionLog, error) {
	rows, err := r.db.QueryContext(ctx, selectExecutionLog+" WHERE execution_id = $1 ORDER BY started_at ASC, id ASC", executionID)
	if err != nil {
		return nil, &persistence.ExecutionLogError{Op: "ListByExecution", ExecutionID: executionID, Err: err}
	}

	defer closeRows(ctx, r.logger, rows)

	logs := make([]*models.ExecutionLog, 0)

	for rows.Next() {
		log, err := scanExecutionLog(rows)
		if err != nil {
			return nil, &persistence.ExecutionLogError{Op: "ListByExecution", ExecutionID: executionID, Err: err}
		}

		logs = append(logs, log)
	}

	err = rows.Err()
	if err != nil {
		return nil, &persistence.ExecutionLogError{Op: "ListByExecution", ExecutionID: executionID, Err: err}
	}

	return logs, nil
}

func (r *ExecutionLogRepository) finalize(ctx context.Context, op, logID string, apply func(*models.ExecutionLog) error) (*models.ExecutionLog, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: err}
	}

	defer func() {
		_ = tx.Rollback()
	}()

	log, err := scanExecutionLog(tx.QueryRowContext(ctx, selectExecutionLog+" WHERE id = $1 FOR UPDATE", logID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.ErrExecutionLogNotFound
		}

		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: err}
	}

	err = apply(log)
	if err != nil {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, ExecutionID: log.ExecutionID, NodeID: log.NodeID, Err: err}
	}

	var output any

	if log.OutputContext != nil {
		data, err := json.Marshal(log.OutputContext)
		if err != nil {
			return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: err}
		}

		output = string(data)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE execution_logs SET status = $2, output_context = $3, error_message = $4, completed_at = $5 WHERE id = $1",
		logID, string(log.Status), output, log.Error, log.CompletedAt,
	)
	if err != nil {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: err}
	}

	err = tx.Commit()
	if err != nil {
		return nil, &persistence.ExecutionLogError{Op: op, LogID: logID, Err: err}
	}

	return log, nil
}

func scanExecutionLog(row rowScanner) (*models.ExecutionLog, error) {
	var (
		log         models.ExecutionLog
		status      string
		input       []byte
		output      []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&log.ID,
		&log.ExecutionID,
		&log.NodeID,
		&log.NodeName,
		&log.NodeType,
		&status,
		&input,
		&output,
		&log.Error,
		&log.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	log.Status = models.ExecutionStatus(status)
	log.StartedAt = log.StartedAt.UTC()

	if completedAt.Valid {
		at := completedAt.Time.UTC()
		log.CompletedAt = &at
	}

	err = json.Unmarshal(input, &log.InputContext)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal input context: %w", err)
	}

	if output != nil {
		err = json.Unmarshal(output, &log.OutputContext)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal output context: %w", err)
		}
	}

	return &log, nil
}
