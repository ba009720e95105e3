package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/lib/pq"
)

const selectExecution = `
	SELECT
		id
	  , workflow_id
	  , workflow_name
	  , owner
	  , status
	  , trigger_type
	  , trigger_payload
	  , error_message
	  , started_at
	  , completed_at
	FROM executions
`

// ExecutionRepository handles execution rows.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	payload, err := json.Marshal(nonNilDocument(execution.TriggerPayload))
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, workflow_name, owner, status, trigger_type,
			trigger_payload, error_message, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID, execution.WorkflowID, execution.WorkflowName, execution.Owner,
		string(execution.Status), string(execution.TriggerType), string(payload), execution.Error,
		execution.StartedAt, execution.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
		}

		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	execution, err := scanExecution(r.db.QueryRowContext(ctx, selectExecution+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// Transition locks the row with SELECT ... FOR UPDATE so concurrent cancel and
// completion requests are serialized per execution without blocking other rows.
func (r *ExecutionRepository) Transition(ctx context.Context, id string, to models.ExecutionStatus, reason string, at time.Time) (*models.Execution, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.NewExecutionError("Transition", id, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	execution, err := scanExecution(tx.QueryRowContext(ctx, selectExecution+" WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("Transition", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("Transition", id, err)
	}

	err = execution.TransitionTo(to, reason, at)
	if err != nil {
		return nil, persistence.NewExecutionError("Transition", id, err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE executions SET status = $2, error_message = $3, completed_at = $4 WHERE id = $1",
		id, string(execution.Status), execution.Error, execution.CompletedAt,
	)
	if err != nil {
		return nil, persistence.NewExecutionError("Transition", id, err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, persistence.NewExecutionError("Transition", id, err)
	}

	return execution, nil
}

// List reads the count and the page inside one repeatable-read transaction.
func (r *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin list transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	where, args := whereClause(opts.Filter)

	var total int64

	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions"+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}

	query := selectExecution + where + " ORDER BY started_at DESC, id DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return &persistence.ExecutionListResult{Executions: executions, TotalCount: total}, nil
}

// Stats computes every counter and the duration sum in one aggregate query.
func (r *ExecutionRepository) Stats(ctx context.Context, filter persistence.ExecutionFilter) (*models.ExecutionStats, error) {
	where, args := whereClause(filter)

	query := `
		SELECT
			COUNT(*)
		  , COUNT(*) FILTER (WHERE status = 'QUEUED')
		  , COUNT(*) FILTER (WHERE status = 'PENDING')
		  , COUNT(*) FILTER (WHERE status = 'RUNNING')
		  , COUNT(*) FILTER (WHERE status = 'COMPLETED')
		  , COUNT(*) FILTER (WHERE status = 'FAILED')
		  , COUNT(*) FILTER (WHERE status = 'CANCELLED')
		  , COUNT(*) FILTER (WHERE status = 'COMPLETED' AND completed_at IS NOT NULL)
		  , SUM(FLOOR(EXTRACT(EPOCH FROM (completed_at - started_at)) * 1000))
				FILTER (WHERE status = 'COMPLETED' AND completed_at IS NOT NULL)
		FROM executions` + where

	var (
		stats   models.ExecutionStats
		timed   int64
		totalMs sql.NullFloat64
	)

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total,
		&stats.Queued,
		&stats.Pending,
		&stats.Running,
		&stats.Completed,
		&stats.Failed,
		&stats.Cancelled,
		&timed,
		&totalMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute execution stats: %w", err)
	}

	stats.SuccessRate = models.SuccessRate(stats.Completed, stats.Failed)
	stats.AvgDurationMs = models.AverageMs(totalMs.Float64, timed)

	return &stats, nil
}

// whereClause renders the filter as a WHERE clause with positional arguments.
func whereClause(filter persistence.ExecutionFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	add := func(condition string, value any) {
		args = append(args, value)
		conditions = append(conditions, strings.ReplaceAll(condition, "?", "$"+strconv.Itoa(len(args))))
	}

	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}

	if filter.TriggerType != "" {
		add("trigger_type = ?", string(filter.TriggerType))
	}

	if filter.WorkflowID != "" {
		add("workflow_id = ?", filter.WorkflowID)
	}

	if filter.Owner != "" {
		add("owner = ?", filter.Owner)
	}

	if filter.Search != "" {
		add("LOWER(workflow_name) LIKE '%' || ? || '%'", escapeLike(strings.ToLower(filter.Search)))
	}

	if len(conditions) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution   models.Execution
		status      string
		triggerType string
		payload     []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.WorkflowName,
		&execution.Owner,
		&status,
		&triggerType,
		&payload,
		&execution.Error,
		&execution.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)
	execution.TriggerType = models.TriggerType(triggerType)
	execution.StartedAt = execution.StartedAt.UTC()

	if completedAt.Valid {
		at := completedAt.Time.UTC()
		execution.CompletedAt = &at
	}

	err = json.Unmarshal(payload, &execution.TriggerPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger payload: %w", err)
	}

	return &execution, nil
}

func nonNilDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return map[string]any{}
	}

	return doc
}
