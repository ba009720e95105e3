package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/dukex/runledger/pkg/workflow"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ExecutionFilters scopes list and stats requests. Zero values match everything.
type ExecutionFilters struct {
	Status      models.ExecutionStatus `validate:"omitempty,oneof=QUEUED PENDING RUNNING COMPLETED FAILED CANCELLED"`
	TriggerType models.TriggerType     `validate:"omitempty,oneof=MANUAL WEBHOOK SCHEDULE API"`
	Search      string                 `validate:"max=200"`
	WorkflowID  string
}

// ListExecutionsRequest is a filter plus a 1-based page.
type ListExecutionsRequest struct {
	ExecutionFilters

	Page     int `validate:"min=0"`
	PageSize int `validate:"min=0,max=100"`
}

// PaginatedExecutions is one page of the history, newest first.
type PaginatedExecutions struct {
	Items           []*models.Execution `json:"items"`
	Page            int                 `json:"page"`
	PageSize        int                 `json:"page_size"`
	TotalCount      int64               `json:"total_count"`
	TotalPages      int                 `json:"total_pages"`
	HasNextPage     bool                `json:"has_next_page"`
	HasPreviousPage bool                `json:"has_previous_page"`
}

// RerunResult identifies the execution created by a rerun.
type RerunResult struct {
	WorkflowID  string `json:"workflow_id"`
	ExecutionID string `json:"execution_id"`
}

// Executions serves execution history, stats, cancel and rerun.
//
// Every operation takes the caller's identity. A non-empty caller only sees
// executions it owns; the empty caller is an unscoped internal caller.
type Executions struct {
	store    persistence.Persistence
	launcher *workflow.Launcher
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewExecutions(store persistence.Persistence, launcher *workflow.Launcher, validate *validator.Validate, logger *slog.Logger) *Executions {
	return &Executions{
		store:    store,
		launcher: launcher,
		validate: validate,
		logger:   logger.With("module", "execution_service"),
		now:      time.Now,
	}
}

// List returns one page of executions matching req, ordered by startedAt descending.
func (s *Executions) List(ctx context.Context, caller string, req ListExecutionsRequest) (*PaginatedExecutions, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("list_executions", "invalid_request", err.Error(), ErrInvalidRequest)
	}

	if req.Page == 0 {
		req.Page = 1
	}

	if req.PageSize == 0 {
		req.PageSize = DefaultPageSize
	}

	result, err := s.store.ExecutionRepository().List(ctx, persistence.ListExecutionsOptions{
		Filter: s.filter(caller, req.ExecutionFilters),
		Limit:  req.PageSize,
		Offset: (req.Page - 1) * req.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	totalPages := int((result.TotalCount + int64(req.PageSize) - 1) / int64(req.PageSize))

	items := result.Executions
	if items == nil {
		items = []*models.Execution{}
	}

	return &PaginatedExecutions{
		Items:           items,
		Page:            req.Page,
		PageSize:        req.PageSize,
		TotalCount:      result.TotalCount,
		TotalPages:      totalPages,
		HasNextPage:     req.Page < totalPages,
		HasPreviousPage: req.Page > 1,
	}, nil
}

// FetchByID returns the execution with its log rows ordered by startedAt.
func (s *Executions) FetchByID(ctx context.Context, caller, id string) (*models.ExecutionDetail, error) {
	execution, err := s.owned(ctx, caller, "get_execution", id)
	if err != nil {
		return nil, err
	}

	logs, err := s.store.ExecutionLogRepository().ListByExecution(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}

	if logs == nil {
		logs = []*models.ExecutionLog{}
	}

	return &models.ExecutionDetail{Execution: execution, Logs: logs}, nil
}

// Stats computes the rollup of every execution matching filters.
func (s *Executions) Stats(ctx context.Context, caller string, filters ExecutionFilters) (*models.ExecutionStats, error) {
	if err := s.validate.Struct(filters); err != nil {
		return nil, NewValidationError("execution_stats", "invalid_request", err.Error(), ErrInvalidRequest)
	}

	stats, err := s.store.ExecutionRepository().Stats(ctx, s.filter(caller, filters))
	if err != nil {
		return nil, fmt.Errorf("failed to compute execution stats: %w", err)
	}

	return stats, nil
}

// Cancel requests cancellation of a PENDING or RUNNING execution. The running
// node is not interrupted; the orchestrator stops at the next node boundary.
func (s *Executions) Cancel(ctx context.Context, caller, id string) (*models.Execution, error) {
	current, err := s.owned(ctx, caller, "cancel_execution", id)
	if err != nil {
		return nil, err
	}

	if !current.Status.IsCancellable() {
		return nil, &ServiceError{
			Op:   "cancel_execution",
			Code: "invalid_transition",
			Err:  &models.TransitionError{From: current.Status, To: models.ExecutionStatusCancelled},
		}
	}

	execution, err := s.store.ExecutionRepository().Transition(ctx, id, models.ExecutionStatusCancelled, "", s.now())
	if err != nil {
		if models.IsInvalidTransition(err) {
			return nil, &ServiceError{Op: "cancel_execution", Code: "invalid_transition", Err: err}
		}

		return nil, fmt.Errorf("failed to cancel execution: %w", err)
	}

	s.logger.InfoContext(ctx, "Execution cancellation requested", "execution_id", id, "workflow_id", execution.WorkflowID)

	return execution, nil
}

// Rerun starts a new execution of the same workflow with the original trigger
// type and payload. The original execution and its logs are not touched.
func (s *Executions) Rerun(ctx context.Context, caller, id string) (*RerunResult, error) {
	original, err := s.owned(ctx, caller, "rerun_execution", id)
	if err != nil {
		return nil, err
	}

	execution, err := s.launcher.Launch(ctx, workflow.TriggerEvent{
		WorkflowID:  original.WorkflowID,
		TriggerType: original.TriggerType,
		Payload:     original.TriggerPayload,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Execution rerun", "execution_id", execution.ID, "rerun_of", original.ID, "workflow_id", original.WorkflowID)

	return &RerunResult{WorkflowID: execution.WorkflowID, ExecutionID: execution.ID}, nil
}

func (s *Executions) owned(ctx context.Context, caller, op, id string) (*models.Execution, error) {
	execution, err := s.store.ExecutionRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if caller != "" && execution.Owner != caller {
		return nil, &ServiceError{Op: op, Code: "unauthorized", Err: ErrUnauthorized}
	}

	return execution, nil
}

func (s *Executions) filter(caller string, filters ExecutionFilters) persistence.ExecutionFilter {
	return persistence.ExecutionFilter{
		Status:      filters.Status,
		TriggerType: filters.TriggerType,
		Search:      filters.Search,
		WorkflowID:  filters.WorkflowID,
		Owner:       caller,
	}
}
