// Package persistencetest holds a behavioural test suite shared by every persistence backend.
package persistencetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty backend for one subtest.
type Factory func(t *testing.T) persistence.Persistence

// Run exercises the repository contracts against the backend built by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("workflows", func(t *testing.T) { testWorkflows(t, factory(t)) })
	t.Run("execution lifecycle", func(t *testing.T) { testExecutionLifecycle(t, factory(t)) })
	t.Run("cancel terminal execution", func(t *testing.T) { testCancelTerminal(t, factory(t)) })
	t.Run("list filters and pagination", func(t *testing.T) { testList(t, factory(t)) })
	t.Run("stats", func(t *testing.T) { testStats(t, factory(t)) })
	t.Run("execution logs", func(t *testing.T) { testExecutionLogs(t, factory(t)) })
	t.Run("concurrent transitions", func(t *testing.T) { testConcurrentTransitions(t, factory(t)) })
}

// Base is a fixed reference time with millisecond precision so every backend round-trips it.
var Base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// NewWorkflow builds a minimal valid linear workflow.
func NewWorkflow(id, name, owner string) *models.Workflow {
	return &models.Workflow{
		ID:    id,
		Name:  name,
		Owner: owner,
		Nodes: []*models.WorkflowNode{
			{ID: "trigger", Name: "Start", Type: models.NodeTypeManualTrigger, VariableName: "trigger", Config: map[string]any{}},
			{ID: "fetch", Name: "Fetch", Type: models.NodeTypeHTTPRequest, VariableName: "httpResponse", Config: map[string]any{"url": "http://example.com"}},
		},
		Connections: []*models.Connection{
			{ID: "c1", SourceNodeID: "trigger", TargetNodeID: "fetch"},
		},
	}
}

// NewExecution builds a QUEUED execution started at startedAt.
func NewExecution(workflow *models.Workflow, trigger models.TriggerType, startedAt time.Time) *models.Execution {
	return models.NewExecution(workflow, trigger, map[string]any{"source": "test"}, startedAt)
}

// Finish drives an execution through the state machine to status, taking duration.
func Finish(t *testing.T, repo persistence.ExecutionRepository, execution *models.Execution, status models.ExecutionStatus, duration time.Duration) {
	t.Helper()

	ctx := context.Background()

	if status == models.ExecutionStatusQueued {
		return
	}

	_, err := repo.Transition(ctx, execution.ID, models.ExecutionStatusPending, "", execution.StartedAt)
	require.NoError(t, err)

	if status == models.ExecutionStatusPending {
		return
	}

	if status == models.ExecutionStatusCancelled {
		_, err = repo.Transition(ctx, execution.ID, status, "", execution.StartedAt.Add(duration))
		require.NoError(t, err)

		return
	}

	_, err = repo.Transition(ctx, execution.ID, models.ExecutionStatusRunning, "", execution.StartedAt)
	require.NoError(t, err)

	if status == models.ExecutionStatusRunning {
		return
	}

	_, err = repo.Transition(ctx, execution.ID, status, "boom", execution.StartedAt.Add(duration))
	require.NoError(t, err)
}

func testWorkflows(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	repo := p.WorkflowRepository()

	_, err := repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	workflow := NewWorkflow("wf-1", "Order sync", "user-1")
	require.NoError(t, repo.Save(ctx, workflow))
	assert.False(t, workflow.CreatedAt.IsZero())

	stored, err := repo.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Order sync", stored.Name)
	assert.Equal(t, "user-1", stored.Owner)
	require.Len(t, stored.Nodes, 2)
	assert.Equal(t, "httpResponse", stored.Nodes[1].VariableName)
	require.Len(t, stored.Connections, 1)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.Delete(ctx, "wf-1"))
	assert.True(t, persistence.IsWorkflowNotFound(repo.Delete(ctx, "wf-1")))
}

func testExecutionLifecycle(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	repo := p.ExecutionRepository()

	execution := NewExecution(NewWorkflow("wf-1", "Order sync", "user-1"), models.TriggerTypeManual, Base)
	require.NoError(t, repo.Create(ctx, execution))

	err := repo.Create(ctx, execution)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrExecutionAlreadyExists)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))

	stored, err := repo.GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusQueued, stored.Status)
	assert.Equal(t, "Order sync", stored.WorkflowName)
	assert.Equal(t, "test", stored.TriggerPayload["source"])
	assert.Nil(t, stored.CompletedAt)

	_, err = repo.Transition(ctx, execution.ID, models.ExecutionStatusRunning, "", Base)
	assert.True(t, models.IsInvalidTransition(err))

	_, err = repo.Transition(ctx, execution.ID, models.ExecutionStatusPending, "", Base)
	require.NoError(t, err)

	_, err = repo.Transition(ctx, execution.ID, models.ExecutionStatusRunning, "", Base)
	require.NoError(t, err)

	failed, err := repo.Transition(ctx, execution.ID, models.ExecutionStatusFailed, "http node failed", Base.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, failed.Status)
	assert.Equal(t, "http node failed", failed.Error)
	require.NotNil(t, failed.CompletedAt)
	assert.True(t, failed.CompletedAt.Equal(Base.Add(time.Second)))

	_, err = repo.Transition(ctx, "missing", models.ExecutionStatusPending, "", Base)
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func testCancelTerminal(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	repo := p.ExecutionRepository()

	execution := NewExecution(NewWorkflow("wf-1", "Order sync", "user-1"), models.TriggerTypeManual, Base)
	require.NoError(t, repo.Create(ctx, execution))
	Finish(t, repo, execution, models.ExecutionStatusCompleted, 250*time.Millisecond)

	before, err := repo.GetByID(ctx, execution.ID)
	require.NoError(t, err)

	_, err = repo.Transition(ctx, execution.ID, models.ExecutionStatusCancelled, "", Base.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, models.IsInvalidTransition(err))

	after, err := repo.GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	require.NotNil(t, after.CompletedAt)
	assert.True(t, before.CompletedAt.Equal(*after.CompletedAt))
}

func testList(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	repo := p.ExecutionRepository()

	orders := NewWorkflow("wf-orders", "Order Sync", "user-1")
	invoices := NewWorkflow("wf-invoices", "Invoice mailer", "user-2")

	for i := range 6 {
		workflow := orders
		trigger := models.TriggerTypeManual

		if i%2 == 1 {
			workflow = invoices
			trigger = models.TriggerTypeSchedule
		}

		execution := NewExecution(workflow, trigger, Base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, execution))

		if i < 2 {
			Finish(t, repo, execution, models.ExecutionStatusCompleted, time.Second)
		}
	}

	all, err := repo.List(ctx, persistence.ListExecutionsOptions{Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(6), all.TotalCount)
	require.Len(t, all.Executions, 4)

	for i := 1; i < len(all.Executions); i++ {
		assert.False(t, all.Executions[i].StartedAt.After(all.Executions[i-1].StartedAt), "list must be newest first")
	}

	second, err := repo.List(ctx, persistence.ListExecutionsOptions{Limit: 4, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, second.Executions, 2)
	assert.Equal(t, int64(6), second.TotalCount)

	beyond, err := repo.List(ctx, persistence.ListExecutionsOptions{Limit: 4, Offset: 40})
	require.NoError(t, err)
	assert.Empty(t, beyond.Executions)

	search, err := repo.List(ctx, persistence.ListExecutionsOptions{Filter: persistence.ExecutionFilter{Search: "order"}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), search.TotalCount)

	for _, execution := range search.Executions {
		assert.Equal(t, "wf-orders", execution.WorkflowID)
	}

	scheduled, err := repo.List(ctx, persistence.ListExecutionsOptions{
		Filter: persistence.ExecutionFilter{TriggerType: models.TriggerTypeSchedule, WorkflowID: "wf-invoices"},
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), scheduled.TotalCount)

	completed, err := repo.List(ctx, persistence.ListExecutionsOptions{
		Filter: persistence.ExecutionFilter{Status: models.ExecutionStatusCompleted},
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), completed.TotalCount)

	owned, err := repo.List(ctx, persistence.ListExecutionsOptions{Filter: persistence.ExecutionFilter{Owner: "user-2"}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), owned.TotalCount)
}

func testStats(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	repo := p.ExecutionRepository()
	workflow := NewWorkflow("wf-1", "Order sync", "user-1")

	for i := 1; i <= 7; i++ {
		execution := NewExecution(workflow, models.TriggerTypeManual, Base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, execution))
		Finish(t, repo, execution, models.ExecutionStatusCompleted, time.Duration(i*100)*time.Millisecond)
	}

	for i := range 2 {
		execution := NewExecution(workflow, models.TriggerTypeWebhook, Base.Add(time.Duration(10+i)*time.Minute))
		require.NoError(t, repo.Create(ctx, execution))
		Finish(t, repo, execution, models.ExecutionStatusFailed, 5*time.Second)
	}

	running := NewExecution(workflow, models.TriggerTypeAPI, Base.Add(20*time.Minute))
	require.NoError(t, repo.Create(ctx, running))
	Finish(t, repo, running, models.ExecutionStatusRunning, 0)

	other := NewExecution(NewWorkflow("wf-2", "Other", "user-2"), models.TriggerTypeManual, Base)
	require.NoError(t, repo.Create(ctx, other))

	stats, err := repo.Stats(ctx, persistence.ExecutionFilter{WorkflowID: "wf-1"})
	require.NoError(t, err)

	assert.Equal(t, int64(10), stats.Total)
	assert.Equal(t, int64(7), stats.Completed)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(1), stats.Running)
	assert.Equal(t, int64(0), stats.Queued)
	require.NotNil(t, stats.SuccessRate)
	assert.Equal(t, int64(78), *stats.SuccessRate)
	require.NotNil(t, stats.AvgDurationMs)
	assert.Equal(t, int64(400), *stats.AvgDurationMs)

	empty, err := repo.Stats(ctx, persistence.ExecutionFilter{WorkflowID: "none"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Total)
	assert.Nil(t, empty.SuccessRate)
	assert.Nil(t, empty.AvgDurationMs)
}

func testExecutionLogs(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	workflow := NewWorkflow("wf-1", "Order sync", "user-1")

	execution := NewExecution(workflow, models.TriggerTypeManual, Base)
	require.NoError(t, p.ExecutionRepository().Create(ctx, execution))

	repo := p.ExecutionLogRepository()

	second := models.NewRunningLog(execution.ID, workflow.Nodes[1], map[string]any{"url": "http://example.com"}, Base.Add(time.Second))
	first := models.NewRunningLog(execution.ID, workflow.Nodes[0], map[string]any{}, Base)

	require.NoError(t, repo.CreateRunning(ctx, second))
	require.NoError(t, repo.CreateRunning(ctx, first))

	duplicate := models.NewRunningLog(execution.ID, workflow.Nodes[0], nil, Base.Add(time.Minute))
	err := repo.CreateRunning(ctx, duplicate)
	require.Error(t, err)
	assert.True(t, persistence.IsDuplicateExecutionLog(err))

	done, err := repo.CompleteSuccess(ctx, first.ID, map[string]any{"source": "test"}, Base.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, done.Status)
	assert.Equal(t, "test", done.OutputContext["source"])

	_, err = repo.CompleteFailure(ctx, first.ID, "late", Base.Add(time.Second))
	assert.True(t, models.IsAlreadyTerminal(err))

	failed, err := repo.CompleteFailure(ctx, second.ID, "connection refused", Base.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "connection refused", failed.Error)
	assert.Nil(t, failed.OutputContext)

	_, err = repo.CompleteSuccess(ctx, second.ID, map[string]any{}, Base.Add(3*time.Second))
	assert.True(t, models.IsAlreadyTerminal(err))

	_, err = repo.CompleteSuccess(ctx, "missing", nil, Base)
	assert.True(t, persistence.IsExecutionLogNotFound(err))

	logs, err := repo.ListByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "trigger", logs[0].NodeID)
	assert.Equal(t, models.ExecutionStatusCompleted, logs[0].Status)
	assert.Equal(t, "fetch", logs[1].NodeID)
	assert.Equal(t, models.ExecutionStatusFailed, logs[1].Status)
	assert.Equal(t, "http://example.com", logs[1].InputContext["url"])

	none, err := repo.ListByExecution(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// testConcurrentTransitions races a cancel against completion; exactly one wins.
func testConcurrentTransitions(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()
	repo := p.ExecutionRepository()

	execution := NewExecution(NewWorkflow("wf-1", "Order sync", "user-1"), models.TriggerTypeManual, Base)
	require.NoError(t, repo.Create(ctx, execution))
	Finish(t, repo, execution, models.ExecutionStatusRunning, 0)

	targets := []models.ExecutionStatus{
		models.ExecutionStatusCompleted,
		models.ExecutionStatusCancelled,
		models.ExecutionStatusFailed,
		models.ExecutionStatusCancelled,
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []models.ExecutionStatus
	)

	for i, target := range targets {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := repo.Transition(ctx, execution.ID, target, fmt.Sprintf("attempt %d", i), Base.Add(time.Second))
			if err == nil {
				mu.Lock()
				wins = append(wins, target)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	require.Len(t, wins, 1)

	stored, err := repo.GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, wins[0], stored.Status)
}
