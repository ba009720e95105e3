package services_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutions_ListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := sampleWorkflow()
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, wf))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		f.seed(t, wf, base.Add(time.Duration(i)*time.Minute), toCompleted...)
	}

	page, err := f.executions.List(ctx, "alice", services.ListExecutionsRequest{Page: 2, PageSize: 2})
	require.NoError(t, err)

	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(5), page.TotalCount)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNextPage)
	assert.True(t, page.HasPreviousPage)
	assert.True(t, page.Items[0].StartedAt.After(page.Items[1].StartedAt))

	last, err := f.executions.List(ctx, "alice", services.ListExecutionsRequest{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, last.Items, 1)
	assert.False(t, last.HasNextPage)

	defaults, err := f.executions.List(ctx, "alice", services.ListExecutionsRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, defaults.Page)
	assert.Equal(t, services.DefaultPageSize, defaults.PageSize)
	assert.Len(t, defaults.Items, 5)
}

func TestExecutions_ListFiltersAndScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := sampleWorkflow()
	foreign := sampleWorkflow()
	foreign.ID = "wf-foreign"
	foreign.Name = "Invoices"
	foreign.Owner = "bob"

	require.NoError(t, f.store.WorkflowRepository().Save(ctx, wf))
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, foreign))

	now := time.Now().UTC()
	failed := f.seed(t, wf, now, toFailed...)
	f.seed(t, wf, now.Add(time.Minute), toCompleted...)
	f.seed(t, foreign, now, toFailed...)

	page, err := f.executions.List(ctx, "alice", services.ListExecutionsRequest{
		ExecutionFilters: services.ExecutionFilters{Status: models.ExecutionStatusFailed},
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, failed.ID, page.Items[0].ID)

	page, err = f.executions.List(ctx, "bob", services.ListExecutionsRequest{
		ExecutionFilters: services.ExecutionFilters{Search: "ORDER"},
	})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)

	page, err = f.executions.List(ctx, "", services.ListExecutionsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalCount)
}

func TestExecutions_ListRejectsInvalidRequest(t *testing.T) {
	f := newFixture(t)

	cases := []services.ListExecutionsRequest{
		{PageSize: 500},
		{Page: -1},
		{ExecutionFilters: services.ExecutionFilters{Status: "DONE"}},
		{ExecutionFilters: services.ExecutionFilters{TriggerType: "CRON"}},
	}

	for _, req := range cases {
		_, err := f.executions.List(context.Background(), "alice", req)
		require.Error(t, err)
		assert.True(t, services.IsValidationError(err), "%+v", req)
	}
}

func TestExecutions_FetchByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := sampleWorkflow()
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, wf))

	execution := f.seed(t, wf, time.Now(), toRunning...)

	first := models.NewRunningLog(execution.ID, wf.Nodes[0], map[string]any{}, time.Now())
	second := models.NewRunningLog(execution.ID, wf.Nodes[1], map[string]any{"url": "https://api.example.com/orders/o-1"}, time.Now().Add(time.Second))
	require.NoError(t, f.store.ExecutionLogRepository().CreateRunning(ctx, second))
	require.NoError(t, f.store.ExecutionLogRepository().CreateRunning(ctx, first))

	detail, err := f.executions.FetchByID(ctx, "alice", execution.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.ID, detail.ID)
	require.Len(t, detail.Logs, 2)
	assert.Equal(t, "start", detail.Logs[0].NodeID)
	assert.Equal(t, "fetch", detail.Logs[1].NodeID)

	_, err = f.executions.FetchByID(ctx, "bob", execution.ID)
	require.ErrorIs(t, err, services.ErrUnauthorized)
	assert.True(t, services.IsUnauthorized(err))

	_, err = f.executions.FetchByID(ctx, "alice", "missing")
	assert.True(t, services.IsNotFound(err))
}

func TestExecutions_Stats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := sampleWorkflow()
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, wf))

	now := time.Now()
	f.seed(t, wf, now, toCompleted...)
	f.seed(t, wf, now, toCompleted...)
	f.seed(t, wf, now, toFailed...)
	f.seed(t, wf, now)

	stats, err := f.executions.Stats(ctx, "alice", services.ExecutionFilters{})
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(2), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Queued)
	require.NotNil(t, stats.SuccessRate)
	assert.Equal(t, int64(67), *stats.SuccessRate)
	require.NotNil(t, stats.AvgDurationMs)
	assert.Equal(t, int64(3000), *stats.AvgDurationMs)

	empty, err := f.executions.Stats(ctx, "bob", services.ExecutionFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.Total)
	assert.Nil(t, empty.SuccessRate)
	assert.Nil(t, empty.AvgDurationMs)
}

func TestExecutions_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := sampleWorkflow()
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, wf))

	running := f.seed(t, wf, time.Now(), toRunning...)

	cancelled, err := f.executions.Cancel(ctx, "alice", running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CompletedAt)

	_, err = f.executions.Cancel(ctx, "bob", running.ID)
	require.ErrorIs(t, err, services.ErrUnauthorized)
}

func TestExecutions_CancelTerminalIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := sampleWorkflow()
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, wf))

	completed := f.seed(t, wf, time.Now(), toCompleted...)

	_, err := f.executions.Cancel(ctx, "alice", completed.ID)
	require.Error(t, err)
	assert.True(t, services.IsConflictError(err))

	stored, err := f.store.ExecutionRepository().GetByID(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, completed.CompletedAt, stored.CompletedAt)
}

func TestExecutions_Rerun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := sampleWorkflow()
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, wf))

	startedAt := time.Now().Add(-time.Hour)
	original := f.seed(t, wf, startedAt, toFailed...)

	logs := f.store.ExecutionLogRepository()

	start := models.NewRunningLog(original.ID, wf.Nodes[0], map[string]any{}, startedAt.Add(time.Second))
	require.NoError(t, logs.CreateRunning(ctx, start))
	_, err := logs.CompleteSuccess(ctx, start.ID, map[string]any{"id": "o-1"}, startedAt.Add(2*time.Second))
	require.NoError(t, err)

	fetch := models.NewRunningLog(original.ID, wf.Nodes[1], map[string]any{"url": "https://api.example.com/orders/o-1"}, startedAt.Add(2*time.Second))
	require.NoError(t, logs.CreateRunning(ctx, fetch))
	_, err = logs.CompleteFailure(ctx, fetch.ID, "boom", startedAt.Add(3*time.Second))
	require.NoError(t, err)

	before, err := f.executions.FetchByID(ctx, "alice", original.ID)
	require.NoError(t, err)
	require.Len(t, before.Logs, 2)

	result, err := f.executions.Rerun(ctx, "alice", original.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, result.WorkflowID)
	assert.NotEqual(t, original.ID, result.ExecutionID)
	assert.Equal(t, 1, f.dispatcher.Count())

	rerun, err := f.executions.FetchByID(ctx, "alice", result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusQueued, rerun.Execution.Status)
	assert.Equal(t, original.TriggerType, rerun.Execution.TriggerType)
	assert.Equal(t, original.TriggerPayload, rerun.Execution.TriggerPayload)
	assert.Empty(t, rerun.Logs)

	after, err := f.executions.FetchByID(ctx, "alice", original.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	beforeJSON, err := json.Marshal(before)
	require.NoError(t, err)

	afterJSON, err := json.Marshal(after)
	require.NoError(t, err)
	assert.JSONEq(t, string(beforeJSON), string(afterJSON))
}

func TestExecutions_RerunNeedsWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf := sampleWorkflow()
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, wf))

	original := f.seed(t, wf, time.Now(), toCompleted...)
	require.NoError(t, f.store.WorkflowRepository().Delete(ctx, wf.ID))

	_, err := f.executions.Rerun(ctx, "alice", original.ID)
	require.Error(t, err)
	assert.True(t, services.IsNotFound(err))
	assert.Equal(t, 0, f.dispatcher.Count())
}
