package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence/file"
	"github.com/dukex/runledger/pkg/services"
	"github.com/dukex/runledger/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliEnv struct {
	dir       string
	completed *models.Execution
	running   *models.Execution
}

func setupCLI(t *testing.T) *cliEnv {
	t.Helper()

	dir := t.TempDir()
	store := file.NewPersistence(dir)

	wf := testutil.CreateTestWorkflow("wf-orders", "Order sync", "alice",
		testutil.CreateTestNode(testutil.WithID("start"), testutil.WithManualTrigger()))
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), wf))

	startedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	return &cliEnv{
		dir:       dir,
		completed: testutil.SeedExecution(t, store, wf, startedAt, testutil.PathCompleted...),
		running:   testutil.SeedExecution(t, store, wf, startedAt.Add(time.Minute), testutil.PathRunning...),
	}
}

func (env *cliEnv) run(args ...string) (string, error) {
	var out bytes.Buffer

	command := newCommand()
	command.Writer = &out

	err := command.Run(context.Background(), append([]string{"runledger", "--database-url", env.dir}, args...))

	return out.String(), err
}

func TestCLI_List(t *testing.T) {
	env := setupCLI(t)

	out, err := env.run("executions", "list")
	require.NoError(t, err)

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, env.completed.ID)
	assert.Contains(t, out, env.running.ID)
	assert.Contains(t, out, "3s")
	assert.Contains(t, out, "page 1 of 1 (2 executions)")

	out, err = env.run("x", "ls", "--status", "RUNNING")
	require.NoError(t, err)
	assert.NotContains(t, out, env.completed.ID)
	assert.Contains(t, out, env.running.ID)

	out, err = env.run("--owner", "bob", "executions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "page 1 of 1 (0 executions)")

	_, err = env.run("executions", "list", "--status", "DONE")
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestCLI_Stats(t *testing.T) {
	env := setupCLI(t)

	out, err := env.run("executions", "stats")
	require.NoError(t, err)

	var stats models.ExecutionStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))

	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Running)
}

func TestCLI_ShowAndCancel(t *testing.T) {
	env := setupCLI(t)

	out, err := env.run("executions", "show", env.running.ID)
	require.NoError(t, err)

	var detail models.ExecutionDetail
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	assert.Equal(t, env.running.ID, detail.ID)
	assert.NotNil(t, detail.Logs)

	out, err = env.run("executions", "cancel", env.running.ID)
	require.NoError(t, err)

	var cancelled models.Execution
	require.NoError(t, json.Unmarshal([]byte(out), &cancelled))
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)

	_, err = env.run("executions", "cancel", env.running.ID)
	require.Error(t, err)
	assert.True(t, services.IsConflictError(err))

	_, err = env.run("executions", "show", "missing")
	require.Error(t, err)
	assert.True(t, services.IsNotFound(err))
}

func TestCLI_ArgumentErrors(t *testing.T) {
	env := setupCLI(t)

	_, err := env.run("executions", "show")
	require.ErrorIs(t, err, errExecutionIDRequired)

	_, err = env.run("executions", "rerun", env.completed.ID)
	require.ErrorIs(t, err, errQueueRequired)
}

func TestCLI_Follow(t *testing.T) {
	env := setupCLI(t)
	ctx := context.Background()

	store := file.NewPersistence(env.dir)
	startedAt := env.completed.StartedAt

	row := models.NewRunningLog(env.completed.ID, &models.WorkflowNode{ID: "start", Name: "Start", Type: models.NodeTypeManualTrigger}, nil, startedAt.Add(time.Second))
	require.NoError(t, store.ExecutionLogRepository().CreateRunning(ctx, row))
	_, err := store.ExecutionLogRepository().CompleteSuccess(ctx, row.ID, map[string]any{}, startedAt.Add(2*time.Second))
	require.NoError(t, err)

	out, err := env.run("executions", "show", "--follow", "--interval", "10ms", env.completed.ID)
	require.NoError(t, err)

	assert.Contains(t, out, "COMPLETED  start")
	assert.Contains(t, out, "execution "+env.completed.ID+" COMPLETED\n")

	_, err = env.run("executions", "show", "-f", "--interval", "0s", env.completed.ID)
	require.ErrorIs(t, err, errInvalidInterval)
}

func TestFollowExecution_PrintsChangesUntilTerminal(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	done := start.Add(time.Second)

	running := &models.ExecutionLog{NodeID: "fetch", Status: models.ExecutionStatusRunning, StartedAt: start}
	failed := &models.ExecutionLog{NodeID: "fetch", Status: models.ExecutionStatusFailed, StartedAt: start, CompletedAt: &done}

	polls := []*models.ExecutionDetail{
		{Execution: &models.Execution{ID: "exec-1", Status: models.ExecutionStatusRunning}, Logs: []*models.ExecutionLog{running}},
		{Execution: &models.Execution{ID: "exec-1", Status: models.ExecutionStatusRunning}, Logs: []*models.ExecutionLog{running}},
		{Execution: &models.Execution{ID: "exec-1", Status: models.ExecutionStatusFailed, Error: "boom"}, Logs: []*models.ExecutionLog{failed}},
	}

	calls := 0
	fetch := func(context.Context) (*models.ExecutionDetail, error) {
		detail := polls[calls]
		calls++

		return detail, nil
	}

	var out bytes.Buffer
	require.NoError(t, followExecution(context.Background(), &out, time.Millisecond, fetch))

	assert.Equal(t, 3, calls)
	assert.Equal(t,
		"2026-03-01T09:00:00Z  RUNNING    fetch\n"+
			"2026-03-01T09:00:01Z  FAILED     fetch\n"+
			"execution exec-1 FAILED: boom\n",
		out.String())
}

func TestFollowExecution_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fetch := func(context.Context) (*models.ExecutionDetail, error) {
		cancel()

		return &models.ExecutionDetail{Execution: &models.Execution{ID: "exec-1", Status: models.ExecutionStatusPending}}, nil
	}

	err := followExecution(ctx, &bytes.Buffer{}, time.Hour, fetch)
	require.ErrorIs(t, err, context.Canceled)
}
