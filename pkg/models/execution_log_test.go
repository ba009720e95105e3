package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionLog_CompleteOnce(t *testing.T) {
	node := &WorkflowNode{ID: "n1", Name: "Fetch", Type: NodeTypeHTTPRequest}
	now := time.Now()

	log := NewRunningLog("exec-1", node, map[string]any{"url": "http://example.com"}, now)
	assert.Equal(t, ExecutionStatusRunning, log.Status)
	assert.Nil(t, log.CompletedAt)

	require.NoError(t, log.Complete(map[string]any{"status": 200}, now.Add(time.Second)))
	assert.Equal(t, ExecutionStatusCompleted, log.Status)
	assert.Equal(t, map[string]any{"status": 200}, log.OutputContext)
	require.NotNil(t, log.CompletedAt)

	err := log.Fail("late failure", now.Add(2*time.Second))
	require.Error(t, err)
	assert.True(t, IsAlreadyTerminal(err))
	assert.Equal(t, ExecutionStatusCompleted, log.Status)
	assert.Empty(t, log.Error)

	err = log.Complete(map[string]any{"status": 500}, now.Add(3*time.Second))
	assert.True(t, IsAlreadyTerminal(err))
	assert.Equal(t, map[string]any{"status": 200}, log.OutputContext)
}

func TestExecutionLog_Fail(t *testing.T) {
	node := &WorkflowNode{ID: "n2", Name: "Summarize", Type: NodeTypeAIProvider}

	log := NewRunningLog("exec-1", node, nil, time.Now())
	require.NoError(t, log.Fail("cannot resolve {{httpResponse.data.id}}", time.Now()))

	assert.Equal(t, ExecutionStatusFailed, log.Status)
	assert.Nil(t, log.OutputContext)
	assert.Equal(t, "cannot resolve {{httpResponse.data.id}}", log.Error)
	assert.NotNil(t, log.InputContext)
}

func TestExecutionLog_CloneIsIndependent(t *testing.T) {
	node := &WorkflowNode{ID: "n1", Name: "Fetch", Type: NodeTypeHTTPRequest}
	log := NewRunningLog("exec-1", node, map[string]any{"headers": map[string]any{"a": "b"}}, time.Now())

	clone := log.Clone()
	clone.InputContext["headers"].(map[string]any)["a"] = "changed"

	assert.Equal(t, "b", log.InputContext["headers"].(map[string]any)["a"])
}

func TestSortLogs(t *testing.T) {
	base := time.Now()
	logs := []*ExecutionLog{
		{ID: "c", StartedAt: base.Add(2 * time.Second)},
		{ID: "a", StartedAt: base},
		{ID: "b", StartedAt: base.Add(time.Second)},
	}

	SortLogs(logs)

	assert.Equal(t, "a", logs[0].ID)
	assert.Equal(t, "b", logs[1].ID)
	assert.Equal(t, "c", logs[2].ID)
}
