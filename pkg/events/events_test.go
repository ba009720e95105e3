package events

import (
	"testing"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeStatusFromLog(t *testing.T) {
	started := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	log := models.NewRunningLog("exec-1", &models.WorkflowNode{ID: "n1", Name: "Fetch", Type: models.NodeTypeHTTPRequest}, nil, started)

	running := NodeStatusFromLog(log)
	assert.Equal(t, models.ExecutionStatusRunning, running.Status)
	assert.Equal(t, started, running.CreatedAt)
	assert.Equal(t, "http-request", running.NodeType)

	require.NoError(t, log.Complete(nil, started.Add(time.Second)))

	completed := NodeStatusFromLog(log)
	assert.Equal(t, models.ExecutionStatusCompleted, completed.Status)
	assert.Equal(t, started.Add(time.Second), completed.CreatedAt)
	assert.Equal(t, NodeStatusEvent, completed.GetType())
}

func TestChannelTopic(t *testing.T) {
	assert.Equal(t, "runledger.node.http-request.status", ChannelTopic(models.NodeTypeHTTPRequest, StatusTopic))
}
