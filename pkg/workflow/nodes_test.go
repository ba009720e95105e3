package workflow

import (
	"context"
	"testing"

	"github.com/dukex/runledger/pkg/models"
	nodelog "github.com/dukex/runledger/pkg/nodes/log"
	"github.com/dukex/runledger/pkg/nodes/transform"
	"github.com/dukex/runledger/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_TransformFeedsLog(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.registry.Register(transform.NewExecutor()))
	require.NoError(t, h.registry.Register(nodelog.NewExecutor(testLogger)))

	workflow := testutil.CreateTestWorkflow("wf-shape", "Shape", "alice",
		testutil.CreateTestNode(testutil.WithID("start"), testutil.WithManualTrigger()),
		testutil.CreateTestNode(
			testutil.WithID("fetch"),
			testutil.WithType(models.NodeTypeHTTPRequest),
			testutil.WithVariableName("httpResponse"),
			testutil.WithConfig(map[string]any{"url": "https://api.example.com/items"}),
		),
		testutil.CreateTestNode(
			testutil.WithID("shape"),
			testutil.WithType(models.NodeTypeTransform),
			testutil.WithVariableName("shaped"),
			testutil.WithConfig(map[string]any{"expression": "{{httpResponse.data}}", "path": "$.id"}),
		),
		testutil.CreateTestNode(
			testutil.WithID("report"),
			testutil.WithConfig(map[string]any{"message": "Fetched item {{shaped.result}}", "level": "info"}),
		),
	)

	execution := h.queue(t, workflow, nil)
	require.NoError(t, h.executor.Execute(context.Background(), execution.ID))

	stored, logs := h.detail(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)

	require.Len(t, logs, 4)
	assert.Equal(t, map[string]any{"result": "42"}, logs[2].OutputContext)
	assert.Equal(t, "Fetched item 42", logs[3].OutputContext["message"])
	assert.Equal(t, models.NodeTypeLog, logs[3].NodeType)
}
