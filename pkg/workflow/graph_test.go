package workflow

import (
	"testing"

	"github.com/dukex/runledger/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, variable string) *models.WorkflowNode {
	return &models.WorkflowNode{ID: id, Name: id, Type: models.NodeTypeHTTPRequest, VariableName: variable}
}

func edge(source, target string) *models.Connection {
	return &models.Connection{ID: source + "-" + target, SourceNodeID: source, TargetNodeID: target}
}

func ids(nodes []*models.WorkflowNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}

	return out
}

func TestPlan_TopologicalOrder(t *testing.T) {
	workflow := &models.Workflow{
		Nodes: []*models.WorkflowNode{node("c", ""), node("b", ""), node("a", ""), node("d", "")},
		Connections: []*models.Connection{
			edge("a", "b"),
			edge("b", "c"),
			edge("a", "d"),
		},
	}

	order, err := Plan(workflow)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(order))
}

func TestPlan_DiamondIsDeterministic(t *testing.T) {
	workflow := &models.Workflow{
		Nodes: []*models.WorkflowNode{node("start", ""), node("right", ""), node("left", ""), node("join", "")},
		Connections: []*models.Connection{
			edge("start", "left"),
			edge("start", "right"),
			edge("left", "join"),
			edge("right", "join"),
		},
	}

	for range 5 {
		order, err := Plan(workflow)
		require.NoError(t, err)
		assert.Equal(t, []string{"start", "right", "left", "join"}, ids(order))
	}
}

func TestPlan_Errors(t *testing.T) {
	tests := []struct {
		name     string
		workflow *models.Workflow
		reason   string
	}{
		{
			name:     "empty",
			workflow: &models.Workflow{},
			reason:   "no nodes",
		},
		{
			name: "cycle",
			workflow: &models.Workflow{
				Nodes:       []*models.WorkflowNode{node("a", ""), node("b", ""), node("c", "")},
				Connections: []*models.Connection{edge("a", "b"), edge("b", "c"), edge("c", "b")},
			},
			reason: "cycle",
		},
		{
			name: "self loop",
			workflow: &models.Workflow{
				Nodes:       []*models.WorkflowNode{node("a", "")},
				Connections: []*models.Connection{edge("a", "a")},
			},
			reason: "itself",
		},
		{
			name: "dangling edge",
			workflow: &models.Workflow{
				Nodes:       []*models.WorkflowNode{node("a", "")},
				Connections: []*models.Connection{edge("a", "ghost")},
			},
			reason: "unknown target",
		},
		{
			name:     "duplicate id",
			workflow: &models.Workflow{Nodes: []*models.WorkflowNode{node("a", ""), node("a", "")}},
			reason:   "duplicate node id",
		},
		{
			name:     "duplicate variable",
			workflow: &models.Workflow{Nodes: []*models.WorkflowNode{node("a", "out"), node("b", "out")}},
			reason:   "already used",
		},
		{
			name:     "invalid variable",
			workflow: &models.Workflow{Nodes: []*models.WorkflowNode{node("a", "not-valid")}},
			reason:   "invalid variable name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan(tt.workflow)
			require.ErrorIs(t, err, models.ErrGraph)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}
