// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/runledger/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:        uuid.New().String(),
		Type:      models.NodeTypeLog,
		Name:      "Test Node",
		Config:    map[string]any{"message": "test", "level": "info"},
		PositionX: 100,
		PositionY: 200,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithManualTrigger configures the node as a manual trigger exposing the payload as "trigger".
func WithManualTrigger() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = models.NodeTypeManualTrigger
		n.Name = "Start"
		n.VariableName = "trigger"
		n.Config = map[string]any{}
	}
}

// WithWebhookTrigger configures the node as a webhook trigger. A non-nil schema
// is enforced on incoming payloads.
func WithWebhookTrigger(schema map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = models.NodeTypeWebhookTrigger
		n.Name = "Webhook"
		n.VariableName = "trigger"
		n.Config = map[string]any{}

		if schema != nil {
			n.Config["schema"] = schema
		}
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = name
	}
}

// WithVariableName sets the name the node output is exposed under.
func WithVariableName(name string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.VariableName = name
	}
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// CreateTestWorkflow creates a test workflow chaining nodes in the given order.
func CreateTestWorkflow(id, name, owner string, nodes ...*models.WorkflowNode) *models.Workflow {
	workflow := &models.Workflow{
		ID:          id,
		Name:        name,
		Description: "A workflow for testing",
		Owner:       owner,
		Nodes:       nodes,
		Connections: []*models.Connection{},
	}

	for i := 1; i < len(nodes); i++ {
		workflow.Connections = append(workflow.Connections, CreateTestConnection(nodes[i-1].ID, nodes[i].ID))
	}

	return workflow
}

// CreateTestConnection creates a test connection between two nodes.
func CreateTestConnection(sourceNodeID, targetNodeID string) *models.Connection {
	return &models.Connection{
		ID:           uuid.New().String(),
		SourceNodeID: sourceNodeID,
		TargetNodeID: targetNodeID,
	}
}
