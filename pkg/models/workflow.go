// Package models defines the core domain models for workflow executions and their node logs.
package models

import "time"

// Workflow is a directed graph of typed nodes. It is owned by the workflow editor;
// executions only read it and keep a snapshot of its name and owner.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Owner       string          `json:"owner"`
	Nodes       []*WorkflowNode `json:"nodes"       validate:"required,min=1,dive"`
	Connections []*Connection   `json:"connections" validate:"dive"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Connection is a directed edge between two nodes of the same workflow.
type Connection struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"source_node_id" validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
}

// WorkflowNode is a node instance in a workflow.
type WorkflowNode struct {
	ID   string `json:"id"   validate:"required"`
	Name string `json:"name" validate:"required,min=1"`
	Type string `json:"type" validate:"required"`

	// VariableName is the identifier under which the node output is exposed to
	// templates of downstream nodes. Nodes without one cannot be referenced.
	VariableName string `json:"variable_name,omitempty"`

	// CredentialRef is an opaque vault reference handed to the executor.
	CredentialRef string `json:"credential_ref,omitempty"`

	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// Built-in node type tags.
const (
	NodeTypeManualTrigger   = "manual-trigger"
	NodeTypeWebhookTrigger  = "webhook-trigger"
	NodeTypeScheduleTrigger = "schedule-trigger"
	NodeTypeHTTPRequest     = "http-request"
	NodeTypeAIProvider      = "ai-provider"
	NodeTypeLog             = "log"
	NodeTypeTransform       = "transform"
)

// IsTriggerNode reports whether the node starts a workflow.
func (n *WorkflowNode) IsTriggerNode() bool {
	switch n.Type {
	case NodeTypeManualTrigger, NodeTypeWebhookTrigger, NodeTypeScheduleTrigger:
		return true
	default:
		return false
	}
}

// NodeByID returns the node with the given id.
func (w *Workflow) NodeByID(id string) (*WorkflowNode, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// NodesOfType returns every node tagged with nodeType, in declaration order.
func (w *Workflow) NodesOfType(nodeType string) []*WorkflowNode {
	var nodes []*WorkflowNode

	for _, node := range w.Nodes {
		if node.Type == nodeType {
			nodes = append(nodes, node)
		}
	}

	return nodes
}
