package web

import "github.com/dukex/runledger/pkg/models"

// CallerHeader carries the caller identity. Authentication happens upstream.
const CallerHeader = "X-User-ID"

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	ID          string                 `json:"id,omitempty"`
	Name        string                 `json:"name"                  validate:"required,min=3"`
	Description string                 `json:"description"`
	Nodes       []*models.WorkflowNode `json:"nodes"                 validate:"required,min=1"`
	Connections []*models.Connection   `json:"connections"`
}

// TriggerExecutionRequest represents the request body for starting an execution by hand.
type TriggerExecutionRequest struct {
	TriggerType models.TriggerType `json:"trigger_type" validate:"omitempty,oneof=MANUAL API"`
	Payload     map[string]any     `json:"payload"`
}

// SubscriptionTokenRequest asks for a token scoped to one channel.
type SubscriptionTokenRequest struct {
	Channel string   `json:"channel" validate:"required"`
	Topics  []string `json:"topics"  validate:"required,min=1,dive,required"`
}

// RefreshSubscriptionRequest carries a freshly issued token for a live stream.
type RefreshSubscriptionRequest struct {
	Token string `json:"token" validate:"required"`
}
