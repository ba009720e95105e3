// Package trigger provides the executors of trigger nodes. A trigger node does
// no work of its own: it exposes the payload that started the execution to
// downstream templates.
package trigger

import (
	"context"
	"fmt"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/protocol"
)

// Executor runs one trigger node type.
type Executor struct {
	nodeType string
}

// NewExecutor creates the executor of a trigger node type.
func NewExecutor(nodeType string) *Executor {
	return &Executor{nodeType: nodeType}
}

func (e *Executor) Type() string {
	return e.nodeType
}

func (e *Executor) Schema() map[string]any {
	switch e.nodeType {
	case models.NodeTypeScheduleTrigger:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cron": map[string]any{
					"type":        "string",
					"description": "Standard five field cron expression",
					"minLength":   1,
					"examples":    []string{"*/5 * * * *", "0 9 * * 1-5"},
				},
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA time zone the expression is evaluated in",
					"default":     "UTC",
				},
				"payload": map[string]any{
					"type":        "object",
					"description": "Static payload handed to the workflow on every tick",
				},
			},
			"required": []string{"cron"},
		}
	case models.NodeTypeWebhookTrigger:
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"schema": map[string]any{
					"type":        "object",
					"description": "Optional JSON schema the webhook body must satisfy",
				},
			},
		}
	default:
		return map[string]any{"type": "object"}
	}
}

// Execute returns a copy of the trigger payload as the node output.
func (e *Executor) Execute(_ context.Context, req protocol.ExecuteRequest) (map[string]any, error) {
	if req.NodeType != "" && req.NodeType != e.nodeType {
		return nil, fmt.Errorf("trigger executor %s cannot run node type %s", e.nodeType, req.NodeType)
	}

	output := models.CloneDocument(req.TriggerPayload)
	if output == nil {
		output = map[string]any{}
	}

	return output, nil
}
