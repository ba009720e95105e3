// Package transform provides the transform node executor. The orchestrator has
// already resolved templates in its configuration, so a transform reshapes
// prior outputs by templating "expression" and optionally narrowing the result
// with a JSONPath query.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/protocol"
	"github.com/ohler55/ojg/jp"
)

// NodeType is the tag the executor is registered under.
const NodeType = models.NodeTypeTransform

// Executor reshapes data.
type Executor struct{}

// NewExecutor creates the executor.
func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Type() string {
	return NodeType
}

func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"description": "Value to emit. Objects may embed references such as {{httpResponse.data}}",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Optional JSONPath applied to the expression, e.g. $.items[*].id",
				"examples":    []string{"$.data.id", "$.items[*].name"},
			},
		},
		"required": []string{"expression"},
	}
}

// Execute emits {"result": value}. With a path, value is the single match or
// the list of matches when the path selects more than one.
func (e *Executor) Execute(_ context.Context, req protocol.ExecuteRequest) (map[string]any, error) {
	expression, ok := req.Input["expression"]
	if !ok {
		return nil, errors.New("missing required field 'expression'")
	}

	result := cloneValue(expression)

	if path, ok := req.Input["path"].(string); ok && path != "" {
		selected, err := selectPath(result, path)
		if err != nil {
			return nil, err
		}

		result = selected
	}

	return map[string]any{"result": result}, nil
}

func selectPath(data any, path string) (any, error) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}

	found := expr.Get(data)

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("path %q matched nothing", path)
	case 1:
		return found[0], nil
	default:
		return found, nil
	}
}

func cloneValue(value any) any {
	if doc, ok := value.(map[string]any); ok {
		return models.CloneDocument(doc)
	}

	return value
}
