package transform

import (
	"context"
	"testing"

	"github.com/dukex/runledger/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_EmitsExpression(t *testing.T) {
	output, err := NewExecutor().Execute(context.Background(), protocol.ExecuteRequest{
		Input: map[string]any{"expression": "Hello, john_doe"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": "Hello, john_doe"}, output)
}

func TestExecutor_PathSingleMatch(t *testing.T) {
	output, err := NewExecutor().Execute(context.Background(), protocol.ExecuteRequest{
		Input: map[string]any{
			"expression": map[string]any{"data": map[string]any{"id": "42"}},
			"path":       "$.data.id",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", output["result"])
}

func TestExecutor_PathManyMatches(t *testing.T) {
	output, err := NewExecutor().Execute(context.Background(), protocol.ExecuteRequest{
		Input: map[string]any{
			"expression": map[string]any{
				"items": []any{
					map[string]any{"name": "a"},
					map[string]any{"name": "b"},
				},
			},
			"path": "$.items[*].name",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, output["result"])
}

func TestExecutor_DoesNotAliasInput(t *testing.T) {
	input := map[string]any{"expression": map[string]any{"k": "v"}}

	output, err := NewExecutor().Execute(context.Background(), protocol.ExecuteRequest{Input: input})
	require.NoError(t, err)

	output["result"].(map[string]any)["k"] = "changed"
	assert.Equal(t, "v", input["expression"].(map[string]any)["k"])
}

func TestExecutor_Errors(t *testing.T) {
	executor := NewExecutor()

	_, err := executor.Execute(context.Background(), protocol.ExecuteRequest{Input: map[string]any{}})
	require.ErrorContains(t, err, "expression")

	_, err = executor.Execute(context.Background(), protocol.ExecuteRequest{
		Input: map[string]any{"expression": map[string]any{"a": 1}, "path": "$.missing"},
	})
	require.ErrorContains(t, err, "matched nothing")

	_, err = executor.Execute(context.Background(), protocol.ExecuteRequest{
		Input: map[string]any{"expression": map[string]any{"a": 1}, "path": "$.a["},
	})
	require.ErrorContains(t, err, "invalid path")
}
