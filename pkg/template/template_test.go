package template

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dukex/runledger/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func outputs() map[string]any {
	return map[string]any{
		"httpResponse": map[string]any{
			"status": 200,
			"data": map[string]any{
				"id":    "42",
				"items": []any{"a", map[string]any{"sku": "X-1"}},
				"0":     "numeric key",
			},
		},
		"trigger": map[string]any{"user": "ana"},
	}
}

func TestResolve_Interpolation(t *testing.T) {
	result, err := Resolve("Summarize {{httpResponse.data.id}}", outputs())
	require.NoError(t, err)
	assert.Equal(t, "Summarize 42", result)
}

func TestResolve_WholeReferenceKeepsType(t *testing.T) {
	result, err := Resolve("{{httpResponse.status}}", outputs())
	require.NoError(t, err)
	assert.Equal(t, 200, result)

	result, err = Resolve("{{ httpResponse.data }}", outputs())
	require.NoError(t, err)
	assert.IsType(t, map[string]any{}, result)
}

func TestResolve_ArrayIndexAndNumericKey(t *testing.T) {
	result, err := Resolve("{{httpResponse.data.items.1.sku}}", outputs())
	require.NoError(t, err)
	assert.Equal(t, "X-1", result)

	result, err = Resolve("{{httpResponse.data.0}}", outputs())
	require.NoError(t, err)
	assert.Equal(t, "numeric key", result)
}

func TestResolve_MixedNonStringRendersJSON(t *testing.T) {
	result, err := Resolve("code={{httpResponse.status}} items={{httpResponse.data.items}}", outputs())
	require.NoError(t, err)
	assert.Equal(t, `code=200 items=["a",{"sku":"X-1"}]`, result)
}

func TestResolve_JSONForm(t *testing.T) {
	result, err := Resolve(`{"payload": {{json trigger}}}`, outputs())
	require.NoError(t, err)
	assert.Equal(t, `{"payload": {"user":"ana"}}`, result)

	result, err = Resolve("{{json trigger.user}}", outputs())
	require.NoError(t, err)
	assert.Equal(t, `"ana"`, result)
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name     string
		template string
		reason   string
	}{
		{"unknown identifier", "{{missing.data}}", "unknown identifier"},
		{"missing segment", "Hello {{httpResponse.data.name}}", "missing path segment"},
		{"index out of range", "{{httpResponse.data.items.9}}", "missing path segment"},
		{"raw node id", "{{node-1.data}}", "invalid identifier"},
		{"empty segment", "{{httpResponse..status}}", "empty path segment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.template, outputs())
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrTemplate)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestResolveConfig_NestedFields(t *testing.T) {
	config := map[string]any{
		"url":     "https://api.example.com/orders/{{httpResponse.data.id}}",
		"timeout": 30,
		"headers": map[string]any{"X-User": "{{trigger.user}}"},
		"tags":    []any{"static", "{{httpResponse.status}}"},
		"enabled": true,
	}

	resolved, err := ResolveConfig(config, outputs())
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/orders/42", resolved["url"])
	assert.Equal(t, 30, resolved["timeout"])
	assert.Equal(t, true, resolved["enabled"])
	assert.Equal(t, map[string]any{"X-User": "ana"}, resolved["headers"])
	assert.Equal(t, []any{"static", 200}, resolved["tags"])

	assert.Equal(t, "{{trigger.user}}", config["headers"].(map[string]any)["X-User"])
}

func TestResolveConfig_FailsOnFirstBadReference(t *testing.T) {
	_, err := ResolveConfig(map[string]any{"prompt": "{{nope.x}}"}, outputs())

	var templateErr *models.TemplateError
	require.ErrorAs(t, err, &templateErr)
	assert.Equal(t, "nope.x", templateErr.Reference)
}

func TestResolve_IdempotentWithoutReferences(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Filter(func(s string) bool { return !strings.Contains(s, "{{") }).Draw(t, "s")

		result, err := Resolve(s, outputs())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result != s {
			t.Fatalf("expected %q unchanged, got %q", s, result)
		}

		again, err := Resolve(result.(string), outputs())
		if err != nil || again != result {
			t.Fatalf("second pass changed %q into %q", result, again)
		}
	})
}

func TestResolve_JSONRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		value := jsonValue(3).Draw(t, "value")

		result, err := Resolve("{{json x}}", map[string]any{"x": value})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded any
		if err := json.Unmarshal([]byte(result.(string)), &decoded); err != nil {
			t.Fatalf("invalid json %q: %v", result, err)
		}

		if !assert.ObjectsAreEqual(value, decoded) {
			t.Fatalf("round trip mismatch: %#v != %#v", value, decoded)
		}
	})
}

func jsonValue(depth int) *rapid.Generator[any] {
	scalars := []*rapid.Generator[any]{
		rapid.Map(rapid.IntRange(-1_000_000, 1_000_000), func(i int) any { return float64(i) }),
		rapid.Map(rapid.String(), func(s string) any { return s }),
		rapid.Map(rapid.Bool(), func(b bool) any { return b }),
		rapid.Just[any](nil),
	}

	if depth == 0 {
		return rapid.OneOf(scalars...)
	}

	composite := append(scalars,
		rapid.Map(rapid.SliceOfN(jsonValue(depth-1), 0, 4), func(items []any) any {
			if items == nil {
				return []any{}
			}

			return items
		}),
		rapid.Map(rapid.MapOfN(rapid.StringMatching(`[a-z]{1,6}`), jsonValue(depth-1), 0, 4), func(m map[string]any) any {
			if m == nil {
				return map[string]any{}
			}

			return m
		}),
	)

	return rapid.OneOf(composite...)
}
