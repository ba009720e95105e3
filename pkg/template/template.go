// Package template resolves {{identifier.path}} references in node configuration
// against the outputs of previously completed nodes.
package template

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/dukex/runledger/pkg/models"
	"github.com/ohler55/ojg/jp"
)

var (
	referencePattern  = regexp.MustCompile(`\{\{\s*(json\s+)?([^{}]+?)\s*\}\}`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// IsIdentifier reports whether name can be used as a template identifier.
func IsIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Resolve expands every reference in tmpl against outputs, a map of variable
// name to node output document.
//
// A template made of a single plain reference resolves to the referenced value
// itself, keeping its type. {{json x}} renders x as compact JSON. Any other mix
// of text and references yields a string where string values are inserted
// verbatim and other values as compact JSON.
func Resolve(tmpl string, outputs map[string]any) (any, error) {
	matches := referencePattern.FindAllStringSubmatchIndex(tmpl, -1)
	if len(matches) == 0 {
		return tmpl, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(tmpl) && matches[0][2] < 0 {
		return lookup(tmpl[matches[0][4]:matches[0][5]], outputs)
	}

	var out strings.Builder

	last := 0

	for _, match := range matches {
		out.WriteString(tmpl[last:match[0]])

		asJSON := match[2] >= 0
		reference := tmpl[match[4]:match[5]]

		value, err := lookup(reference, outputs)
		if err != nil {
			return nil, err
		}

		text, err := render(value, asJSON)
		if err != nil {
			return nil, &models.TemplateError{Reference: reference, Reason: err.Error()}
		}

		out.WriteString(text)

		last = match[1]
	}

	out.WriteString(tmpl[last:])

	return out.String(), nil
}

// ResolveConfig returns a copy of config with every string field resolved,
// walking nested maps and slices. Non-string values pass through unchanged.
func ResolveConfig(config map[string]any, outputs map[string]any) (map[string]any, error) {
	if config == nil {
		return map[string]any{}, nil
	}

	resolved := make(map[string]any, len(config))

	for key, value := range config {
		v, err := resolveValue(value, outputs)
		if err != nil {
			return nil, err
		}

		resolved[key] = v
	}

	return resolved, nil
}

func resolveValue(value any, outputs map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return Resolve(v, outputs)
	case map[string]any:
		return ResolveConfig(v, outputs)
	case []any:
		items := make([]any, len(v))

		for i, item := range v {
			resolved, err := resolveValue(item, outputs)
			if err != nil {
				return nil, err
			}

			items[i] = resolved
		}

		return items, nil
	default:
		return v, nil
	}
}

func lookup(reference string, outputs map[string]any) (any, error) {
	segments := strings.Split(reference, ".")
	identifier := segments[0]

	if !IsIdentifier(identifier) {
		return nil, &models.TemplateError{Reference: reference, Reason: "invalid identifier " + strconv.Quote(identifier)}
	}

	current, ok := outputs[identifier]
	if !ok {
		return nil, &models.TemplateError{Reference: reference, Reason: "unknown identifier " + strconv.Quote(identifier)}
	}

	for _, segment := range segments[1:] {
		if segment == "" {
			return nil, &models.TemplateError{Reference: reference, Reason: "empty path segment"}
		}

		next, found := step(current, segment)
		if !found {
			return nil, &models.TemplateError{Reference: reference, Reason: "missing path segment " + strconv.Quote(segment)}
		}

		current = next
	}

	return current, nil
}

// step moves one segment down. Numeric segments index arrays, and fall back to
// a map key for objects whose keys happen to be numeric.
func step(data any, segment string) (any, bool) {
	if index, err := strconv.Atoi(segment); err == nil && index >= 0 {
		if found := jp.N(index).Get(data); len(found) > 0 {
			return found[0], true
		}
	}

	found := jp.C(segment).Get(data)
	if len(found) == 0 {
		return nil, false
	}

	return found[0], true
}

func render(value any, asJSON bool) (string, error) {
	if s, ok := value.(string); ok && !asJSON {
		return s, nil
	}

	return compactJSON(value)
}

func compactJSON(value any) (string, error) {
	var buf bytes.Buffer

	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(value); err != nil {
		return "", err
	}

	return strings.TrimSuffix(buf.String(), "\n"), nil
}
