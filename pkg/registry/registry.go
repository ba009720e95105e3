// Package registry maps node type tags to their executors.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/runledger/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrUnknownNodeType is returned when no executor is registered for a type tag.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrInvalidInput is returned when resolved input does not satisfy the executor schema.
	ErrInvalidInput = errors.New("invalid node input")
)

type Registry struct {
	logger *slog.Logger

	mu        sync.RWMutex
	executors map[string]protocol.NodeExecutor
	schemas   map[string]*gojsonschema.Schema
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		executors: make(map[string]protocol.NodeExecutor),
		schemas:   make(map[string]*gojsonschema.Schema),
	}
}

// Register adds executor under its type tag, replacing any previous one. The
// schema is compiled once here so a broken schema fails at startup.
func (r *Registry) Register(executor protocol.NodeExecutor) error {
	var compiled *gojsonschema.Schema

	if schema := executor.Schema(); schema != nil {
		var err error

		compiled, err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
		if err != nil {
			return fmt.Errorf("invalid schema for node type %s: %w", executor.Type(), err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.executors[executor.Type()] = executor
	r.schemas[executor.Type()] = compiled

	r.logger.Debug("Registered node executor", "node_type", executor.Type())

	return nil
}

// Get returns the executor for nodeType.
func (r *Registry) Get(nodeType string) (protocol.NodeExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}

	return executor, nil
}

// Has reports whether nodeType is registered.
func (r *Registry) Has(nodeType string) bool {
	_, err := r.Get(nodeType)

	return err == nil
}

// Types returns the registered type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.executors))
	for nodeType := range r.executors {
		types = append(types, nodeType)
	}

	sort.Strings(types)

	return types
}

// Validate checks input against the schema registered for nodeType.
func (r *Registry) Validate(nodeType string, input map[string]any) error {
	r.mu.RLock()
	schema, ok := r.schemas[nodeType]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}

	if schema == nil {
		return nil
	}

	if input == nil {
		input = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(messages, "; "))
}

// HealthCheck reports whether any node executor is registered.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.executors) == 0 {
		return "No node executors registered", false
	}

	return "Registry is healthy", true
}
