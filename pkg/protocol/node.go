// Package protocol defines the contracts between the orchestrator and pluggable node executors.
package protocol

import (
	"context"
	"errors"
)

// ErrCredentialNotFound is returned when a credential reference cannot be resolved.
var ErrCredentialNotFound = errors.New("credential not found")

// ExecuteRequest is one node invocation with its configuration already resolved.
type ExecuteRequest struct {
	ExecutionID string
	NodeID      string
	NodeType    string

	// Input is the resolved node configuration. Executors must not mutate it.
	Input map[string]any

	// CredentialRef is an opaque reference; executors resolve it through a
	// CredentialResolver and never copy the secret into their output.
	CredentialRef string

	// TriggerPayload is the document that started the execution.
	TriggerPayload map[string]any
}

// NodeExecutor performs the work of one node type.
type NodeExecutor interface {
	// Type returns the node type tag this executor is registered under.
	Type() string

	// Schema returns the JSON schema the resolved input must satisfy.
	Schema() map[string]any

	// Execute runs the node and returns its output document.
	Execute(ctx context.Context, req ExecuteRequest) (map[string]any, error)
}

// CredentialResolver turns a credential reference into a secret value.
type CredentialResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}
