package eventbus

import (
	"sync"
	"time"

	"github.com/dukex/runledger/pkg/events"
	"github.com/dukex/runledger/pkg/models"
)

// NodeState is the latest known status of one node.
type NodeState struct {
	NodeID    string                 `json:"node_id"`
	Status    models.ExecutionStatus `json:"status"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// StatusTracker merges push events and polled log rows into one view, keeping
// only the most recent value per node. Older values arriving late are discarded,
// so a single node never appears to move backwards.
type StatusTracker struct {
	mu    sync.RWMutex
	nodes map[string]NodeState
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{nodes: make(map[string]NodeState)}
}

// Apply merges a pushed event and reports whether it changed the view.
func (t *StatusTracker) Apply(event events.NodeStatus) bool {
	return t.merge(NodeState{NodeID: event.NodeID, Status: event.Status, UpdatedAt: event.CreatedAt})
}

// ApplyLogs merges polled log rows and returns the states that changed, in row order.
func (t *StatusTracker) ApplyLogs(logs []*models.ExecutionLog) []NodeState {
	var changed []NodeState

	for _, log := range logs {
		event := events.NodeStatusFromLog(log)
		if t.Apply(event) {
			changed = append(changed, NodeState{NodeID: event.NodeID, Status: event.Status, UpdatedAt: event.CreatedAt})
		}
	}

	return changed
}

func (t *StatusTracker) Status(nodeID string) (NodeState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.nodes[nodeID]

	return state, ok
}

// Snapshot returns a copy of the current view.
func (t *StatusTracker) Snapshot() map[string]NodeState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := make(map[string]NodeState, len(t.nodes))
	for id, state := range t.nodes {
		snapshot[id] = state
	}

	return snapshot
}

func (t *StatusTracker) merge(incoming NodeState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.nodes[incoming.NodeID]
	if ok && !newer(incoming, current) {
		return false
	}

	t.nodes[incoming.NodeID] = incoming

	return true
}

// newer orders by timestamp; on a tie a terminal status wins over a running one.
func newer(incoming, current NodeState) bool {
	if incoming.UpdatedAt.After(current.UpdatedAt) {
		return true
	}

	return incoming.UpdatedAt.Equal(current.UpdatedAt) &&
		incoming.Status.IsTerminal() && !current.Status.IsTerminal()
}
