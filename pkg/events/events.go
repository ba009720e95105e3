// Package events defines the event envelopes carried by the event bus.
package events

import (
	"time"

	"github.com/dukex/runledger/pkg/models"
)

type EventType string

// Watermill topics.
const Topic = "runledger.events" // Control-plane events (execution queue)

// StatusTopic is the only topic of a node-type channel.
const StatusTopic = "status"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionQueuedEvent EventType = "execution.queued"
	NodeStatusEvent      EventType = "node.status"
)

// ChannelTopic returns the transport topic of a (channel, topic) pair. Each node
// type owns one channel.
func ChannelTopic(channel, topic string) string {
	return "runledger.node." + channel + "." + topic
}

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

// ExecutionQueued hands a QUEUED execution to a worker.
type ExecutionQueued struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionQueued) GetType() EventType {
	return ExecutionQueuedEvent
}

// NodeStatus is the real-time signal published whenever a node log row changes status.
type NodeStatus struct {
	NodeID      string                 `json:"node_id"`
	ExecutionID string                 `json:"execution_id"`
	NodeType    string                 `json:"node_type"`
	Status      models.ExecutionStatus `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
}

func (e NodeStatus) GetType() EventType {
	return NodeStatusEvent
}

// NodeStatusFromLog builds the event for the current state of a log row. The
// timestamp is the row's completion time once terminal, its start time before.
func NodeStatusFromLog(log *models.ExecutionLog) NodeStatus {
	createdAt := log.StartedAt
	if log.CompletedAt != nil {
		createdAt = *log.CompletedAt
	}

	return NodeStatus{
		NodeID:      log.NodeID,
		ExecutionID: log.ExecutionID,
		NodeType:    log.NodeType,
		Status:      log.Status,
		CreatedAt:   createdAt,
	}
}
