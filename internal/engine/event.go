package engine

import "time"

// EventType names a node lifecycle event.
type EventType string

const (
	EventNodeStarted   EventType = "node.started"
	EventNodeCompleted EventType = "node.completed"
	EventNodeFailed    EventType = "node.failed"
)

// Event is published on the EventBus for every node attempt transition.
type Event struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	Type        EventType      `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
