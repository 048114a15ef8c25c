package autoflow

import "time"

// NodeKind is the declared type of a workflow node.
type NodeKind string

const (
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindAction    NodeKind = "action"
	NodeKindCondition NodeKind = "condition"
)

// ConnectionType tags an edge with the producing node's outcome it is meant
// for. Traversal does not consult it; it is carried for the editor.
type ConnectionType string

const (
	ConnectionSuccess ConnectionType = "success"
	ConnectionFailure ConnectionType = "failure"
	ConnectionAlways  ConnectionType = "always"
)

// Workflow is a node graph owned by the editor and read-only to the engine.
type Workflow struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []Node         `json:"nodes" yaml:"nodes"`
	Connections []Connection   `json:"connections" yaml:"connections"`
	IsActive    bool           `json:"is_active" yaml:"is_active"`
	Settings    map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
	CreatedAt   time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"-"`
}

// Node is a typed step in a workflow. NodeID is the stable key edges refer
// to; it is unique within its workflow.
type Node struct {
	NodeID string         `json:"node_id" yaml:"node_id"`
	Kind   NodeKind       `json:"kind" yaml:"kind"`
	Label  string         `json:"label,omitempty" yaml:"label,omitempty"`
	Config map[string]any `json:"config" yaml:"config"`
}

// Connection is a directed edge between two nodes of the same workflow.
type Connection struct {
	SourceNodeID   string         `json:"source_node_id" yaml:"source_node_id"`
	TargetNodeID   string         `json:"target_node_id" yaml:"target_node_id"`
	ConnectionType ConnectionType `json:"connection_type,omitempty" yaml:"connection_type,omitempty"`
}

// Type returns the connection type, defaulting to success.
func (c Connection) Type() ConnectionType {
	if c.ConnectionType == "" {
		return ConnectionSuccess
	}
	return c.ConnectionType
}

// StringConfig returns a string-valued config field, or "" when absent.
func (n *Node) StringConfig(key string) string {
	s, _ := n.Config[key].(string)
	return s
}
