package autoflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for a run state change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCancelled is returned by traversal when a stop request was observed.
	ErrCancelled = errors.New("execution cancelled")
	// ErrWorkflowInactive is returned when a non-manual run targets an inactive workflow.
	ErrWorkflowInactive = errors.New("workflow is not active")
)

// ConfigError is a configuration problem in a workflow graph or node: no
// trigger nodes, unknown kind or subtype, a missing required field, a cycle.
type ConfigError struct {
	NodeID string
	Msg    string
}

func (e *ConfigError) Error() string {
	if e.NodeID == "" {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("configuration error in node %q: %s", e.NodeID, e.Msg)
}

// NewConfigError formats a ConfigError for a node ("" for workflow-level).
func NewConfigError(nodeID, format string, args ...any) *ConfigError {
	return &ConfigError{NodeID: nodeID, Msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// NodeError wraps the failure of a single node attempt.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q failed: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
