package autoflow

import (
	"fmt"
	"time"
)

// --- Run Status ---

// RunStatus represents the lifecycle state of an execution.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSuccess   RunStatus = "success"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// runTransitions lists the legal next states for each run status.
// failed -> running covers an automatic retry attempt of the same run.
var runTransitions = map[RunStatus][]RunStatus{
	RunStatusPending:   {RunStatusRunning, RunStatusFailed, RunStatusCancelled},
	RunStatusRunning:   {RunStatusSuccess, RunStatusFailed, RunStatusCancelled},
	RunStatusFailed:    {RunStatusPending, RunStatusRunning, RunStatusFailed},
	RunStatusCancelled: {RunStatusPending},
	RunStatusSuccess:   nil,
}

// IsTerminal reports whether no further work happens for a run in status s
// unless it is explicitly retried.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed || s == RunStatusCancelled
}

// CanTransition reports whether a run may move from s to next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidRunStatus reports whether s names a known run status.
func ValidRunStatus(s string) bool {
	_, ok := runTransitions[RunStatus(s)]
	return ok
}

// Execution is one run of a workflow against a given input.
type Execution struct {
	ID           string         `json:"id"`
	WorkflowID   string         `json:"workflow_id"`
	Status       RunStatus      `json:"status"`
	TriggerData  map[string]any `json:"trigger_data"`
	Attempt      int            `json:"attempt"`
	Generation   int            `json:"generation"` // bumped by each manual retry
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Transition moves the execution to next, stamping timestamps.
func (e *Execution) Transition(next RunStatus, now time.Time) error {
	if !e.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, next)
	}
	e.Status = next
	switch next {
	case RunStatusPending:
		e.StartedAt = nil
		e.FinishedAt = nil
		e.ErrorMessage = ""
	case RunStatusRunning:
		e.StartedAt = &now
		e.FinishedAt = nil
		e.ErrorMessage = ""
	default:
		e.FinishedAt = &now
	}
	return nil
}

// TriggerType returns the triggerType recorded in the trigger data.
func (e *Execution) TriggerType() string {
	s, _ := e.TriggerData["triggerType"].(string)
	return s
}

// --- Execution Log ---

// LogStatus is the state of a single node attempt.
type LogStatus string

const (
	LogStatusPending LogStatus = "pending"
	LogStatusRunning LogStatus = "running"
	LogStatusSuccess LogStatus = "success"
	LogStatusFailed  LogStatus = "failed"
	LogStatusSkipped LogStatus = "skipped"
)

// ExecutionLog records one node attempt within an execution. It is created
// in running state and finalized exactly once.
type ExecutionLog struct {
	ID           string         `json:"id"`
	ExecutionID  string         `json:"execution_id"`
	NodeID       string         `json:"node_id"`
	Status       LogStatus      `json:"status"`
	InputData    map[string]any `json:"input_data"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ExecutedAt   time.Time      `json:"executed_at"`
	DurationMs   int64          `json:"duration_ms"`
	Seq          int64          `json:"seq"`
}

// Finalized reports whether the log has reached a final state.
func (l *ExecutionLog) Finalized() bool {
	return l.Status == LogStatusSuccess || l.Status == LogStatusFailed || l.Status == LogStatusSkipped
}
