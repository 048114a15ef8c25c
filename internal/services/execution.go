package services

import (
	"context"
	"sync"
)

// ExecutionRegistry tracks the cancel functions of attempts running in this
// process, so a stop request can interrupt in-flight integration I/O.
type ExecutionRegistry struct {
	mu      sync.RWMutex
	handles map[string]context.CancelFunc
}

func NewExecutionRegistry() *ExecutionRegistry {
	return &ExecutionRegistry{handles: make(map[string]context.CancelFunc)}
}

// Register records the cancel function of a running attempt.
func (r *ExecutionRegistry) Register(executionID string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.handles[executionID] = cancel
	r.mu.Unlock()
}

// Cancel interrupts the execution if it runs in this process.
func (r *ExecutionRegistry) Cancel(executionID string) bool {
	r.mu.RLock()
	cancel, ok := r.handles[executionID]
	r.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// Unregister removes a finished execution.
func (r *ExecutionRegistry) Unregister(executionID string) {
	r.mu.Lock()
	delete(r.handles, executionID)
	r.mu.Unlock()
}

// Active returns the number of registered executions.
func (r *ExecutionRegistry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
