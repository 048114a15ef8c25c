package ports

import (
	"context"

	"github.com/soochol/autoflow/internal/autoflow"
)

// JobQueue is the queue execution jobs wait in until a worker picks them up.
// Dequeue blocks until a job whose NotBefore has passed is available or ctx ends.
type JobQueue interface {
	Enqueue(ctx context.Context, job *autoflow.Job) error
	Dequeue(ctx context.Context) (*autoflow.Job, error)
	Len(ctx context.Context) (int, error)
	Durable() bool
}

// ConcurrencyControl is the named exclusive lock keyed by workflow ID.
// Acquire blocks until the lock is held or ctx ends.
type ConcurrencyControl interface {
	Acquire(ctx context.Context, workflowID string) error
	Release(workflowID string)
}

// LockInspector reports whether any process holds a workflow's exclusive lock.
type LockInspector interface {
	Held(ctx context.Context, workflowID string) (bool, error)
}

// RunSubmitter creates executions and hands them to the job layer.
type RunSubmitter interface {
	CreateRun(ctx context.Context, workflowID string, triggerData map[string]any) (*autoflow.Execution, error)
	Enqueue(ctx context.Context, exec *autoflow.Execution) error
}
