package repository

import (
	"context"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
)

// ExecutionRepository abstracts persistence for executions and their node logs.
type ExecutionRepository interface {
	Create(ctx context.Context, exec *autoflow.Execution) error
	Get(ctx context.Context, id string) (*autoflow.Execution, error)
	Update(ctx context.Context, exec *autoflow.Execution) error
	ListByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*autoflow.Execution, int, error)
	// ListAll returns executions of every workflow. status filters by run
	// status when non-empty.
	ListAll(ctx context.Context, limit, offset int, status string) ([]*autoflow.Execution, int, error)

	CreateLog(ctx context.Context, log *autoflow.ExecutionLog) error
	// FinalizeLog records the outcome of a running log. Finalized logs are
	// never rewritten.
	FinalizeLog(ctx context.Context, log *autoflow.ExecutionLog) error
	// ListLogs returns an execution's logs in start order.
	ListLogs(ctx context.Context, executionID string) ([]*autoflow.ExecutionLog, error)
	DeleteLogs(ctx context.Context, executionID string) error
}

// OrphanCleaner is implemented by execution stores that can fail runs left
// behind by a crashed process.
type OrphanCleaner interface {
	MarkOrphanedFailed(ctx context.Context, includePending bool) (int64, error)
	// FailIfRunning fails one execution only while it is still running the
	// attempt that started at startedAt, and reports whether it did.
	FailIfRunning(ctx context.Context, id string, startedAt time.Time, errMsg string) (bool, error)
}
