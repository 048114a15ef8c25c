package ports

import (
	"context"

	"github.com/soochol/autoflow/internal/autoflow"
)

// NodeLogStore is what the traversal engine needs from run history: durable
// per-node attempt records and a way to observe stop requests.
type NodeLogStore interface {
	StartNodeLog(ctx context.Context, executionID, nodeID string, input map[string]any) (*autoflow.ExecutionLog, error)
	FinishNodeLog(ctx context.Context, log *autoflow.ExecutionLog) error
	IsCancelled(ctx context.Context, executionID string) (bool, error)
}

// RunHistoryPort records and queries executions and their node logs.
// Services should depend on this interface rather than *RunHistoryService directly.
type RunHistoryPort interface {
	NodeLogStore
	CreateExecution(ctx context.Context, workflowID string, triggerData map[string]any) (*autoflow.Execution, error)
	MarkRunning(ctx context.Context, id string, attempt int) (*autoflow.Execution, error)
	CompleteExecution(ctx context.Context, id string) error
	FailExecution(ctx context.Context, id string, errMsg string) error
	CancelExecution(ctx context.Context, id string) (*autoflow.Execution, error)
	ResetForRetry(ctx context.Context, id string) (*autoflow.Execution, error)
	ClearLogs(ctx context.Context, id string) error
	GetExecution(ctx context.Context, id string) (*autoflow.Execution, error)
	ListLogs(ctx context.Context, executionID string) ([]*autoflow.ExecutionLog, error)
	ListExecutions(ctx context.Context, workflowID string, limit, offset int) ([]*autoflow.Execution, int, error)
	ListAllExecutions(ctx context.Context, limit, offset int, status string) ([]*autoflow.Execution, int, error)
}
