package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/db"
)

// ExecutionStore is the slice of the database layer backing execution records.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, e *autoflow.Execution) error
	GetExecution(ctx context.Context, id string) (*autoflow.Execution, error)
	UpdateExecution(ctx context.Context, e *autoflow.Execution) error
	ListExecutionsByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*autoflow.Execution, int, error)
	ListAllExecutions(ctx context.Context, limit, offset int, status string) ([]*autoflow.Execution, int, error)
	MarkOrphanedExecutionsFailed(ctx context.Context, includePending bool) (int64, error)
	FailExecutionIfRunning(ctx context.Context, id string, startedAt time.Time, errMsg string) (bool, error)
	CreateExecutionLog(ctx context.Context, l *autoflow.ExecutionLog) error
	FinalizeExecutionLog(ctx context.Context, l *autoflow.ExecutionLog) error
	ListExecutionLogs(ctx context.Context, executionID string) ([]*autoflow.ExecutionLog, error)
	DeleteExecutionLogs(ctx context.Context, executionID string) error
}

var _ ExecutionStore = (*db.DB)(nil)

// PersistentExecutionRepository wraps a MemoryExecutionRepository with a
// PostgreSQL backend. Writes go to the database first and are mirrored in
// memory only once they are stored, so a record never exists in one
// process alone. Execution reads prefer the database, since stop requests
// and retries may be recorded by another process sharing it.
type PersistentExecutionRepository struct {
	mem *MemoryExecutionRepository
	db  ExecutionStore
}

func NewPersistentExecutionRepository(mem *MemoryExecutionRepository, database ExecutionStore) *PersistentExecutionRepository {
	return &PersistentExecutionRepository{mem: mem, db: database}
}

func (r *PersistentExecutionRepository) Create(ctx context.Context, exec *autoflow.Execution) error {
	if err := r.db.CreateExecution(ctx, exec); err != nil {
		return err
	}
	_ = r.mem.Create(ctx, exec)
	return nil
}

func (r *PersistentExecutionRepository) Get(ctx context.Context, id string) (*autoflow.Execution, error) {
	exec, err := r.db.GetExecution(ctx, id)
	if err == nil {
		_ = r.mem.Create(ctx, exec)
		return exec, nil
	}
	return r.mem.Get(ctx, id)
}

func (r *PersistentExecutionRepository) Update(ctx context.Context, exec *autoflow.Execution) error {
	if err := r.db.UpdateExecution(ctx, exec); err != nil {
		return err
	}
	if err := r.mem.Update(ctx, exec); err != nil {
		_ = r.mem.Create(ctx, exec)
	}
	return nil
}

func (r *PersistentExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*autoflow.Execution, int, error) {
	execs, total, err := r.db.ListExecutionsByWorkflow(ctx, workflowID, limit, offset)
	if err == nil {
		return execs, total, nil
	}
	slog.Warn("db list executions failed, falling back to in-memory", "err", err)
	return r.mem.ListByWorkflow(ctx, workflowID, limit, offset)
}

func (r *PersistentExecutionRepository) ListAll(ctx context.Context, limit, offset int, status string) ([]*autoflow.Execution, int, error) {
	execs, total, err := r.db.ListAllExecutions(ctx, limit, offset, status)
	if err == nil {
		return execs, total, nil
	}
	slog.Warn("db list all executions failed, falling back to in-memory", "err", err)
	return r.mem.ListAll(ctx, limit, offset, status)
}

func (r *PersistentExecutionRepository) MarkOrphanedFailed(ctx context.Context, includePending bool) (int64, error) {
	_, _ = r.mem.MarkOrphanedFailed(ctx, includePending)
	return r.db.MarkOrphanedExecutionsFailed(ctx, includePending)
}

func (r *PersistentExecutionRepository) FailIfRunning(ctx context.Context, id string, startedAt time.Time, errMsg string) (bool, error) {
	ok, err := r.db.FailExecutionIfRunning(ctx, id, startedAt, errMsg)
	if err != nil || !ok {
		return ok, err
	}
	// The cached copy may carry a finer timestamp than the database returns.
	if cached, err := r.mem.Get(ctx, id); err == nil && cached.Status == autoflow.RunStatusRunning {
		if cached.Transition(autoflow.RunStatusFailed, time.Now()) == nil {
			cached.ErrorMessage = errMsg
			_ = r.mem.Update(ctx, cached)
		}
	}
	return true, nil
}

func (r *PersistentExecutionRepository) CreateLog(ctx context.Context, log *autoflow.ExecutionLog) error {
	if err := r.db.CreateExecutionLog(ctx, log); err != nil {
		return err
	}
	_ = r.mem.CreateLog(ctx, log)
	return nil
}

func (r *PersistentExecutionRepository) FinalizeLog(ctx context.Context, log *autoflow.ExecutionLog) error {
	if err := r.db.FinalizeExecutionLog(ctx, log); err != nil {
		return err
	}
	_ = r.mem.FinalizeLog(ctx, log)
	return nil
}

func (r *PersistentExecutionRepository) ListLogs(ctx context.Context, executionID string) ([]*autoflow.ExecutionLog, error) {
	logs, err := r.db.ListExecutionLogs(ctx, executionID)
	if err == nil {
		return logs, nil
	}
	slog.Warn("db list execution logs failed, falling back to in-memory", "err", err)
	return r.mem.ListLogs(ctx, executionID)
}

func (r *PersistentExecutionRepository) DeleteLogs(ctx context.Context, executionID string) error {
	if err := r.db.DeleteExecutionLogs(ctx, executionID); err != nil {
		return err
	}
	_ = r.mem.DeleteLogs(ctx, executionID)
	return nil
}
