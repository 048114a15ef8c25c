package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
)

const maxExecutionRecords = 1000

// MemoryExecutionRepository stores executions and logs in memory. Once at
// capacity the oldest terminal execution is evicted with its logs. Records
// are copied on the way in and out so callers never share state.
type MemoryExecutionRepository struct {
	mu      sync.RWMutex
	records map[string]*autoflow.Execution
	order   []string // insertion order for FIFO eviction
	logs    map[string][]*autoflow.ExecutionLog
}

func NewMemoryExecutionRepository() *MemoryExecutionRepository {
	return &MemoryExecutionRepository{
		records: make(map[string]*autoflow.Execution),
		logs:    make(map[string][]*autoflow.ExecutionLog),
	}
}

func (r *MemoryExecutionRepository) Create(_ context.Context, exec *autoflow.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[exec.ID]; !exists {
		if len(r.order) >= maxExecutionRecords {
			r.evictLocked()
		}
		r.order = append(r.order, exec.ID)
	}
	r.records[exec.ID] = cloneExecution(exec)
	return nil
}

// evictLocked drops the oldest terminal execution.
func (r *MemoryExecutionRepository) evictLocked() {
	for i, id := range r.order {
		if rec := r.records[id]; rec == nil || rec.Status.IsTerminal() {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			delete(r.records, id)
			delete(r.logs, id)
			return
		}
	}
}

func (r *MemoryExecutionRepository) Get(_ context.Context, id string) (*autoflow.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: execution %s", ErrNotFound, id)
	}
	return cloneExecution(rec), nil
}

func (r *MemoryExecutionRepository) Update(_ context.Context, exec *autoflow.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[exec.ID]; !ok {
		return fmt.Errorf("%w: execution %s", ErrNotFound, exec.ID)
	}
	r.records[exec.ID] = cloneExecution(exec)
	return nil
}

func (r *MemoryExecutionRepository) ListByWorkflow(_ context.Context, workflowID string, limit, offset int) ([]*autoflow.Execution, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filtered []*autoflow.Execution
	for _, rec := range r.records {
		if rec.WorkflowID == workflowID {
			filtered = append(filtered, cloneExecution(rec))
		}
	}
	page, total := paginate(filtered, limit, offset)
	return page, total, nil
}

func (r *MemoryExecutionRepository) ListAll(_ context.Context, limit, offset int, status string) ([]*autoflow.Execution, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*autoflow.Execution, 0, len(r.records))
	for _, rec := range r.records {
		if status == "" || string(rec.Status) == status {
			all = append(all, cloneExecution(rec))
		}
	}
	page, total := paginate(all, limit, offset)
	return page, total, nil
}

// paginate sorts newest first and slices out one page.
func paginate(execs []*autoflow.Execution, limit, offset int) ([]*autoflow.Execution, int) {
	sort.Slice(execs, func(i, j int) bool {
		return execs[i].CreatedAt.After(execs[j].CreatedAt)
	})
	total := len(execs)
	if offset >= total {
		return nil, total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return execs[offset:end], total
}

func (r *MemoryExecutionRepository) MarkOrphanedFailed(_ context.Context, includePending bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var n int64
	for _, rec := range r.records {
		if rec.Status == autoflow.RunStatusRunning || (includePending && rec.Status == autoflow.RunStatusPending) {
			rec.Status = autoflow.RunStatusFailed
			rec.ErrorMessage = "interrupted by restart"
			rec.FinishedAt = &now
			n++
		}
	}
	return n, nil
}

func (r *MemoryExecutionRepository) FailIfRunning(_ context.Context, id string, startedAt time.Time, errMsg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return false, fmt.Errorf("%w: execution %s", ErrNotFound, id)
	}
	if rec.Status != autoflow.RunStatusRunning || rec.StartedAt == nil || !rec.StartedAt.Equal(startedAt) {
		return false, nil
	}
	if err := rec.Transition(autoflow.RunStatusFailed, time.Now()); err != nil {
		return false, err
	}
	rec.ErrorMessage = errMsg
	return true, nil
}

// --- Logs ---

func (r *MemoryExecutionRepository) CreateLog(_ context.Context, log *autoflow.ExecutionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[log.ExecutionID]; !ok {
		return fmt.Errorf("%w: execution %s", ErrNotFound, log.ExecutionID)
	}
	cp := *log
	r.logs[log.ExecutionID] = append(r.logs[log.ExecutionID], &cp)
	return nil
}

func (r *MemoryExecutionRepository) FinalizeLog(_ context.Context, log *autoflow.ExecutionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.logs[log.ExecutionID] {
		if l.ID != log.ID {
			continue
		}
		if l.Finalized() {
			return nil
		}
		l.Status = log.Status
		l.OutputData = log.OutputData
		l.ErrorMessage = log.ErrorMessage
		l.DurationMs = log.DurationMs
		return nil
	}
	return fmt.Errorf("%w: execution log %s", ErrNotFound, log.ID)
}

func (r *MemoryExecutionRepository) ListLogs(_ context.Context, executionID string) ([]*autoflow.ExecutionLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.logs[executionID]
	out := make([]*autoflow.ExecutionLog, len(src))
	for i, l := range src {
		cp := *l
		out[i] = &cp
	}
	return out, nil
}

func (r *MemoryExecutionRepository) DeleteLogs(_ context.Context, executionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.logs, executionID)
	return nil
}

func cloneExecution(e *autoflow.Execution) *autoflow.Execution {
	cp := *e
	return &cp
}
