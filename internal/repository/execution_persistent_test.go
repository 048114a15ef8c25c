package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
)

var errDBDown = errors.New("connection refused")

// flakyStore is an ExecutionStore kept in memory whose writes fail while
// down is set.
type flakyStore struct {
	*MemoryExecutionRepository
	down bool
}

func (s *flakyStore) write() error {
	if s.down {
		return errDBDown
	}
	return nil
}

func (s *flakyStore) CreateExecution(ctx context.Context, e *autoflow.Execution) error {
	if err := s.write(); err != nil {
		return err
	}
	return s.Create(ctx, e)
}

func (s *flakyStore) GetExecution(ctx context.Context, id string) (*autoflow.Execution, error) {
	return s.Get(ctx, id)
}

func (s *flakyStore) UpdateExecution(ctx context.Context, e *autoflow.Execution) error {
	if err := s.write(); err != nil {
		return err
	}
	return s.Update(ctx, e)
}

func (s *flakyStore) ListExecutionsByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*autoflow.Execution, int, error) {
	return s.ListByWorkflow(ctx, workflowID, limit, offset)
}

func (s *flakyStore) ListAllExecutions(ctx context.Context, limit, offset int, status string) ([]*autoflow.Execution, int, error) {
	return s.ListAll(ctx, limit, offset, status)
}

func (s *flakyStore) MarkOrphanedExecutionsFailed(ctx context.Context, includePending bool) (int64, error) {
	return s.MarkOrphanedFailed(ctx, includePending)
}

func (s *flakyStore) FailExecutionIfRunning(ctx context.Context, id string, startedAt time.Time, errMsg string) (bool, error) {
	if err := s.write(); err != nil {
		return false, err
	}
	return s.FailIfRunning(ctx, id, startedAt, errMsg)
}

func (s *flakyStore) CreateExecutionLog(ctx context.Context, l *autoflow.ExecutionLog) error {
	if err := s.write(); err != nil {
		return err
	}
	return s.CreateLog(ctx, l)
}

func (s *flakyStore) FinalizeExecutionLog(ctx context.Context, l *autoflow.ExecutionLog) error {
	if err := s.write(); err != nil {
		return err
	}
	return s.FinalizeLog(ctx, l)
}

func (s *flakyStore) ListExecutionLogs(ctx context.Context, executionID string) ([]*autoflow.ExecutionLog, error) {
	return s.ListLogs(ctx, executionID)
}

func (s *flakyStore) DeleteExecutionLogs(ctx context.Context, executionID string) error {
	if err := s.write(); err != nil {
		return err
	}
	return s.DeleteLogs(ctx, executionID)
}

func TestPersistentExecutionRepo_SurfacesWriteFailures(t *testing.T) {
	store := &flakyStore{MemoryExecutionRepository: NewMemoryExecutionRepository()}
	repo := NewPersistentExecutionRepository(NewMemoryExecutionRepository(), store)
	ctx := context.Background()

	exec := newExecution("exec-1", "wf-1", autoflow.RunStatusPending, time.Now())
	if err := repo.Create(ctx, exec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	log := &autoflow.ExecutionLog{ID: "log-1", ExecutionID: exec.ID, NodeID: "t", Status: autoflow.LogStatusRunning}
	if err := repo.CreateLog(ctx, log); err != nil {
		t.Fatalf("CreateLog: %v", err)
	}

	store.down = true

	if err := repo.Create(ctx, newExecution("exec-2", "wf-1", autoflow.RunStatusPending, time.Now())); !errors.Is(err, errDBDown) {
		t.Fatalf("Create: expected database error, got %v", err)
	}
	if _, err := repo.mem.Get(ctx, "exec-2"); err == nil {
		t.Fatal("an execution the database rejected must not be cached")
	}

	done := *exec
	done.Status = autoflow.RunStatusSuccess
	if err := repo.Update(ctx, &done); !errors.Is(err, errDBDown) {
		t.Fatalf("Update: expected database error, got %v", err)
	}
	if got, _ := repo.Get(ctx, exec.ID); got.Status != autoflow.RunStatusPending {
		t.Fatalf("failed update must not change the record, got %s", got.Status)
	}

	log.Status = autoflow.LogStatusSuccess
	if err := repo.FinalizeLog(ctx, log); !errors.Is(err, errDBDown) {
		t.Fatalf("FinalizeLog: expected database error, got %v", err)
	}
	if err := repo.CreateLog(ctx, &autoflow.ExecutionLog{ID: "log-2", ExecutionID: exec.ID}); !errors.Is(err, errDBDown) {
		t.Fatalf("CreateLog: expected database error, got %v", err)
	}
	if err := repo.DeleteLogs(ctx, exec.ID); !errors.Is(err, errDBDown) {
		t.Fatalf("DeleteLogs: expected database error, got %v", err)
	}

	store.down = false
	if err := repo.Update(ctx, &done); err != nil {
		t.Fatalf("Update after recovery: %v", err)
	}
	if got, _ := repo.mem.Get(ctx, exec.ID); got.Status != autoflow.RunStatusSuccess {
		t.Fatalf("expected cache updated after stored write, got %s", got.Status)
	}
}

func TestPersistentExecutionRepo_FailIfRunning(t *testing.T) {
	store := &flakyStore{MemoryExecutionRepository: NewMemoryExecutionRepository()}
	repo := NewPersistentExecutionRepository(NewMemoryExecutionRepository(), store)
	ctx := context.Background()

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	exec := newExecution("exec-1", "wf-1", autoflow.RunStatusRunning, started)
	exec.StartedAt = &started
	repo.Create(ctx, exec)

	if ok, err := repo.FailIfRunning(ctx, exec.ID, started.Add(time.Second), "lost"); err != nil || ok {
		t.Fatalf("a later attempt must not be failed, ok=%v err=%v", ok, err)
	}
	ok, err := repo.FailIfRunning(ctx, exec.ID, started, "lost")
	if err != nil || !ok {
		t.Fatalf("FailIfRunning: ok=%v err=%v", ok, err)
	}
	for name, get := range map[string]func(context.Context, string) (*autoflow.Execution, error){
		"database": store.Get,
		"cache":    repo.mem.Get,
	} {
		got, _ := get(ctx, exec.ID)
		if got.Status != autoflow.RunStatusFailed || got.ErrorMessage != "lost" {
			t.Errorf("%s: expected failed with message, got %+v", name, got)
		}
	}
}
