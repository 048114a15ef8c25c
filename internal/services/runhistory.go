package services

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/autoflow/ports"
	"github.com/soochol/autoflow/internal/repository"
)

var _ ports.RunHistoryPort = (*RunHistoryService)(nil)

// RunHistoryService manages execution records and their node logs.
type RunHistoryService struct {
	repo    repository.ExecutionRepository
	now     func() time.Time
	lastSeq atomic.Int64
}

// NewRunHistoryService creates a RunHistoryService.
func NewRunHistoryService(repo repository.ExecutionRepository) *RunHistoryService {
	return &RunHistoryService{repo: repo, now: time.Now}
}

// CreateExecution records a new pending execution.
func (s *RunHistoryService) CreateExecution(ctx context.Context, workflowID string, triggerData map[string]any) (*autoflow.Execution, error) {
	if triggerData == nil {
		triggerData = map[string]any{}
	}
	exec := &autoflow.Execution{
		ID:          autoflow.GenerateID("exec"),
		WorkflowID:  workflowID,
		Status:      autoflow.RunStatusPending,
		TriggerData: triggerData,
		CreatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// MarkRunning moves an execution into running state for the given attempt.
func (s *RunHistoryService) MarkRunning(ctx context.Context, id string, attempt int) (*autoflow.Execution, error) {
	exec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := exec.Transition(autoflow.RunStatusRunning, s.now()); err != nil {
		return nil, err
	}
	exec.Attempt = attempt
	if err := s.repo.Update(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// CompleteExecution marks an execution as successful.
func (s *RunHistoryService) CompleteExecution(ctx context.Context, id string) error {
	exec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if exec.Status == autoflow.RunStatusSuccess {
		return nil
	}
	if err := exec.Transition(autoflow.RunStatusSuccess, s.now()); err != nil {
		return err
	}
	return s.repo.Update(ctx, exec)
}

// FailExecution marks an execution as failed with an error message. Failing
// an already failed execution only refreshes the message; a cancelled
// execution stays cancelled.
func (s *RunHistoryService) FailExecution(ctx context.Context, id string, errMsg string) error {
	exec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if exec.Status == autoflow.RunStatusCancelled {
		slog.Info("runhistory: not failing cancelled execution", "execution", id)
		return nil
	}
	if err := exec.Transition(autoflow.RunStatusFailed, s.now()); err != nil {
		return err
	}
	exec.ErrorMessage = errMsg
	return s.repo.Update(ctx, exec)
}

// CancelExecution records a stop request. Only pending and running
// executions can be cancelled.
func (s *RunHistoryService) CancelExecution(ctx context.Context, id string) (*autoflow.Execution, error) {
	exec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := exec.Transition(autoflow.RunStatusCancelled, s.now()); err != nil {
		return nil, err
	}
	exec.ErrorMessage = "stopped by request"
	if err := s.repo.Update(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// ResetForRetry returns a failed or cancelled execution to pending, clears
// its node logs and starts a new retry generation. The execution keeps its
// identity.
func (s *RunHistoryService) ResetForRetry(ctx context.Context, id string) (*autoflow.Execution, error) {
	exec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := exec.Transition(autoflow.RunStatusPending, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.DeleteLogs(ctx, id); err != nil {
		return nil, err
	}
	exec.Attempt = 0
	exec.Generation++
	if err := s.repo.Update(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// ClearLogs deletes every node log of an execution.
func (s *RunHistoryService) ClearLogs(ctx context.Context, id string) error {
	return s.repo.DeleteLogs(ctx, id)
}

// StartNodeLog records the start of a node attempt.
func (s *RunHistoryService) StartNodeLog(ctx context.Context, executionID, nodeID string, input map[string]any) (*autoflow.ExecutionLog, error) {
	now := s.now()
	log := &autoflow.ExecutionLog{
		ID:          autoflow.GenerateID("log"),
		ExecutionID: executionID,
		NodeID:      nodeID,
		Status:      autoflow.LogStatusRunning,
		InputData:   input,
		ExecutedAt:  now,
		Seq:         s.nextSeq(now),
	}
	if err := s.repo.CreateLog(ctx, log); err != nil {
		return nil, err
	}
	return log, nil
}

// FinishNodeLog records the outcome of a node attempt.
func (s *RunHistoryService) FinishNodeLog(ctx context.Context, log *autoflow.ExecutionLog) error {
	return s.repo.FinalizeLog(ctx, log)
}

// IsCancelled reports whether a stop was requested for the execution.
func (s *RunHistoryService) IsCancelled(ctx context.Context, executionID string) (bool, error) {
	exec, err := s.repo.Get(ctx, executionID)
	if err != nil {
		return false, err
	}
	return exec.Status == autoflow.RunStatusCancelled, nil
}

// GetExecution retrieves a single execution.
func (s *RunHistoryService) GetExecution(ctx context.Context, id string) (*autoflow.Execution, error) {
	return s.repo.Get(ctx, id)
}

// ListLogs returns an execution's node logs in start order.
func (s *RunHistoryService) ListLogs(ctx context.Context, executionID string) ([]*autoflow.ExecutionLog, error) {
	if _, err := s.repo.Get(ctx, executionID); err != nil {
		return nil, err
	}
	return s.repo.ListLogs(ctx, executionID)
}

// ListExecutions returns executions of one workflow with pagination.
func (s *RunHistoryService) ListExecutions(ctx context.Context, workflowID string, limit, offset int) ([]*autoflow.Execution, int, error) {
	return s.repo.ListByWorkflow(ctx, workflowID, limit, offset)
}

// ListAllExecutions returns all executions with pagination. status filters
// by run status when non-empty.
func (s *RunHistoryService) ListAllExecutions(ctx context.Context, limit, offset int, status string) ([]*autoflow.Execution, int, error) {
	return s.repo.ListAll(ctx, limit, offset, status)
}

// CleanupOrphanedExecutions fails executions left running by a previous
// process. includePending also fails pending ones, for queues that do not
// survive a restart. It assumes this process is the only one using the
// store, so it is called once at startup with the in-process queue only.
func (s *RunHistoryService) CleanupOrphanedExecutions(ctx context.Context, includePending bool) {
	c, ok := s.repo.(repository.OrphanCleaner)
	if !ok {
		return
	}
	n, err := c.MarkOrphanedFailed(ctx, includePending)
	if err != nil {
		slog.Warn("runhistory: failed to clean up orphaned executions", "err", err)
		return
	}
	if n > 0 {
		slog.Info("runhistory: marked orphaned executions as failed", "count", n)
	}
}

// maxOrphanScan bounds how many running executions one reap inspects.
const maxOrphanScan = 500

// ReapOrphans fails running executions whose workflow lock no process
// holds. A worker holds the lock from before it marks a run running until
// the outcome is recorded, so a free lock means the worker is gone. Only
// the attempt observed running is failed; one that started since is left
// alone.
func (s *RunHistoryService) ReapOrphans(ctx context.Context, locks ports.LockInspector) (int, error) {
	c, ok := s.repo.(repository.OrphanCleaner)
	if !ok {
		return 0, nil
	}
	running, _, err := s.repo.ListAll(ctx, maxOrphanScan, 0, string(autoflow.RunStatusRunning))
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, exec := range running {
		if exec.StartedAt == nil {
			continue
		}
		held, err := locks.Held(ctx, exec.WorkflowID)
		if err != nil {
			return reaped, err
		}
		if held {
			continue
		}
		failed, err := c.FailIfRunning(ctx, exec.ID, *exec.StartedAt, "interrupted: worker lost")
		if err != nil {
			return reaped, err
		}
		if failed {
			slog.Warn("runhistory: failed orphaned execution", "execution", exec.ID, "workflow", exec.WorkflowID)
			reaped++
		}
	}
	return reaped, nil
}

// RunOrphanReaper calls ReapOrphans every interval until ctx ends. It
// replaces startup cleanup when processes share a durable queue.
func (s *RunHistoryService) RunOrphanReaper(ctx context.Context, locks ports.LockInspector, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.ReapOrphans(ctx, locks); err != nil && ctx.Err() == nil {
			slog.Warn("runhistory: orphan reap failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// nextSeq returns a strictly increasing sequence number based on now.
func (s *RunHistoryService) nextSeq(now time.Time) int64 {
	for {
		last := s.lastSeq.Load()
		next := now.UnixNano()
		if next <= last {
			next = last + 1
		}
		if s.lastSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}
