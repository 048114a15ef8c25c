package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dario.cat/mergo"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/autoflow/ports"
)

var _ ports.RunSubmitter = (*RunService)(nil)

// RunService is the trigger submission and run inspection surface: it
// creates executions, hands them to the job queue, and stops or retries
// them on request.
type RunService struct {
	workflows ports.WorkflowLookup
	history   ports.RunHistoryPort
	queue     ports.JobQueue
	registry  *ExecutionRegistry
	now       func() time.Time
}

// NewRunService creates a RunService. registry may be nil when no attempts
// run in this process.
func NewRunService(workflows ports.WorkflowLookup, history ports.RunHistoryPort, queue ports.JobQueue, registry *ExecutionRegistry) *RunService {
	if registry == nil {
		registry = NewExecutionRegistry()
	}
	return &RunService{workflows: workflows, history: history, queue: queue, registry: registry, now: time.Now}
}

// RunDetail is an execution together with its node logs in start order.
type RunDetail struct {
	Execution *autoflow.Execution      `json:"execution"`
	Logs      []*autoflow.ExecutionLog `json:"logs"`
}

// SubmitRun creates an execution of workflowID seeded with triggerData and
// enqueues its first attempt.
func (s *RunService) SubmitRun(ctx context.Context, workflowID string, triggerData map[string]any) (*autoflow.Execution, error) {
	exec, err := s.CreateRun(ctx, workflowID, triggerData)
	if err != nil {
		return nil, err
	}
	if err := s.Enqueue(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// CreateRun records a pending execution without enqueuing it. triggerType
// defaults to manual; inactive workflows accept only manual runs.
func (s *RunService) CreateRun(ctx context.Context, workflowID string, triggerData map[string]any) (*autoflow.Execution, error) {
	wf, err := s.workflows.Lookup(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	data := make(map[string]any, len(triggerData)+1)
	for k, v := range triggerData {
		data[k] = v
	}
	if err := mergo.Merge(&data, map[string]any{"triggerType": string(autoflow.TriggerManual)}); err != nil {
		return nil, fmt.Errorf("build trigger data: %w", err)
	}

	if !wf.IsActive && data["triggerType"] != string(autoflow.TriggerManual) {
		return nil, fmt.Errorf("%w: %s", autoflow.ErrWorkflowInactive, workflowID)
	}
	return s.history.CreateExecution(ctx, wf.ID, data)
}

// Enqueue submits the first attempt of exec. If the queue rejects it the
// execution is failed so the submission never disappears silently.
func (s *RunService) Enqueue(ctx context.Context, exec *autoflow.Execution) error {
	now := s.now()
	job := &autoflow.Job{
		ID:          autoflow.GenerateID("job"),
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		Generation:  exec.Generation,
		EnqueuedAt:  now,
		NotBefore:   now,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		if ferr := s.history.FailExecution(context.WithoutCancel(ctx), exec.ID, "enqueue failed: "+err.Error()); ferr != nil {
			slog.Error("runs: failed to record enqueue failure", "execution", exec.ID, "err", ferr)
		}
		return fmt.Errorf("enqueue execution %s: %w", exec.ID, err)
	}
	slog.Info("runs: execution submitted", "execution", exec.ID, "workflow", exec.WorkflowID, "trigger", exec.TriggerType())
	return nil
}

// Stop cancels a pending or running execution. A run in flight in this
// process is interrupted immediately; elsewhere it halts before its next node.
func (s *RunService) Stop(ctx context.Context, id string) (*autoflow.Execution, error) {
	exec, err := s.history.CancelExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	interrupted := s.registry.Cancel(id)
	slog.Info("runs: execution stopped", "execution", id, "interrupted", interrupted)
	return exec, nil
}

// Retry resets a failed or cancelled execution, clears its logs and
// enqueues it again under the same ID.
func (s *RunService) Retry(ctx context.Context, id string) (*autoflow.Execution, error) {
	exec, err := s.history.ResetForRetry(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Enqueue(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// Get returns an execution with its logs.
func (s *RunService) Get(ctx context.Context, id string) (*RunDetail, error) {
	exec, err := s.history.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	logs, err := s.history.ListLogs(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Execution: exec, Logs: logs}, nil
}

// Logs returns an execution's node logs in start order.
func (s *RunService) Logs(ctx context.Context, id string) ([]*autoflow.ExecutionLog, error) {
	return s.history.ListLogs(ctx, id)
}

// List returns executions of every workflow, newest first.
func (s *RunService) List(ctx context.Context, limit, offset int, status string) ([]*autoflow.Execution, int, error) {
	if status != "" && !autoflow.ValidRunStatus(status) {
		return nil, 0, autoflow.NewConfigError("", "unknown status %q", status)
	}
	return s.history.ListAllExecutions(ctx, limit, offset, status)
}

// ListByWorkflow returns executions of one workflow, newest first.
func (s *RunService) ListByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*autoflow.Execution, int, error) {
	if _, err := s.workflows.Lookup(ctx, workflowID); err != nil {
		return nil, 0, err
	}
	return s.history.ListExecutions(ctx, workflowID, limit, offset)
}

// QueueDepth reports how many jobs wait in the queue.
func (s *RunService) QueueDepth(ctx context.Context) (int, error) {
	return s.queue.Len(ctx)
}
