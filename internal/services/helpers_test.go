package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/repository"
)

// runnerFunc adapts a function to ExecutionRunner.
type runnerFunc func(ctx context.Context, wf *autoflow.Workflow, exec *autoflow.Execution, triggerData map[string]any) error

func (f runnerFunc) Run(ctx context.Context, wf *autoflow.Workflow, exec *autoflow.Execution, triggerData map[string]any) error {
	return f(ctx, wf, exec, triggerData)
}

// recordingQueue is a ports.JobQueue that only records enqueued jobs.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []*autoflow.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job *autoflow.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Dequeue(ctx context.Context) (*autoflow.Job, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *recordingQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs), nil
}

func (q *recordingQueue) Durable() bool { return false }

func (q *recordingQueue) snapshot() []*autoflow.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*autoflow.Job(nil), q.jobs...)
}

var errQueueDown = errors.New("queue unavailable")

// testStack wires the services over in-memory repositories.
type testStack struct {
	workflows *WorkflowService
	execRepo  *repository.MemoryExecutionRepository
	history   *RunHistoryService
	queue     *recordingQueue
	registry  *ExecutionRegistry
	runs      *RunService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	execRepo := repository.NewMemoryExecutionRepository()
	s := &testStack{
		workflows: NewWorkflowService(repository.NewMemory()),
		execRepo:  execRepo,
		history:   NewRunHistoryService(execRepo),
		queue:     &recordingQueue{},
		registry:  NewExecutionRegistry(),
	}
	s.runs = NewRunService(s.workflows, s.history, s.queue, s.registry)
	return s
}

func (s *testStack) retryExecutor(runner ExecutionRunner, policy autoflow.JobPolicy) *RetryExecutor {
	limiter := NewConcurrencyLimiter(autoflow.ConcurrencyLimits{GlobalMax: 4}, nil)
	return NewRetryExecutor(runner, s.workflows, s.history, s.queue, limiter, s.registry, policy)
}

// createWorkflow stores a minimal active trigger -> action workflow.
func (s *testStack) createWorkflow(t *testing.T, active bool) *autoflow.Workflow {
	t.Helper()
	wf := &autoflow.Workflow{
		Name:     "test-workflow",
		IsActive: active,
		Nodes: []autoflow.Node{
			{NodeID: "t", Kind: autoflow.NodeKindTrigger},
			{NodeID: "a", Kind: autoflow.NodeKindAction, Config: map[string]any{"actionType": "record"}},
		},
		Connections: []autoflow.Connection{{SourceNodeID: "t", TargetNodeID: "a"}},
	}
	if err := s.workflows.Create(context.Background(), wf); err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	return wf
}

func (s *testStack) mustExecution(t *testing.T, id string) *autoflow.Execution {
	t.Helper()
	exec, err := s.history.GetExecution(context.Background(), id)
	if err != nil {
		t.Fatalf("get execution %s: %v", id, err)
	}
	return exec
}

// fixedClock returns a clock frozen at t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
