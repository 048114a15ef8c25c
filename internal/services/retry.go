package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"dario.cat/mergo"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/autoflow/ports"
)

// ExecutionRunner runs one attempt of an execution's graph.
type ExecutionRunner interface {
	Run(ctx context.Context, wf *autoflow.Workflow, exec *autoflow.Execution, triggerData map[string]any) error
}

// RetryExecutor runs execution jobs end to end: it takes the workflow's
// exclusive lock, bounds the attempt with the policy timeout, records the
// outcome and re-enqueues failed attempts with exponential backoff.
type RetryExecutor struct {
	runner    ExecutionRunner
	workflows ports.WorkflowLookup
	history   ports.RunHistoryPort
	queue     ports.JobQueue
	limiter   ports.ConcurrencyControl
	registry  *ExecutionRegistry
	policy    autoflow.JobPolicy
	now       func() time.Time
}

// NewRetryExecutor creates a RetryExecutor. Zero policy fields take their
// defaults from autoflow.DefaultJobPolicy.
func NewRetryExecutor(
	runner ExecutionRunner,
	workflows ports.WorkflowLookup,
	history ports.RunHistoryPort,
	queue ports.JobQueue,
	limiter ports.ConcurrencyControl,
	registry *ExecutionRegistry,
	policy autoflow.JobPolicy,
) *RetryExecutor {
	if err := mergo.Merge(&policy, autoflow.DefaultJobPolicy()); err != nil {
		slog.Warn("retry: invalid job policy, using defaults", "err", err)
		policy = autoflow.DefaultJobPolicy()
	}
	if registry == nil {
		registry = NewExecutionRegistry()
	}
	return &RetryExecutor{
		runner:    runner,
		workflows: workflows,
		history:   history,
		queue:     queue,
		limiter:   limiter,
		registry:  registry,
		policy:    policy,
		now:       time.Now,
	}
}

// Policy returns the effective job policy.
func (r *RetryExecutor) Policy() autoflow.JobPolicy { return r.policy }

// ExecuteJob runs a single attempt. It returns the attempt's error after
// recording it; a follow-up attempt, if any, is already enqueued by then.
func (r *RetryExecutor) ExecuteJob(ctx context.Context, job *autoflow.Job) error {
	// Wait for any in-flight run of the same workflow.
	if err := r.limiter.Acquire(ctx, job.WorkflowID); err != nil {
		if r.queue.Durable() {
			if qerr := r.queue.Enqueue(context.WithoutCancel(ctx), job); qerr != nil {
				slog.Error("retry: failed to requeue job", "job", job.ID, "execution", job.ExecutionID, "err", qerr)
			}
		}
		return fmt.Errorf("acquire workflow lock: %w", err)
	}
	defer r.limiter.Release(job.WorkflowID)

	exec, err := r.history.GetExecution(ctx, job.ExecutionID)
	if err != nil {
		return err
	}
	if job.Generation != exec.Generation {
		slog.Info("retry: skipping job of superseded retry",
			"job", job.ID, "execution", exec.ID, "generation", job.Generation, "current", exec.Generation)
		return nil
	}
	if want := expectedStatus(job); exec.Status != want {
		slog.Info("retry: skipping stale job",
			"job", job.ID, "execution", exec.ID, "status", exec.Status, "want", want)
		return nil
	}

	wf, err := r.workflows.Lookup(ctx, job.WorkflowID)
	if err != nil {
		msg := fmt.Sprintf("load workflow %s: %v", job.WorkflowID, err)
		if ferr := r.history.FailExecution(ctx, exec.ID, msg); ferr != nil {
			slog.Error("retry: failed to record failure", "execution", exec.ID, "err", ferr)
		}
		return err
	}

	if job.Attempt > 0 {
		if err := r.history.ClearLogs(ctx, exec.ID); err != nil {
			slog.Warn("retry: failed to clear logs of previous attempt", "execution", exec.ID, "err", err)
		}
	}
	exec, err = r.history.MarkRunning(ctx, exec.ID, job.Attempt)
	if err != nil {
		return err
	}
	slog.Info("retry: execution started",
		"execution", exec.ID, "workflow", wf.ID, "attempt", job.Attempt+1, "max_attempts", r.policy.MaxAttempts)

	runCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
	r.registry.Register(exec.ID, cancel)
	runErr := r.runner.Run(runCtx, wf, exec, exec.TriggerData)
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	r.registry.Unregister(exec.ID)
	cancel()

	// Bookkeeping must happen even when the worker is shutting down.
	bg := context.WithoutCancel(ctx)

	if runErr == nil {
		if err := r.history.CompleteExecution(bg, exec.ID); err != nil {
			return fmt.Errorf("record success: %w", err)
		}
		slog.Info("retry: execution succeeded", "execution", exec.ID, "attempt", job.Attempt+1)
		return nil
	}

	if cancelled, err := r.history.IsCancelled(bg, exec.ID); err == nil && cancelled {
		slog.Info("retry: execution stopped", "execution", exec.ID)
		return nil
	}

	msg := runErr.Error()
	if timedOut {
		msg = fmt.Sprintf("execution timed out after %s: %s", r.policy.Timeout, msg)
	}
	if err := r.history.FailExecution(bg, exec.ID, msg); err != nil {
		slog.Error("retry: failed to record failure", "execution", exec.ID, "err", err)
	}

	next, ok := r.nextAttempt(job)
	if !ok {
		slog.Warn("retry: giving up", "execution", exec.ID, "attempt", job.Attempt+1, "err", msg)
		return runErr
	}
	if err := r.queue.Enqueue(bg, next); err != nil {
		slog.Error("retry: failed to enqueue next attempt", "execution", exec.ID, "err", err)
		return runErr
	}
	slog.Info("retry: backing off",
		"execution", exec.ID, "attempt", next.Attempt+1, "delay", next.NotBefore.Sub(r.now()).Round(time.Second))
	return runErr
}

// nextAttempt builds the follow-up job for a failed attempt, or reports
// false when attempts or the retry horizon are exhausted.
func (r *RetryExecutor) nextAttempt(job *autoflow.Job) (*autoflow.Job, bool) {
	if job.Attempt+1 >= r.policy.MaxAttempts {
		return nil, false
	}
	now := r.now()
	enqueuedAt := job.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = now
	}
	notBefore := now.Add(calculateBackoff(r.policy, job.Attempt))
	if notBefore.Sub(enqueuedAt) > r.policy.RetryHorizon {
		return nil, false
	}
	return &autoflow.Job{
		ID:          autoflow.GenerateID("job"),
		ExecutionID: job.ExecutionID,
		WorkflowID:  job.WorkflowID,
		Attempt:     job.Attempt + 1,
		Generation:  job.Generation,
		EnqueuedAt:  enqueuedAt,
		NotBefore:   notBefore,
	}, true
}

// expectedStatus is the status an execution must be in for job to run:
// first attempts start from pending, follow-ups from the failed attempt.
func expectedStatus(job *autoflow.Job) autoflow.RunStatus {
	if job.Attempt == 0 {
		return autoflow.RunStatusPending
	}
	return autoflow.RunStatusFailed
}

// calculateBackoff computes the delay after a given attempt using exponential backoff.
func calculateBackoff(policy autoflow.JobPolicy, attempt int) time.Duration {
	delay := float64(policy.InitialBackoff) * math.Pow(policy.BackoffFactor, float64(attempt))
	if time.Duration(delay) > policy.MaxBackoff {
		return policy.MaxBackoff
	}
	return time.Duration(delay)
}
