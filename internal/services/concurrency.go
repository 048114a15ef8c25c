package services

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/autoflow/ports"
)

var _ ports.ConcurrencyControl = (*ConcurrencyLimiter)(nil)

// ConcurrencyLimiter enforces one in-flight attempt per workflow and caps
// the total number of attempts running in this process.
//
// The per-workflow lock is taken first. It is either an in-process channel
// or, when exclusive is set, a lock shared with other processes.
type ConcurrencyLimiter struct {
	global      chan struct{}
	exclusive   ports.ConcurrencyControl
	perWorkflow map[string]chan struct{}
	mu          sync.Mutex
	limits      autoflow.ConcurrencyLimits
	activeCount atomic.Int64
}

// NewConcurrencyLimiter creates a limiter with the given limits. exclusive
// may be nil to keep the per-workflow lock in process memory.
func NewConcurrencyLimiter(limits autoflow.ConcurrencyLimits, exclusive ports.ConcurrencyControl) *ConcurrencyLimiter {
	if limits.GlobalMax <= 0 {
		limits.GlobalMax = autoflow.DefaultConcurrencyLimits().GlobalMax
	}

	return &ConcurrencyLimiter{
		global:      make(chan struct{}, limits.GlobalMax),
		exclusive:   exclusive,
		perWorkflow: make(map[string]chan struct{}),
		limits:      limits,
	}
}

// Acquire blocks until the workflow's lock and a global slot are both held,
// or returns an error if the context is cancelled.
func (c *ConcurrencyLimiter) Acquire(ctx context.Context, workflowID string) error {
	// 1. Per-workflow exclusive lock.
	if err := c.lockWorkflow(ctx, workflowID); err != nil {
		return err
	}

	// 2. Global slot.
	select {
	case c.global <- struct{}{}:
		c.activeCount.Add(1)
		return nil
	case <-ctx.Done():
		c.unlockWorkflow(workflowID)
		return ctx.Err()
	}
}

// Release returns the global slot and the workflow's lock.
func (c *ConcurrencyLimiter) Release(workflowID string) {
	c.activeCount.Add(-1)

	select {
	case <-c.global:
	default:
	}

	c.unlockWorkflow(workflowID)
}

func (c *ConcurrencyLimiter) lockWorkflow(ctx context.Context, workflowID string) error {
	if c.exclusive != nil {
		return c.exclusive.Acquire(ctx, workflowID)
	}
	ch := c.getOrCreateWorkflowChan(workflowID)
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ConcurrencyLimiter) unlockWorkflow(workflowID string) {
	if c.exclusive != nil {
		c.exclusive.Release(workflowID)
		return
	}
	c.mu.Lock()
	if ch, ok := c.perWorkflow[workflowID]; ok {
		select {
		case <-ch:
		default:
		}
	}
	c.mu.Unlock()
}

// ConcurrencyStats reports current usage.
type ConcurrencyStats struct {
	ActiveRuns  int  `json:"active_runs"`
	GlobalMax   int  `json:"global_max"`
	Distributed bool `json:"distributed"`
}

// Stats returns the current concurrency statistics.
func (c *ConcurrencyLimiter) Stats() ConcurrencyStats {
	return ConcurrencyStats{
		ActiveRuns:  int(c.activeCount.Load()),
		GlobalMax:   c.limits.GlobalMax,
		Distributed: c.exclusive != nil,
	}
}

func (c *ConcurrencyLimiter) getOrCreateWorkflowChan(workflowID string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.perWorkflow[workflowID]
	if !ok {
		ch = make(chan struct{}, 1)
		c.perWorkflow[workflowID] = ch
	}
	return ch
}
