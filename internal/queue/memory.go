// Package queue holds the job queues and the distributed per-workflow lock
// the execution job layer runs on.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/autoflow/ports"
)

var _ ports.JobQueue = (*MemoryQueue)(nil)

// MemoryQueue is an in-process JobQueue ordered by NotBefore. Jobs are lost
// when the process exits.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    []*autoflow.Job
	changed chan struct{} // closed and replaced on every Enqueue
	now     func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{changed: make(chan struct{}), now: time.Now}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job *autoflow.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := sort.Search(len(q.jobs), func(i int) bool {
		return q.jobs[i].NotBefore.After(job.NotBefore)
	})
	q.jobs = append(q.jobs, nil)
	copy(q.jobs[i+1:], q.jobs[i:])
	q.jobs[i] = job

	close(q.changed)
	q.changed = make(chan struct{})
	return nil
}

// Dequeue blocks until a job is ready or ctx ends.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*autoflow.Job, error) {
	for {
		q.mu.Lock()
		wait := time.Hour
		if len(q.jobs) > 0 {
			head := q.jobs[0]
			d := head.NotBefore.Sub(q.now())
			if d <= 0 {
				q.jobs = q.jobs[1:]
				q.mu.Unlock()
				return head, nil
			}
			wait = d
		}
		changed := q.changed
		q.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-changed:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (q *MemoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs), nil
}

func (q *MemoryQueue) Durable() bool { return false }
