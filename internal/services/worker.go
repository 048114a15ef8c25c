package services

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/autoflow/ports"
)

// JobExecutor runs one dequeued job to completion.
type JobExecutor interface {
	ExecuteJob(ctx context.Context, job *autoflow.Job) error
}

// WorkerPool pulls jobs from the queue and hands each to the executor on
// one of count worker goroutines.
type WorkerPool struct {
	queue    ports.JobQueue
	executor JobExecutor
	count    int
	logger   *slog.Logger
}

// NewWorkerPool creates a pool of count workers (minimum 1). logger may be nil.
func NewWorkerPool(queue ports.JobQueue, executor JobExecutor, count int, logger *slog.Logger) *WorkerPool {
	if count <= 0 {
		count = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{queue: queue, executor: executor, count: count, logger: logger}
}

// Run blocks until ctx is done and every worker has finished its current job.
func (p *WorkerPool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.count; i++ {
		worker := i
		g.Go(func() error {
			p.loop(gctx, worker)
			return nil
		})
	}
	p.logger.Info("worker: pool started", "workers", p.count, "durable", p.queue.Durable())
	err := g.Wait()
	p.logger.Info("worker: pool stopped")
	return err
}

func (p *WorkerPool) loop(ctx context.Context, worker int) {
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("worker: dequeue failed", "worker", worker, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := p.executor.ExecuteJob(ctx, job); err != nil {
			p.logger.Warn("worker: job failed",
				"worker", worker, "job", job.ID, "execution", job.ExecutionID, "attempt", job.Attempt+1, "err", err)
		}
	}
}
