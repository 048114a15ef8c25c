package services

// scheduler.go: SchedulerService public facade.
// Recurrence evaluation: scheduler_cron.go
// Execution dispatch:    scheduler_dispatch.go

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/autoflow/ports"
	"github.com/soochol/autoflow/internal/repository"
)

// DefaultSweepInterval is how often due schedules are looked for.
const DefaultSweepInterval = 30 * time.Second

// sweepLockKey names the lock that serializes sweeps across processes.
const sweepLockKey = "sweep"

// SchedulerService stores scheduled tasks and periodically sweeps the due
// ones into executions.
type SchedulerService struct {
	cron         *cron.Cron
	scheduleRepo repository.ScheduleRepository
	runs         ports.RunSubmitter
	interval     time.Duration
	sweepMu      sync.Mutex // one sweep at a time in this process
	sweepLock    ports.ConcurrencyControl
	now          func() time.Time
}

// NewSchedulerService creates a SchedulerService sweeping every interval.
func NewSchedulerService(scheduleRepo repository.ScheduleRepository, runs ports.RunSubmitter, interval time.Duration) *SchedulerService {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &SchedulerService{
		cron:         cron.New(),
		scheduleRepo: scheduleRepo,
		runs:         runs,
		interval:     interval,
		now:          time.Now,
	}
}

// SetSweepLock makes every sweep hold lock, so processes sharing the
// schedule store fire each due schedule once.
func (s *SchedulerService) SetSweepLock(lock ports.ConcurrencyControl) {
	s.sweepLock = lock
}

// Start registers the periodic sweep and starts the cron runner.
func (s *SchedulerService) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("@every "+s.interval.String(), func() {
		if _, err := s.Sweep(ctx, s.now()); err != nil {
			slog.Warn("scheduler: sweep failed", "err", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("scheduler: started", "interval", s.interval)
	return nil
}

// Stop gracefully stops the cron runner, waiting for a running sweep.
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("scheduler: stopped")
}

// Sweep fires every active schedule whose NextRunAt is at or before now and
// returns how many executions were created. A sweep with nothing due is a
// no-op.
func (s *SchedulerService) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	if s.sweepLock != nil {
		lockCtx, cancel := context.WithTimeout(ctx, s.interval)
		err := s.sweepLock.Acquire(lockCtx, sweepLockKey)
		cancel()
		if err != nil {
			return 0, fmt.Errorf("acquire sweep lock: %w", err)
		}
		defer s.sweepLock.Release(sweepLockKey)
	}

	due, err := s.scheduleRepo.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}

	fired := 0
	for _, task := range due {
		if _, err := s.dispatch(ctx, task, now); err != nil {
			slog.Warn("scheduler: scheduled run not started",
				"schedule", task.ID, "workflow", task.WorkflowID, "err", err)
			continue
		}
		fired++
	}
	if fired > 0 {
		slog.Info("scheduler: sweep fired schedules", "count", fired)
	}
	return fired, nil
}

// AddSchedule validates a schedule, computes its first NextRunAt and stores it.
func (s *SchedulerService) AddSchedule(ctx context.Context, task *autoflow.ScheduledTask) error {
	if task.WorkflowID == "" {
		return autoflow.NewConfigError("", "schedule needs a workflow_id")
	}
	if task.Timezone == "" {
		task.Timezone = DefaultTimezone
	}

	now := s.now()
	next, err := NextOccurrence(task.RecurrenceExpr, task.Timezone, now)
	if err != nil {
		return err
	}
	task.ID = autoflow.GenerateID("sched")
	task.NextRunAt = next
	task.LastRunAt = nil
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := s.scheduleRepo.Create(ctx, task); err != nil {
		return err
	}
	slog.Info("scheduler: schedule added",
		"id", task.ID, "workflow", task.WorkflowID, "cron", task.RecurrenceExpr, "next", next)
	return nil
}

// UpdateSchedule replaces a schedule's definition. NextRunAt is recomputed
// when the expression or timezone changes.
func (s *SchedulerService) UpdateSchedule(ctx context.Context, task *autoflow.ScheduledTask) error {
	existing, err := s.scheduleRepo.Get(ctx, task.ID)
	if err != nil {
		return err
	}
	if task.WorkflowID == "" {
		task.WorkflowID = existing.WorkflowID
	}
	if task.Timezone == "" {
		task.Timezone = DefaultTimezone
	}

	now := s.now()
	task.CreatedAt = existing.CreatedAt
	task.LastRunAt = existing.LastRunAt
	task.NextRunAt = existing.NextRunAt
	if task.RecurrenceExpr != existing.RecurrenceExpr || task.Timezone != existing.Timezone {
		next, err := NextOccurrence(task.RecurrenceExpr, task.Timezone, now)
		if err != nil {
			return err
		}
		task.NextRunAt = next
	}
	task.UpdatedAt = now
	return s.scheduleRepo.Update(ctx, task)
}

// RemoveSchedule deletes a schedule.
func (s *SchedulerService) RemoveSchedule(ctx context.Context, id string) error {
	return s.scheduleRepo.Delete(ctx, id)
}

// PauseSchedule disables a schedule without deleting it.
func (s *SchedulerService) PauseSchedule(ctx context.Context, id string) (*autoflow.ScheduledTask, error) {
	task, err := s.scheduleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	task.IsActive = false
	task.UpdatedAt = s.now()
	if err := s.scheduleRepo.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ResumeSchedule re-enables a paused schedule. NextRunAt is recomputed from
// now so missed occurrences are not replayed.
func (s *SchedulerService) ResumeSchedule(ctx context.Context, id string) (*autoflow.ScheduledTask, error) {
	task, err := s.scheduleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	next, err := NextOccurrence(task.RecurrenceExpr, task.Timezone, now)
	if err != nil {
		return nil, err
	}
	task.IsActive = true
	task.NextRunAt = next
	task.UpdatedAt = now
	if err := s.scheduleRepo.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// GetSchedule retrieves a schedule by ID.
func (s *SchedulerService) GetSchedule(ctx context.Context, id string) (*autoflow.ScheduledTask, error) {
	return s.scheduleRepo.Get(ctx, id)
}

// ListSchedules returns all schedules.
func (s *SchedulerService) ListSchedules(ctx context.Context) ([]*autoflow.ScheduledTask, error) {
	return s.scheduleRepo.List(ctx)
}

// ListByWorkflow returns the schedules of one workflow.
func (s *SchedulerService) ListByWorkflow(ctx context.Context, workflowID string) ([]*autoflow.ScheduledTask, error) {
	return s.scheduleRepo.ListByWorkflow(ctx, workflowID)
}

// TriggerNow fires a schedule immediately, paused or not, through the same
// path as a sweep.
func (s *SchedulerService) TriggerNow(ctx context.Context, id string) (*autoflow.Execution, error) {
	task, err := s.scheduleRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, task, s.now())
}
