package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/db"
)

// PersistentScheduleRepository wraps a MemoryScheduleRepository with a PostgreSQL backend.
// Writes go to both stores (DB failure is logged but non-fatal).
// Reads try memory first, falling back to the database.
type PersistentScheduleRepository struct {
	mem *MemoryScheduleRepository
	db  *db.DB
}

func NewPersistentScheduleRepository(mem *MemoryScheduleRepository, database *db.DB) *PersistentScheduleRepository {
	return &PersistentScheduleRepository{mem: mem, db: database}
}

func (r *PersistentScheduleRepository) Create(ctx context.Context, task *autoflow.ScheduledTask) error {
	_ = r.mem.Create(ctx, task)
	if err := r.db.CreateSchedule(ctx, task); err != nil {
		slog.Warn("db create schedule failed, in-memory only", "err", err)
	}
	return nil
}

func (r *PersistentScheduleRepository) Get(ctx context.Context, id string) (*autoflow.ScheduledTask, error) {
	s, err := r.mem.Get(ctx, id)
	if err == nil {
		return s, nil
	}

	dbSched, dbErr := r.db.GetSchedule(ctx, id)
	if dbErr != nil {
		return nil, err // return original ErrNotFound
	}

	_ = r.mem.Create(ctx, dbSched)
	return dbSched, nil
}

func (r *PersistentScheduleRepository) Update(ctx context.Context, task *autoflow.ScheduledTask) error {
	if err := r.mem.Update(ctx, task); err != nil {
		_ = r.mem.Create(ctx, task)
	}
	if err := r.db.UpdateSchedule(ctx, task); err != nil {
		slog.Warn("db update schedule failed, in-memory only", "err", err)
	}
	return nil
}

func (r *PersistentScheduleRepository) Delete(ctx context.Context, id string) error {
	_ = r.mem.Delete(ctx, id)
	if err := r.db.DeleteSchedule(ctx, id); err != nil {
		slog.Warn("db delete schedule failed", "err", err)
	}
	return nil
}

func (r *PersistentScheduleRepository) List(ctx context.Context) ([]*autoflow.ScheduledTask, error) {
	schedules, err := r.db.ListSchedules(ctx)
	if err == nil {
		return schedules, nil
	}
	slog.Warn("db list schedules failed, falling back to in-memory", "err", err)
	return r.mem.List(ctx)
}

func (r *PersistentScheduleRepository) ListDue(ctx context.Context, now time.Time) ([]*autoflow.ScheduledTask, error) {
	schedules, err := r.db.ListDueSchedules(ctx, now)
	if err == nil {
		return schedules, nil
	}
	slog.Warn("db list due schedules failed, falling back to in-memory", "err", err)
	return r.mem.ListDue(ctx, now)
}

func (r *PersistentScheduleRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*autoflow.ScheduledTask, error) {
	schedules, err := r.db.ListSchedulesByWorkflow(ctx, workflowID)
	if err == nil {
		return schedules, nil
	}
	slog.Warn("db list workflow schedules failed, falling back to in-memory", "err", err)
	return r.mem.ListByWorkflow(ctx, workflowID)
}
