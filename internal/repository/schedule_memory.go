package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
	memstore "github.com/soochol/autoflow/internal/repository/memory"
)

// MemoryScheduleRepository stores scheduled tasks in memory.
type MemoryScheduleRepository struct {
	store *memstore.Store[*autoflow.ScheduledTask]
}

func NewMemoryScheduleRepository() *MemoryScheduleRepository {
	return &MemoryScheduleRepository{
		store: memstore.New(func(s *autoflow.ScheduledTask) string { return s.ID }),
	}
}

func (r *MemoryScheduleRepository) Create(ctx context.Context, task *autoflow.ScheduledTask) error {
	cp := *task
	return r.store.Set(ctx, &cp)
}

func (r *MemoryScheduleRepository) Get(ctx context.Context, id string) (*autoflow.ScheduledTask, error) {
	s, err := r.store.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: schedule %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryScheduleRepository) Update(ctx context.Context, task *autoflow.ScheduledTask) error {
	cp := *task
	if err := r.store.Replace(ctx, &cp); err != nil {
		return fmt.Errorf("%w: schedule %s", ErrNotFound, task.ID)
	}
	return nil
}

func (r *MemoryScheduleRepository) Delete(ctx context.Context, id string) error {
	err := r.store.Delete(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return fmt.Errorf("%w: schedule %s", ErrNotFound, id)
	}
	return err
}

func (r *MemoryScheduleRepository) List(ctx context.Context) ([]*autoflow.ScheduledTask, error) {
	return r.filter(ctx, func(*autoflow.ScheduledTask) bool { return true })
}

func (r *MemoryScheduleRepository) ListDue(ctx context.Context, now time.Time) ([]*autoflow.ScheduledTask, error) {
	due, err := r.filter(ctx, func(s *autoflow.ScheduledTask) bool {
		return s.IsActive && !s.NextRunAt.After(now)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })
	return due, nil
}

func (r *MemoryScheduleRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*autoflow.ScheduledTask, error) {
	return r.filter(ctx, func(s *autoflow.ScheduledTask) bool {
		return s.WorkflowID == workflowID
	})
}

// filter returns copies of matching tasks ordered by creation time.
func (r *MemoryScheduleRepository) filter(ctx context.Context, pred func(*autoflow.ScheduledTask) bool) ([]*autoflow.ScheduledTask, error) {
	matched, err := r.store.Filter(ctx, pred)
	if err != nil {
		return nil, err
	}
	out := make([]*autoflow.ScheduledTask, len(matched))
	for i, s := range matched {
		cp := *s
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
