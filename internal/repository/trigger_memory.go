package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/soochol/autoflow/internal/autoflow"
)

// MemoryTriggerRepository stores webhook triggers in memory.
type MemoryTriggerRepository struct {
	mu       sync.RWMutex
	triggers map[string]*autoflow.WebhookTrigger
}

func NewMemoryTriggerRepository() *MemoryTriggerRepository {
	return &MemoryTriggerRepository{
		triggers: make(map[string]*autoflow.WebhookTrigger),
	}
}

func (r *MemoryTriggerRepository) Create(_ context.Context, trigger *autoflow.WebhookTrigger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers[trigger.ID] = trigger
	return nil
}

func (r *MemoryTriggerRepository) Get(_ context.Context, id string) (*autoflow.WebhookTrigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.triggers[id]
	if !ok {
		return nil, fmt.Errorf("%w: trigger %s", ErrNotFound, id)
	}
	return t, nil
}

func (r *MemoryTriggerRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.triggers[id]; !ok {
		return fmt.Errorf("%w: trigger %s", ErrNotFound, id)
	}
	delete(r.triggers, id)
	return nil
}

func (r *MemoryTriggerRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*autoflow.WebhookTrigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*autoflow.WebhookTrigger
	for _, t := range r.triggers {
		if t.WorkflowID == workflowID {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}
