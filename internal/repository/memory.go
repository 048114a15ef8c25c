package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/soochol/autoflow/internal/autoflow"
	memstore "github.com/soochol/autoflow/internal/repository/memory"
)

// MemoryRepository is a thread-safe in-memory WorkflowRepository.
type MemoryRepository struct {
	store *memstore.Store[*autoflow.Workflow]
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{
		store: memstore.New(func(w *autoflow.Workflow) string { return w.ID }),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, wf *autoflow.Workflow) error {
	return r.store.Set(ctx, wf)
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*autoflow.Workflow, error) {
	wf, err := r.store.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	return wf, err
}

func (r *MemoryRepository) List(ctx context.Context) ([]*autoflow.Workflow, error) {
	all, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].ID < all[j].ID
	})
	return all, nil
}

func (r *MemoryRepository) Update(ctx context.Context, wf *autoflow.Workflow) error {
	if err := r.store.Replace(ctx, wf); err != nil {
		return fmt.Errorf("%w: workflow %s", ErrNotFound, wf.ID)
	}
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	// Deleting a missing workflow is a no-op.
	_ = r.store.Delete(ctx, id)
	return nil
}
