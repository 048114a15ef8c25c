package repository

import (
	"context"
	"log/slog"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/db"
)

// PersistentRepository wraps a MemoryRepository with a PostgreSQL backend.
// Writes go to both stores (DB failure is logged but non-fatal).
// Reads try memory first, falling back to the database.
type PersistentRepository struct {
	mem *MemoryRepository
	db  *db.DB
}

// NewPersistent creates a repository backed by both memory and PostgreSQL.
func NewPersistent(mem *MemoryRepository, database *db.DB) *PersistentRepository {
	return &PersistentRepository{mem: mem, db: database}
}

func (r *PersistentRepository) Create(ctx context.Context, wf *autoflow.Workflow) error {
	_ = r.mem.Create(ctx, wf)
	if err := r.db.CreateWorkflow(ctx, wf); err != nil {
		slog.Warn("db create workflow failed, in-memory only", "err", err)
	}
	return nil
}

func (r *PersistentRepository) Get(ctx context.Context, id string) (*autoflow.Workflow, error) {
	wf, err := r.mem.Get(ctx, id)
	if err == nil {
		return wf, nil
	}

	dbWf, dbErr := r.db.GetWorkflow(ctx, id)
	if dbErr != nil {
		return nil, err // return original ErrNotFound
	}

	_ = r.mem.Create(ctx, dbWf)
	return dbWf, nil
}

func (r *PersistentRepository) List(ctx context.Context) ([]*autoflow.Workflow, error) {
	wfs, err := r.db.ListWorkflows(ctx)
	if err == nil {
		return wfs, nil
	}
	slog.Warn("db list workflows failed, falling back to in-memory", "err", err)
	return r.mem.List(ctx)
}

func (r *PersistentRepository) Update(ctx context.Context, wf *autoflow.Workflow) error {
	memErr := r.mem.Update(ctx, wf)
	if err := r.db.UpdateWorkflow(ctx, wf); err != nil {
		if memErr != nil {
			return memErr
		}
		slog.Warn("db update workflow failed, in-memory only", "err", err)
	} else if memErr != nil {
		_ = r.mem.Create(ctx, wf)
	}
	return nil
}

func (r *PersistentRepository) Delete(ctx context.Context, id string) error {
	_ = r.mem.Delete(ctx, id)
	if err := r.db.DeleteWorkflow(ctx, id); err != nil {
		slog.Warn("db delete workflow failed", "err", err)
	}
	return nil
}
