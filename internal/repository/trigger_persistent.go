package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/crypto"
	"github.com/soochol/autoflow/internal/db"
)

// PersistentTriggerRepository wraps a MemoryTriggerRepository with a PostgreSQL backend.
// Writes go to both stores (DB failure is logged but non-fatal).
// Reads try memory first, falling back to the database.
// Signing secrets are sealed before they reach the database.
type PersistentTriggerRepository struct {
	mem    *MemoryTriggerRepository
	db     *db.DB
	sealer *crypto.Sealer
}

// NewPersistentTriggerRepository creates the repository. A nil sealer
// stores secrets as plaintext.
func NewPersistentTriggerRepository(mem *MemoryTriggerRepository, database *db.DB, sealer *crypto.Sealer) *PersistentTriggerRepository {
	if sealer == nil {
		sealer = &crypto.Sealer{}
	}
	return &PersistentTriggerRepository{mem: mem, db: database, sealer: sealer}
}

func (r *PersistentTriggerRepository) Create(ctx context.Context, trigger *autoflow.WebhookTrigger) error {
	_ = r.mem.Create(ctx, trigger)
	stored, err := sealTrigger(r.sealer, trigger)
	if err != nil {
		return err
	}
	if err := r.db.CreateTrigger(ctx, stored); err != nil {
		slog.Warn("db create trigger failed, in-memory only", "err", err)
	}
	return nil
}

func (r *PersistentTriggerRepository) Get(ctx context.Context, id string) (*autoflow.WebhookTrigger, error) {
	t, err := r.mem.Get(ctx, id)
	if err == nil {
		return t, nil
	}

	dbTrigger, dbErr := r.db.GetTrigger(ctx, id)
	if dbErr != nil {
		return nil, err // return original ErrNotFound
	}
	if err := openTrigger(r.sealer, dbTrigger); err != nil {
		return nil, err
	}

	_ = r.mem.Create(ctx, dbTrigger)
	return dbTrigger, nil
}

func (r *PersistentTriggerRepository) Delete(ctx context.Context, id string) error {
	_ = r.mem.Delete(ctx, id)
	if err := r.db.DeleteTrigger(ctx, id); err != nil {
		slog.Warn("db delete trigger failed", "err", err)
	}
	return nil
}

func (r *PersistentTriggerRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*autoflow.WebhookTrigger, error) {
	triggers, err := r.db.ListTriggersByWorkflow(ctx, workflowID)
	if err != nil {
		slog.Warn("db list triggers failed, falling back to in-memory", "err", err)
		return r.mem.ListByWorkflow(ctx, workflowID)
	}
	for _, t := range triggers {
		if err := openTrigger(r.sealer, t); err != nil {
			return nil, err
		}
	}
	return triggers, nil
}

// sealTrigger returns a copy of t with its secret sealed.
func sealTrigger(s *crypto.Sealer, t *autoflow.WebhookTrigger) (*autoflow.WebhookTrigger, error) {
	cp := *t
	sealed, err := s.Seal(t.Secret)
	if err != nil {
		return nil, fmt.Errorf("seal secret of trigger %s: %w", t.ID, err)
	}
	cp.Secret = sealed
	return &cp, nil
}

// openTrigger decrypts t's secret in place.
func openTrigger(s *crypto.Sealer, t *autoflow.WebhookTrigger) error {
	secret, err := s.Open(t.Secret)
	if err != nil {
		return fmt.Errorf("open secret of trigger %s: %w", t.ID, err)
	}
	t.Secret = secret
	return nil
}
