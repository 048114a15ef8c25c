// Package repository defines storage interfaces for domain entities, with
// in-memory implementations and PostgreSQL write-through wrappers.
package repository

import (
	"context"

	"github.com/soochol/autoflow/internal/autoflow"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = autoflow.ErrNotFound

// WorkflowRepository abstracts workflow persistence so callers don't
// need to know whether storage is in-memory, PostgreSQL, or a mix.
type WorkflowRepository interface {
	Create(ctx context.Context, wf *autoflow.Workflow) error
	Get(ctx context.Context, id string) (*autoflow.Workflow, error)
	List(ctx context.Context) ([]*autoflow.Workflow, error)
	Update(ctx context.Context, wf *autoflow.Workflow) error
	Delete(ctx context.Context, id string) error
}
