package repository

import (
	"context"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
)

// ScheduleRepository abstracts persistence for scheduled tasks.
type ScheduleRepository interface {
	Create(ctx context.Context, task *autoflow.ScheduledTask) error
	Get(ctx context.Context, id string) (*autoflow.ScheduledTask, error)
	Update(ctx context.Context, task *autoflow.ScheduledTask) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*autoflow.ScheduledTask, error)
	// ListDue returns active tasks whose NextRunAt is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]*autoflow.ScheduledTask, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*autoflow.ScheduledTask, error)
}
