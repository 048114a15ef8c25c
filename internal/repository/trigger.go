package repository

import (
	"context"

	"github.com/soochol/autoflow/internal/autoflow"
)

// TriggerRepository abstracts persistence for webhook triggers.
type TriggerRepository interface {
	Create(ctx context.Context, trigger *autoflow.WebhookTrigger) error
	Get(ctx context.Context, id string) (*autoflow.WebhookTrigger, error)
	Delete(ctx context.Context, id string) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]*autoflow.WebhookTrigger, error)
}
