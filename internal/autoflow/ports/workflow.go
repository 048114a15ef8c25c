package ports

import (
	"context"

	"github.com/soochol/autoflow/internal/autoflow"
)

// WorkflowLookup resolves workflow graphs by ID for the job layer.
type WorkflowLookup interface {
	Lookup(ctx context.Context, id string) (*autoflow.Workflow, error)
}

// IntegrationExecutor performs one action subtype (http, email, database,
// chat-message, spreadsheet, ...). Config string fields arrive already
// resolved against data. Implementations must tolerate being re-run when a
// whole execution is retried.
type IntegrationExecutor interface {
	Type() string
	Execute(ctx context.Context, config map[string]any, data map[string]any) (map[string]any, error)
}
