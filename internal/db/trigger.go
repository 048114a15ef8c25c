package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/xjson"
)

const triggerColumns = `id, workflow_id, secret, input_mapping, enabled, created_at`

// CreateTrigger stores a new webhook trigger.
func (d *DB) CreateTrigger(ctx context.Context, t *autoflow.WebhookTrigger) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO webhook_triggers (`+triggerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.WorkflowID, t.Secret, jsonParam(t.InputMapping), t.Enabled, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trigger: %w", err)
	}
	return nil
}

// GetTrigger retrieves a webhook trigger by ID.
func (d *DB) GetTrigger(ctx context.Context, id string) (*autoflow.WebhookTrigger, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT `+triggerColumns+` FROM webhook_triggers WHERE id = $1`, id)
	t, err := scanTrigger(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: trigger %s", autoflow.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get trigger: %w", err)
	}
	return t, nil
}

// DeleteTrigger removes a webhook trigger by ID.
func (d *DB) DeleteTrigger(ctx context.Context, id string) error {
	_, err := d.Pool.ExecContext(ctx, `DELETE FROM webhook_triggers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete trigger: %w", err)
	}
	return nil
}

// ListTriggersByWorkflow returns the webhook triggers of one workflow.
func (d *DB) ListTriggersByWorkflow(ctx context.Context, workflowID string) ([]*autoflow.WebhookTrigger, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+triggerColumns+` FROM webhook_triggers WHERE workflow_id = $1 ORDER BY created_at`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var result []*autoflow.WebhookTrigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func scanTrigger(r rowScanner) (*autoflow.WebhookTrigger, error) {
	t := &autoflow.WebhookTrigger{}
	var mappingJSON []byte
	if err := r.Scan(&t.ID, &t.WorkflowID, &t.Secret, &mappingJSON, &t.Enabled, &t.CreatedAt); err != nil {
		return nil, err
	}
	xjson.Unmarshal(mappingJSON, &t.InputMapping)
	return t, nil
}
