package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/xjson"
)

const workflowColumns = `id, name, description, nodes, connections, is_active, settings, created_at, updated_at`

// ErrConflict is returned when an insert collides with an existing row.
var ErrConflict = errors.New("already exists")

// CreateWorkflow stores a new workflow.
func (d *DB) CreateWorkflow(ctx context.Context, wf *autoflow.Workflow) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO workflows (`+workflowColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		wf.ID, wf.Name, wf.Description,
		jsonParam(wf.Nodes), jsonParam(wf.Connections),
		wf.IsActive, jsonParam(wf.Settings),
		wf.CreatedAt, wf.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("workflow %s: %w", wf.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (d *DB) GetWorkflow(ctx context.Context, id string) (*autoflow.Workflow, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: workflow %s", autoflow.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return wf, nil
}

// ListWorkflows returns all workflows ordered by name.
func (d *DB) ListWorkflows(ctx context.Context) ([]*autoflow.Workflow, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var result []*autoflow.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		result = append(result, wf)
	}
	return result, rows.Err()
}

// UpdateWorkflow replaces a workflow's definition.
func (d *DB) UpdateWorkflow(ctx context.Context, wf *autoflow.Workflow) error {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE workflows SET name = $1, description = $2, nodes = $3, connections = $4, is_active = $5, settings = $6, updated_at = $7
		 WHERE id = $8`,
		wf.Name, wf.Description, jsonParam(wf.Nodes), jsonParam(wf.Connections),
		wf.IsActive, jsonParam(wf.Settings), wf.UpdatedAt, wf.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: workflow %s", autoflow.ErrNotFound, wf.ID)
	}
	return nil
}

// DeleteWorkflow removes a workflow by ID.
func (d *DB) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := d.Pool.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(s rowScanner) (*autoflow.Workflow, error) {
	wf := &autoflow.Workflow{}
	var nodesJSON, connsJSON, settingsJSON []byte
	if err := s.Scan(&wf.ID, &wf.Name, &wf.Description, &nodesJSON, &connsJSON,
		&wf.IsActive, &settingsJSON, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	if err := xjson.Unmarshal(nodesJSON, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := xjson.Unmarshal(connsJSON, &wf.Connections); err != nil {
		return nil, fmt.Errorf("unmarshal connections: %w", err)
	}
	xjson.Unmarshal(settingsJSON, &wf.Settings)
	return wf, nil
}
