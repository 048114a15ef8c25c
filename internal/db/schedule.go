package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/xjson"
)

const scheduleColumns = `id, workflow_id, recurrence_expr, timezone, inputs, is_active, last_run_at, next_run_at, created_at, updated_at`

// CreateSchedule stores a new scheduled task.
func (d *DB) CreateSchedule(ctx context.Context, s *autoflow.ScheduledTask) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO scheduled_tasks (`+scheduleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.WorkflowID, s.RecurrenceExpr, s.Timezone, jsonParam(s.Inputs),
		s.IsActive, s.LastRunAt, s.NextRunAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a scheduled task by ID.
func (d *DB) GetSchedule(ctx context.Context, id string) (*autoflow.ScheduledTask, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_tasks WHERE id = $1`, id)
	s, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: schedule %s", autoflow.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return s, nil
}

// UpdateSchedule updates an existing scheduled task.
func (d *DB) UpdateSchedule(ctx context.Context, s *autoflow.ScheduledTask) error {
	_, err := d.Pool.ExecContext(ctx,
		`UPDATE scheduled_tasks SET workflow_id = $1, recurrence_expr = $2, timezone = $3, inputs = $4, is_active = $5, last_run_at = $6, next_run_at = $7, updated_at = $8
		 WHERE id = $9`,
		s.WorkflowID, s.RecurrenceExpr, s.Timezone, jsonParam(s.Inputs),
		s.IsActive, s.LastRunAt, s.NextRunAt, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes a scheduled task by ID.
func (d *DB) DeleteSchedule(ctx context.Context, id string) error {
	_, err := d.Pool.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

// ListSchedules returns all scheduled tasks.
func (d *DB) ListSchedules(ctx context.Context) ([]*autoflow.ScheduledTask, error) {
	return d.querySchedules(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_tasks ORDER BY created_at`)
}

// ListDueSchedules returns active scheduled tasks with next_run_at <= now.
func (d *DB) ListDueSchedules(ctx context.Context, now time.Time) ([]*autoflow.ScheduledTask, error) {
	return d.querySchedules(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_tasks WHERE is_active AND next_run_at <= $1 ORDER BY next_run_at`, now)
}

// ListSchedulesByWorkflow returns the scheduled tasks of one workflow.
func (d *DB) ListSchedulesByWorkflow(ctx context.Context, workflowID string) ([]*autoflow.ScheduledTask, error) {
	return d.querySchedules(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_tasks WHERE workflow_id = $1 ORDER BY created_at`, workflowID)
}

func (d *DB) querySchedules(ctx context.Context, query string, args ...any) ([]*autoflow.ScheduledTask, error) {
	rows, err := d.Pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var result []*autoflow.ScheduledTask
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func scanSchedule(r rowScanner) (*autoflow.ScheduledTask, error) {
	s := &autoflow.ScheduledTask{}
	var inputsJSON []byte
	if err := r.Scan(&s.ID, &s.WorkflowID, &s.RecurrenceExpr, &s.Timezone, &inputsJSON,
		&s.IsActive, &s.LastRunAt, &s.NextRunAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	xjson.Unmarshal(inputsJSON, &s.Inputs)
	return s, nil
}
