package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/xjson"
)

const executionColumns = `id, workflow_id, status, trigger_data, attempt, generation, error_message, created_at, started_at, finished_at`

// CreateExecution stores a new execution record.
func (d *DB) CreateExecution(ctx context.Context, e *autoflow.Execution) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO executions (`+executionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.WorkflowID, string(e.Status), jsonParam(e.TriggerData),
		e.Attempt, e.Generation, e.ErrorMessage, e.CreatedAt, e.StartedAt, e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (d *DB) GetExecution(ctx context.Context, id string) (*autoflow.Execution, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: execution %s", autoflow.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// UpdateExecution writes the mutable fields of an execution. Trigger data
// is immutable after creation and is not rewritten.
func (d *DB) UpdateExecution(ctx context.Context, e *autoflow.Execution) error {
	_, err := d.Pool.ExecContext(ctx,
		`UPDATE executions SET status = $1, attempt = $2, generation = $3, error_message = $4, started_at = $5, finished_at = $6
		 WHERE id = $7`,
		string(e.Status), e.Attempt, e.Generation, e.ErrorMessage, e.StartedAt, e.FinishedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	return nil
}

// ListExecutionsByWorkflow returns a workflow's executions, newest first.
func (d *DB) ListExecutionsByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*autoflow.Execution, int, error) {
	var total int
	err := d.Pool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM executions WHERE workflow_id = $1`, workflowID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE workflow_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		workflowID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows, total)
}

// ListAllExecutions returns executions across workflows, newest first.
// status filters by run status when non-empty.
func (d *DB) ListAllExecutions(ctx context.Context, limit, offset int, status string) ([]*autoflow.Execution, int, error) {
	var total int
	err := d.Pool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM executions WHERE ($1 = '' OR status = $1)`, status,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE ($1 = '' OR status = $1)
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		status, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows, total)
}

// MarkOrphanedExecutionsFailed fails executions a crashed process left
// running, and pending ones too when includePending is set.
func (d *DB) MarkOrphanedExecutionsFailed(ctx context.Context, includePending bool) (int64, error) {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE executions SET status = 'failed', error_message = 'interrupted by restart', finished_at = NOW()
		 WHERE status = 'running' OR ($1 AND status = 'pending')`, includePending,
	)
	if err != nil {
		return 0, fmt.Errorf("mark orphaned executions: %w", err)
	}
	return res.RowsAffected()
}

// FailExecutionIfRunning fails an execution only while it is still running
// the attempt that started at startedAt.
func (d *DB) FailExecutionIfRunning(ctx context.Context, id string, startedAt time.Time, errMsg string) (bool, error) {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE executions SET status = 'failed', error_message = $1, finished_at = NOW()
		 WHERE id = $2 AND status = 'running' AND started_at = $3`, errMsg, id, startedAt,
	)
	if err != nil {
		return false, fmt.Errorf("fail orphaned execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanExecution(s rowScanner) (*autoflow.Execution, error) {
	e := &autoflow.Execution{}
	var status string
	var triggerJSON []byte
	if err := s.Scan(&e.ID, &e.WorkflowID, &status, &triggerJSON, &e.Attempt, &e.Generation,
		&e.ErrorMessage, &e.CreatedAt, &e.StartedAt, &e.FinishedAt); err != nil {
		return nil, err
	}
	e.Status = autoflow.RunStatus(status)
	xjson.Unmarshal(triggerJSON, &e.TriggerData)
	return e, nil
}

func scanExecutions(rows *sql.Rows, total int) ([]*autoflow.Execution, int, error) {
	var result []*autoflow.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan execution: %w", err)
		}
		result = append(result, e)
	}
	return result, total, rows.Err()
}

// --- Execution logs ---

const logColumns = `id, execution_id, seq, node_id, status, input_data, output_data, error_message, executed_at, duration_ms`

// CreateExecutionLog stores a node attempt record.
func (d *DB) CreateExecutionLog(ctx context.Context, l *autoflow.ExecutionLog) error {
	var output any
	if l.OutputData != nil {
		output = jsonParam(l.OutputData)
	}
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO execution_logs (`+logColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.ExecutionID, l.Seq, l.NodeID, string(l.Status),
		jsonParam(l.InputData), output, l.ErrorMessage, l.ExecutedAt, l.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert execution log: %w", err)
	}
	return nil
}

// FinalizeExecutionLog records the outcome of a node attempt. Only a log
// still in running state is updated, so a finalized log never changes.
func (d *DB) FinalizeExecutionLog(ctx context.Context, l *autoflow.ExecutionLog) error {
	var output any
	if l.OutputData != nil {
		output = jsonParam(l.OutputData)
	}
	_, err := d.Pool.ExecContext(ctx,
		`UPDATE execution_logs SET status = $1, output_data = $2, error_message = $3, duration_ms = $4
		 WHERE id = $5 AND status = 'running'`,
		string(l.Status), output, l.ErrorMessage, l.DurationMs, l.ID,
	)
	if err != nil {
		return fmt.Errorf("finalize execution log: %w", err)
	}
	return nil
}

// ListExecutionLogs returns an execution's logs in the order they were started.
func (d *DB) ListExecutionLogs(ctx context.Context, executionID string) ([]*autoflow.ExecutionLog, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+logColumns+` FROM execution_logs WHERE execution_id = $1 ORDER BY seq`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list execution logs: %w", err)
	}
	defer rows.Close()

	var result []*autoflow.ExecutionLog
	for rows.Next() {
		l := &autoflow.ExecutionLog{}
		var status string
		var inputJSON, outputJSON []byte
		if err := rows.Scan(&l.ID, &l.ExecutionID, &l.Seq, &l.NodeID, &status,
			&inputJSON, &outputJSON, &l.ErrorMessage, &l.ExecutedAt, &l.DurationMs); err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		l.Status = autoflow.LogStatus(status)
		xjson.Unmarshal(inputJSON, &l.InputData)
		if len(outputJSON) > 0 {
			xjson.Unmarshal(outputJSON, &l.OutputData)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// DeleteExecutionLogs removes every log of an execution.
func (d *DB) DeleteExecutionLogs(ctx context.Context, executionID string) error {
	_, err := d.Pool.ExecContext(ctx, `DELETE FROM execution_logs WHERE execution_id = $1`, executionID)
	if err != nil {
		return fmt.Errorf("delete execution logs: %w", err)
	}
	return nil
}
