package services

// scheduler_dispatch.go: turns a due schedule into an execution.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dario.cat/mergo"

	"github.com/soochol/autoflow/internal/autoflow"
)

// dispatch creates an execution for task, advances the schedule and then
// submits the execution. The schedule advances even when the run cannot be
// created, so a broken schedule does not refire on every sweep.
func (s *SchedulerService) dispatch(ctx context.Context, task *autoflow.ScheduledTask, now time.Time) (*autoflow.Execution, error) {
	slog.Info("scheduler: firing schedule", "schedule", task.ID, "workflow", task.WorkflowID)

	triggerData, err := scheduleTriggerData(task, now)
	if err != nil {
		return nil, err
	}
	exec, runErr := s.runs.CreateRun(ctx, task.WorkflowID, triggerData)

	task.LastRunAt = &now
	next, err := NextOccurrence(task.RecurrenceExpr, task.Timezone, now)
	if err != nil {
		// An expression that no longer parses cannot fire again.
		slog.Warn("scheduler: deactivating schedule with invalid recurrence", "schedule", task.ID, "err", err)
		task.IsActive = false
	} else {
		task.NextRunAt = next
	}
	task.UpdatedAt = now
	if err := s.scheduleRepo.Update(ctx, task); err != nil {
		slog.Warn("scheduler: failed to update schedule after firing", "schedule", task.ID, "err", err)
	}

	if runErr != nil {
		return nil, runErr
	}
	if err := s.runs.Enqueue(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// scheduleTriggerData builds the trigger data of a scheduled fire. The
// schedule's inputs are merged in underneath; scheduler metadata wins.
func scheduleTriggerData(task *autoflow.ScheduledTask, now time.Time) (map[string]any, error) {
	data := map[string]any{
		"triggerType":    string(autoflow.TriggerSchedule),
		"scheduleId":     task.ID,
		"cronExpression": task.RecurrenceExpr,
		"timezone":       task.Timezone,
		"firedAt":        now.UTC().Format(time.RFC3339),
	}
	if len(task.Inputs) > 0 {
		if err := mergo.Merge(&data, task.Inputs); err != nil {
			return nil, fmt.Errorf("merge inputs of schedule %s: %w", task.ID, err)
		}
	}
	return data, nil
}
