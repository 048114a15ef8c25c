package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/autoflow/internal/autoflow"
)

// scheduleRequest is the body of schedule create and update requests.
// is_active defaults to true on create and to the current value on update.
type scheduleRequest struct {
	WorkflowID     string         `json:"workflow_id"`
	RecurrenceExpr string         `json:"recurrence_expr"`
	Timezone       string         `json:"timezone"`
	Inputs         map[string]any `json:"inputs"`
	IsActive       *bool          `json:"is_active"`
}

// POST /api/schedules
func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedulerSvc == nil {
		http.Error(w, "scheduler not available", http.StatusServiceUnavailable)
		return
	}

	var req scheduleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.WorkflowID == "" || req.RecurrenceExpr == "" {
		http.Error(w, "workflow_id and recurrence_expr are required", http.StatusBadRequest)
		return
	}
	if _, err := s.workflowSvc.Lookup(r.Context(), req.WorkflowID); err != nil {
		writeError(w, err)
		return
	}

	task := &autoflow.ScheduledTask{
		WorkflowID:     req.WorkflowID,
		RecurrenceExpr: req.RecurrenceExpr,
		Timezone:       req.Timezone,
		Inputs:         req.Inputs,
		IsActive:       req.IsActive == nil || *req.IsActive,
	}
	if err := s.schedulerSvc.AddSchedule(r.Context(), task); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// GET /api/schedules
func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	if s.schedulerSvc == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	tasks, err := s.schedulerSvc.ListSchedules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeSchedules(w, tasks)
}

// GET /api/workflows/{id}/schedules
func (s *Server) listWorkflowSchedules(w http.ResponseWriter, r *http.Request) {
	if s.schedulerSvc == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	tasks, err := s.schedulerSvc.ListByWorkflow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSchedules(w, tasks)
}

func writeSchedules(w http.ResponseWriter, tasks []*autoflow.ScheduledTask) {
	if tasks == nil {
		tasks = []*autoflow.ScheduledTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// GET /api/schedules/{id}
func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedulerSvc == nil {
		http.Error(w, "scheduler not available", http.StatusNotFound)
		return
	}

	task, err := s.schedulerSvc.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// PUT /api/schedules/{id}
func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedulerSvc == nil {
		http.Error(w, "scheduler not available", http.StatusServiceUnavailable)
		return
	}

	id := chi.URLParam(r, "id")
	existing, err := s.schedulerSvc.GetSchedule(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req scheduleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	task := &autoflow.ScheduledTask{
		ID:             id,
		WorkflowID:     existing.WorkflowID,
		RecurrenceExpr: existing.RecurrenceExpr,
		Timezone:       existing.Timezone,
		Inputs:         existing.Inputs,
		IsActive:       existing.IsActive,
	}
	if req.RecurrenceExpr != "" {
		task.RecurrenceExpr = req.RecurrenceExpr
	}
	if req.Timezone != "" {
		task.Timezone = req.Timezone
	}
	if req.Inputs != nil {
		task.Inputs = req.Inputs
	}
	if req.IsActive != nil {
		task.IsActive = *req.IsActive
	}

	if err := s.schedulerSvc.UpdateSchedule(r.Context(), task); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DELETE /api/schedules/{id}
func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedulerSvc == nil {
		http.Error(w, "scheduler not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.schedulerSvc.RemoveSchedule(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/schedules/{id}/pause
func (s *Server) pauseSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedulerSvc == nil {
		http.Error(w, "scheduler not available", http.StatusServiceUnavailable)
		return
	}

	task, err := s.schedulerSvc.PauseSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// POST /api/schedules/{id}/resume
func (s *Server) resumeSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedulerSvc == nil {
		http.Error(w, "scheduler not available", http.StatusServiceUnavailable)
		return
	}

	task, err := s.schedulerSvc.ResumeSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// triggerSchedule fires a schedule immediately.
// POST /api/schedules/{id}/trigger
func (s *Server) triggerSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedulerSvc == nil {
		http.Error(w, "scheduler not available", http.StatusServiceUnavailable)
		return
	}

	exec, err := s.schedulerSvc.TriggerNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, exec)
}

// getSchedulerStats returns current concurrency and queue status.
// GET /api/scheduler/stats
func (s *Server) getSchedulerStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{}
	if s.limiter != nil {
		resp["concurrency"] = s.limiter.Stats()
	}
	if depth, err := s.runSvc.QueueDepth(r.Context()); err == nil {
		resp["queue_depth"] = depth
	}
	writeJSON(w, http.StatusOK, resp)
}
