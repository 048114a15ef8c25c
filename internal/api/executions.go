package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/autoflow/internal/autoflow"
)

// GET /api/executions?status=failed&limit=20&offset=0
func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	execs, total, err := s.runSvc.List(r.Context(), limit, offset, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeExecutionPage(w, execs, total)
}

// GET /api/workflows/{id}/executions?limit=20&offset=0
func (s *Server) listWorkflowExecutions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	execs, total, err := s.runSvc.ListByWorkflow(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeExecutionPage(w, execs, total)
}

func writeExecutionPage(w http.ResponseWriter, execs []*autoflow.Execution, total int) {
	if execs == nil {
		execs = []*autoflow.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": execs,
		"total":      total,
	})
}

// getExecution returns an execution with its ordered node logs.
// GET /api/executions/{id}
func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	detail, err := s.runSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if detail.Logs == nil {
		detail.Logs = []*autoflow.ExecutionLog{}
	}
	writeJSON(w, http.StatusOK, detail)
}

// GET /api/executions/{id}/logs
func (s *Server) listExecutionLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.runSvc.Logs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []*autoflow.ExecutionLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// POST /api/executions/{id}/stop
func (s *Server) stopExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.runSvc.Stop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// POST /api/executions/{id}/retry
func (s *Server) retryExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.runSvc.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, exec)
}
