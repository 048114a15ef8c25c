package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/autoflow/internal/autoflow"
)

// POST /api/workflows
func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf autoflow.Workflow
	if err := decodeJSON(r, &wf, false); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.workflowSvc.Create(r.Context(), &wf); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

// GET /api/workflows
func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	wfs, err := s.workflowSvc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if wfs == nil {
		wfs = []*autoflow.Workflow{}
	}
	writeJSON(w, http.StatusOK, wfs)
}

// GET /api/workflows/{id}
func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.workflowSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// PUT /api/workflows/{id}
func (s *Server) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf autoflow.Workflow
	if err := decodeJSON(r, &wf, false); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	wf.ID = chi.URLParam(r, "id")
	if err := s.workflowSvc.Update(r.Context(), &wf); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// DELETE /api/workflows/{id}
func (s *Server) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.workflowSvc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runWorkflow submits a manual run. The optional JSON body becomes the
// trigger data.
// POST /api/workflows/{id}/run
func (s *Server) runWorkflow(w http.ResponseWriter, r *http.Request) {
	var triggerData map[string]any
	if err := decodeJSON(r, &triggerData, true); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	exec, err := s.runSvc.SubmitRun(r.Context(), chi.URLParam(r, "id"), triggerData)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, exec)
}
