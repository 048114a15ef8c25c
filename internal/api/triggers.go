package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/autoflow/internal/autoflow"
)

type triggerRequest struct {
	WorkflowID   string            `json:"workflow_id"`
	Secret       string            `json:"secret"`
	InputMapping map[string]string `json:"input_mapping"`
}

// createTrigger creates a new webhook trigger for a workflow.
// POST /api/triggers
func (s *Server) createTrigger(w http.ResponseWriter, r *http.Request) {
	if s.triggerRepo == nil {
		http.Error(w, "triggers not available", http.StatusServiceUnavailable)
		return
	}

	var req triggerRequest
	if err := decodeJSON(r, &req, false); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.WorkflowID == "" {
		http.Error(w, "workflow_id is required", http.StatusBadRequest)
		return
	}
	if _, err := s.workflowSvc.Lookup(r.Context(), req.WorkflowID); err != nil {
		writeError(w, err)
		return
	}

	trigger := &autoflow.WebhookTrigger{
		ID:           autoflow.GenerateID("trig"),
		WorkflowID:   req.WorkflowID,
		Secret:       req.Secret,
		InputMapping: req.InputMapping,
		Enabled:      true,
		CreatedAt:    time.Now(),
	}
	if trigger.Secret == "" {
		secret, err := newWebhookSecret()
		if err != nil {
			writeError(w, err)
			return
		}
		trigger.Secret = secret
	}

	if err := s.triggerRepo.Create(r.Context(), trigger); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"trigger":     trigger,
		"webhook_url": "/api/hooks/" + trigger.ID,
	})
}

func newWebhookSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return "whsec_" + hex.EncodeToString(b), nil
}

// GET /api/triggers/{id}
func (s *Server) getTrigger(w http.ResponseWriter, r *http.Request) {
	if s.triggerRepo == nil {
		http.Error(w, "triggers not available", http.StatusServiceUnavailable)
		return
	}

	trigger, err := s.triggerRepo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trigger)
}

// listTriggers returns triggers for a specific workflow.
// GET /api/workflows/{id}/triggers
func (s *Server) listTriggers(w http.ResponseWriter, r *http.Request) {
	if s.triggerRepo == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	triggers, err := s.triggerRepo.ListByWorkflow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if triggers == nil {
		triggers = []*autoflow.WebhookTrigger{}
	}
	writeJSON(w, http.StatusOK, triggers)
}

// DELETE /api/triggers/{id}
func (s *Server) deleteTrigger(w http.ResponseWriter, r *http.Request) {
	if s.triggerRepo == nil {
		http.Error(w, "triggers not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.triggerRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
