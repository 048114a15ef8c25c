package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/xjson"
)

// handleWebhook receives an external HTTP POST and submits a workflow run.
// POST /api/hooks/{id}
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.triggerRepo == nil {
		http.Error(w, "triggers not available", http.StatusServiceUnavailable)
		return
	}

	trigger, err := s.triggerRepo.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "trigger not found", http.StatusNotFound)
		return
	}
	if !trigger.Enabled {
		http.Error(w, "trigger is disabled", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if trigger.Secret != "" && !authorizeWebhook(r, body, trigger.Secret) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload map[string]any
	if len(body) > 0 {
		if err := xjson.Unmarshal(body, &payload); err != nil {
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}
	}

	inputs := mapInputs(payload, trigger.InputMapping)
	if inputs == nil {
		inputs = make(map[string]any, 2)
	}
	inputs["triggerType"] = string(autoflow.TriggerWebhook)
	inputs["triggerId"] = trigger.ID

	exec, err := s.runSvc.SubmitRun(r.Context(), trigger.WorkflowID, inputs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":       "accepted",
		"execution_id": exec.ID,
	})
}

// authorizeWebhook accepts either an HMAC-SHA256 body signature or a bearer
// JWT signed with the trigger secret.
func authorizeWebhook(r *http.Request, body []byte, secret string) bool {
	if sig := r.Header.Get("X-Webhook-Signature"); sig != "" {
		return verifyHMAC(body, secret, sig)
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return verifyBearer(token, secret)
}

// verifyHMAC checks the HMAC-SHA256 signature of a payload. A "sha256="
// prefix on the signature is accepted.
func verifyHMAC(payload []byte, secret, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// verifyBearer validates an HS256 token signed with secret.
func verifyBearer(raw, secret string) bool {
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil && token.Valid
}

// mapInputs extracts workflow inputs from a webhook payload using the input mapping.
// If no mapping is configured, the entire payload is passed as-is.
func mapInputs(payload map[string]any, mapping map[string]string) map[string]any {
	if len(mapping) == 0 {
		return payload
	}

	inputs := make(map[string]any)
	for inputKey, payloadKey := range mapping {
		if val, ok := payload[payloadKey]; ok {
			inputs[inputKey] = val
		}
	}
	return inputs
}
