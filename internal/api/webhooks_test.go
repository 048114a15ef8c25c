package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/soochol/autoflow/internal/autoflow"
)

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyHMAC(t *testing.T) {
	secret := "test-secret"
	payload := []byte(`{"message":"hello"}`)
	validSig := sign(payload, secret)

	tests := []struct {
		name      string
		payload   []byte
		secret    string
		signature string
		valid     bool
	}{
		{"valid signature", payload, secret, validSig, true},
		{"prefixed signature", payload, secret, "sha256=" + validSig, true},
		{"wrong signature", payload, secret, "deadbeef", false},
		{"empty signature", payload, secret, "", false},
		{"wrong secret", payload, "other-secret", validSig, false},
		{"tampered payload", []byte(`{"message":"bye"}`), secret, validSig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verifyHMAC(tt.payload, tt.secret, tt.signature)
			if got != tt.valid {
				t.Errorf("verifyHMAC() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestVerifyBearer(t *testing.T) {
	secret := "test-secret"
	signed := func(method jwt.SigningMethod, key any, exp time.Time) string {
		tok, err := jwt.NewWithClaims(method, jwt.MapClaims{"exp": exp.Unix()}).SignedString(key)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return tok
	}

	tests := []struct {
		name  string
		token string
		valid bool
	}{
		{"valid", signed(jwt.SigningMethodHS256, []byte(secret), time.Now().Add(time.Minute)), true},
		{"wrong key", signed(jwt.SigningMethodHS256, []byte("nope"), time.Now().Add(time.Minute)), false},
		{"expired", signed(jwt.SigningMethodHS256, []byte(secret), time.Now().Add(-time.Minute)), false},
		{"other algorithm", signed(jwt.SigningMethodHS512, []byte(secret), time.Now().Add(time.Minute)), false},
		{"garbage", "not-a-token", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := verifyBearer(tt.token, secret); got != tt.valid {
				t.Errorf("verifyBearer() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestMapInputs(t *testing.T) {
	payload := map[string]any{
		"message": "hello world",
		"user":    "alice",
		"count":   42,
	}

	t.Run("with mapping", func(t *testing.T) {
		mapping := map[string]string{
			"query":    "message",
			"username": "user",
			"absent":   "missing",
		}
		inputs := mapInputs(payload, mapping)
		if inputs["query"] != "hello world" {
			t.Errorf("expected query=hello world, got %v", inputs["query"])
		}
		if inputs["username"] != "alice" {
			t.Errorf("expected username=alice, got %v", inputs["username"])
		}
		if _, ok := inputs["count"]; ok {
			t.Error("count should not be in inputs (not in mapping)")
		}
		if _, ok := inputs["absent"]; ok {
			t.Error("absent payload keys should not be mapped")
		}
	})

	t.Run("without mapping", func(t *testing.T) {
		inputs := mapInputs(payload, nil)
		if inputs["message"] != "hello world" {
			t.Errorf("expected full payload passthrough, got %v", inputs)
		}
	})
}

func postHook(srv *testServer, id string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/hooks/"+id, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestWebhook_SubmitsRun(t *testing.T) {
	srv := newTestServer()
	wfID := srv.mustCreateWorkflow(t, "hooked", true)
	secret := "s3cret"
	trigger := &autoflow.WebhookTrigger{
		ID:           "trig-1",
		WorkflowID:   wfID,
		Secret:       secret,
		InputMapping: map[string]string{"order": "order_id"},
		Enabled:      true,
	}
	if err := srv.triggers.Create(testContext(t), trigger); err != nil {
		t.Fatal(err)
	}
	body := []byte(`{"order_id":"A-1","noise":true}`)

	w := postHook(srv, "trig-1", body, map[string]string{"X-Webhook-Signature": sign(body, secret)})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status: got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[map[string]string](t, w)
	if resp["status"] != "accepted" || resp["execution_id"] == "" {
		t.Fatalf("response: got %v", resp)
	}

	exec, err := srv.history.GetExecution(testContext(t), resp["execution_id"])
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != autoflow.RunStatusPending {
		t.Errorf("status: got %s, want pending", exec.Status)
	}
	want := map[string]any{"order": "A-1", "triggerType": "webhook", "triggerId": "trig-1"}
	for k, v := range want {
		if exec.TriggerData[k] != v {
			t.Errorf("trigger data %s: got %v, want %v", k, exec.TriggerData[k], v)
		}
	}
	if _, ok := exec.TriggerData["noise"]; ok {
		t.Error("unmapped payload field leaked into trigger data")
	}
	if n, _ := srv.queue.Len(testContext(t)); n != 1 {
		t.Errorf("queue depth: got %d, want 1", n)
	}
}

func TestWebhook_Rejections(t *testing.T) {
	srv := newTestServer()
	activeID := srv.mustCreateWorkflow(t, "active", true)
	inactiveID := srv.mustCreateWorkflow(t, "inactive", false)
	ctx := testContext(t)

	for _, tr := range []*autoflow.WebhookTrigger{
		{ID: "signed", WorkflowID: activeID, Secret: "k", Enabled: true},
		{ID: "disabled", WorkflowID: activeID, Enabled: false},
		{ID: "open", WorkflowID: activeID, Enabled: true},
		{ID: "sleeping", WorkflowID: inactiveID, Enabled: true},
	} {
		if err := srv.triggers.Create(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}
	body := []byte(`{"a":1}`)

	tests := []struct {
		name   string
		id     string
		body   []byte
		header map[string]string
		want   int
	}{
		{"unknown trigger", "nope", body, nil, http.StatusNotFound},
		{"disabled trigger", "disabled", body, nil, http.StatusForbidden},
		{"missing signature", "signed", body, nil, http.StatusUnauthorized},
		{"bad signature", "signed", body, map[string]string{"X-Webhook-Signature": "00"}, http.StatusUnauthorized},
		{"bad bearer", "signed", body, map[string]string{"Authorization": "Bearer x.y.z"}, http.StatusUnauthorized},
		{"invalid json", "open", []byte(`{`), nil, http.StatusBadRequest},
		{"inactive workflow", "sleeping", body, nil, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := postHook(srv, tt.id, tt.body, tt.header); w.Code != tt.want {
				t.Errorf("status: got %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestWebhook_BearerToken(t *testing.T) {
	srv := newTestServer()
	wfID := srv.mustCreateWorkflow(t, "hooked", true)
	if err := srv.triggers.Create(testContext(t), &autoflow.WebhookTrigger{
		ID: "jwt", WorkflowID: wfID, Secret: "k", Enabled: true,
	}); err != nil {
		t.Fatal(err)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}

	w := postHook(srv, "jwt", nil, map[string]string{"Authorization": "Bearer " + token})
	if w.Code != http.StatusAccepted {
		t.Errorf("status: got %d, want 202 (%s)", w.Code, w.Body.String())
	}
}
