package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/queue"
	"github.com/soochol/autoflow/internal/repository"
	"github.com/soochol/autoflow/internal/services"
)

// testContext returns a context canceled when the test finishes, matching
// testing.T.Context from Go 1.24.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// testServer is a Server over in-memory repositories with no workers, so
// submitted executions stay pending in the queue.
type testServer struct {
	*Server
	queue    *queue.MemoryQueue
	history  *services.RunHistoryService
	triggers *repository.MemoryTriggerRepository
}

func newTestServer() *testServer {
	workflows := services.NewWorkflowService(repository.NewMemory())
	history := services.NewRunHistoryService(repository.NewMemoryExecutionRepository())
	q := queue.NewMemoryQueue()
	runs := services.NewRunService(workflows, history, q, nil)
	limiter := services.NewConcurrencyLimiter(autoflow.DefaultConcurrencyLimits(), nil)

	srv := NewServer(workflows, runs)
	srv.SetSchedulerService(services.NewSchedulerService(repository.NewMemoryScheduleRepository(), runs, 0))
	srv.SetConcurrencyLimiter(limiter)
	triggers := repository.NewMemoryTriggerRepository()
	srv.SetTriggerRepository(triggers)
	return &testServer{Server: srv, queue: q, history: history, triggers: triggers}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func sampleWorkflow(name string, active bool) autoflow.Workflow {
	return autoflow.Workflow{
		Name:     name,
		IsActive: active,
		Nodes: []autoflow.Node{
			{NodeID: "t", Kind: autoflow.NodeKindTrigger},
			{NodeID: "a", Kind: autoflow.NodeKindAction, Config: map[string]any{"actionType": "transform"}},
		},
		Connections: []autoflow.Connection{{SourceNodeID: "t", TargetNodeID: "a"}},
	}
}

// mustCreateWorkflow posts a workflow and returns its assigned ID.
func (s *testServer) mustCreateWorkflow(t *testing.T, name string, active bool) string {
	t.Helper()
	w := s.do(http.MethodPost, "/api/workflows", sampleWorkflow(name, active))
	if w.Code != http.StatusCreated {
		t.Fatalf("create workflow: got %d: %s", w.Code, w.Body.String())
	}
	var wf autoflow.Workflow
	if err := json.Unmarshal(w.Body.Bytes(), &wf); err != nil {
		t.Fatalf("decode workflow: %v", err)
	}
	return wf.ID
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}
