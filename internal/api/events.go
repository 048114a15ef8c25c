package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/engine"
	"github.com/soochol/autoflow/internal/xjson"
)

// statusPollInterval is how often a live stream checks whether its
// execution has finished.
const statusPollInterval = 500 * time.Millisecond

// streamExecutionEvents streams node events of an execution via SSE until
// the execution reaches a terminal state or the client disconnects. Only
// events published in this process after connecting are delivered.
// GET /api/executions/{id}/events
func (s *Server) streamExecutionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.events == nil {
		http.Error(w, "event streaming not available", http.StatusServiceUnavailable)
		return
	}
	detail, err := s.runSvc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if detail.Execution.Status.IsTerminal() {
		writeDoneEvent(w, detail.Execution)
		flusher.Flush()
		return
	}

	events := s.events.Channel(r.Context(), id, 64)
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			seq++
			writeSSEEvent(w, seq, ev)
			flusher.Flush()
		case <-ticker.C:
			exec, err := s.runSvc.Get(r.Context(), id)
			if err != nil {
				return
			}
			if exec.Execution.Status.IsTerminal() {
				writeDoneEvent(w, exec.Execution)
				flusher.Flush()
				return
			}
		}
	}
}

// writeSSEEvent writes a single node event as an SSE frame.
func writeSSEEvent(w http.ResponseWriter, seq int, ev engine.Event) {
	data, _ := xjson.Marshal(ev)
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, data)
}

// writeDoneEvent writes the final "done" SSE event.
func writeDoneEvent(w http.ResponseWriter, exec *autoflow.Execution) {
	data, _ := xjson.Marshal(map[string]any{
		"execution_id":  exec.ID,
		"status":        exec.Status,
		"error_message": exec.ErrorMessage,
	})
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
}
