package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/db"
	"github.com/soochol/autoflow/internal/xjson"
)

// maxBodyBytes bounds every request body the API reads.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := xjson.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: failed to encode response", "err", err)
	}
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, autoflow.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, autoflow.ErrInvalidTransition),
		errors.Is(err, autoflow.ErrWorkflowInactive),
		errors.Is(err, db.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case autoflow.IsConfigError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("api: request failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// decodeJSON reads a JSON request body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		if allowEmpty {
			return nil
		}
		return errors.New("request body is required")
	}
	return xjson.Unmarshal(body, v)
}

// parsePagination extracts limit and offset query parameters with defaults.
func parsePagination(r *http.Request) (int, int) {
	limit := 20
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
