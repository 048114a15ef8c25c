// Package integrations holds the built-in action executors. Each one performs
// a single external side effect and reports its result as a data bag.
package integrations

import (
	"database/sql"
	"fmt"
	"net/http"
	"strconv"

	"github.com/soochol/autoflow/internal/autoflow/ports"
)

// Action types handled by the built-in integrations.
const (
	TypeHTTP        = "http"
	TypeEmail       = "email"
	TypeDatabase    = "database"
	TypeChatMessage = "chat-message"
	TypeSpreadsheet = "spreadsheet"
	TypeFeed        = "feed"
)

// Options configures the built-in integrations.
type Options struct {
	HTTPClient     *http.Client
	SMTP           SMTPSettings
	DB             *sql.DB
	SpreadsheetDir string
}

// Registrar accepts integration executors.
type Registrar interface {
	Register(e ports.IntegrationExecutor)
}

// RegisterDefaults registers every built-in integration.
func RegisterDefaults(r Registrar, opts Options) {
	r.Register(&HTTPIntegration{Client: opts.HTTPClient})
	r.Register(&EmailIntegration{Settings: opts.SMTP})
	r.Register(&DatabaseIntegration{DB: opts.DB})
	r.Register(&ChatMessageIntegration{Client: opts.HTTPClient})
	r.Register(&SpreadsheetIntegration{Dir: opts.SpreadsheetDir})
	r.Register(&FeedIntegration{Client: opts.HTTPClient})
}

// --- config helpers ---

func stringField(cfg map[string]any, key string) string {
	switch v := cfg[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func intField(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func stringMap(cfg map[string]any, key string) map[string]string {
	out := map[string]string{}
	switch v := cfg[key].(type) {
	case map[string]any:
		for k, val := range v {
			out[k] = fmt.Sprintf("%v", val)
		}
	case map[string]string:
		for k, val := range v {
			out[k] = val
		}
	}
	return out
}

func sliceField(cfg map[string]any, key string) []any {
	switch v := cfg[key].(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case nil:
		return nil
	default:
		return []any{v}
	}
}

func httpClient(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}
