package nodes

import (
	"sort"
	"sync"

	"github.com/soochol/autoflow/internal/autoflow/ports"
)

// Registry maps action types to their integration executors.
type Registry struct {
	mu           sync.RWMutex
	integrations map[string]ports.IntegrationExecutor
}

func NewRegistry() *Registry {
	return &Registry{integrations: make(map[string]ports.IntegrationExecutor)}
}

// Register adds or replaces the executor for its action type.
func (r *Registry) Register(e ports.IntegrationExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrations[e.Type()] = e
}

// Get returns the executor for an action type.
func (r *Registry) Get(actionType string) (ports.IntegrationExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.integrations[actionType]
	return e, ok
}

// Types lists registered action types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.integrations))
	for t := range r.integrations {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
