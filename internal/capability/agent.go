// Package capability defines the capability agent contract and the registry
// the dispatcher resolves agents from.
package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sauravmaulick/GenAICoordinator-Replit/pkg/models"
)

// Agent answers one sub-question against a single data source.
//
// Query returns a payload on success. Errors should be *models.AgentError;
// any other error is classified as internal by the caller. Implementations
// must honour ctx cancellation and must be safe for concurrent use.
type Agent interface {
	Capability() models.Capability
	Query(ctx context.Context, text string, rc models.RunContext) (*models.Payload, error)
}

// Func adapts a function to the Agent interface.
type Func struct {
	Cap models.Capability
	Fn  func(ctx context.Context, text string, rc models.RunContext) (*models.Payload, error)
}

// Capability returns the capability the function serves.
func (f Func) Capability() models.Capability { return f.Cap }

// Query calls the wrapped function.
func (f Func) Query(ctx context.Context, text string, rc models.RunContext) (*models.Payload, error) {
	return f.Fn(ctx, text, rc)
}

// Registry maps capabilities to agents.
type Registry struct {
	mu     sync.RWMutex
	agents map[models.Capability]Agent
}

// NewRegistry creates a registry holding the given agents.
func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[models.Capability]Agent)}
	for _, a := range agents {
		r.agents[a.Capability()] = a
	}
	return r
}

// Register adds or replaces the agent for its capability.
func (r *Registry) Register(a Agent) error {
	if a == nil || !a.Capability().Valid() {
		return fmt.Errorf("register agent: invalid capability")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Capability()] = a
	return nil
}

// Get returns the agent for a capability.
func (r *Registry) Get(c models.Capability) (Agent, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[c]
	return a, ok
}

// Capabilities returns the registered capabilities in sorted order.
func (r *Registry) Capabilities() []models.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps := make([]models.Capability, 0, len(r.agents))
	for c := range r.agents {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}
