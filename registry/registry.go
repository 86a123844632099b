// Package registry holds every agent created during the process lifetime,
// addressable by identifier. Entries are never evicted so late clarification
// and state inspection keep working after a run finishes.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/sgrlab/deepresearch/agent"
)

// Sentinel errors for the resume/inspect surface.
var (
	// ErrUnknownAgent is returned for lookups of identifiers never created.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrAgentBusy mirrors agent.ErrBusy at the registry boundary.
	ErrAgentBusy = agent.ErrBusy
)

// Registry is a concurrency-safe identifier to agent map. Each agent owns
// its own execution lock; the registry only guards the map itself.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*agent.Agent
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{agents: map[string]*agent.Agent{}}
}

// Add registers an agent under its context identifier.
func (r *Registry) Add(a *agent.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Context().ID()] = a
}

// Get looks up an agent by identifier.
func (r *Registry) Get(id string) (*agent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, ErrUnknownAgent
	}
	return a, nil
}

// Exists reports whether the identifier is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[id]
	return ok
}

// List returns snapshots of every agent, sorted by identifier for stable
// output.
func (r *Registry) List() []agent.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agent.Snapshot, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.Context().Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
