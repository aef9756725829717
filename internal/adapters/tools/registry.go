// Package tools contains the capability adapters for external tools and the
// registry the integration router dispatches through. Each adapter owns
// request formatting, response parsing and error translation for one tool;
// adding a tool is one adapter plus one capability descriptor, the router
// never changes.
package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

// Registry maps tool id to adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.ToolID]ports.ToolAdapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[domain.ToolID]ports.ToolAdapter)}
}

// Register adds an adapter under its descriptor id.
func (r *Registry) Register(adapter ports.ToolAdapter) error {
	caps := adapter.Capabilities()
	if caps.ID == "" {
		return fmt.Errorf("adapter capability descriptor has no id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[caps.ID]; exists {
		return fmt.Errorf("adapter already registered for tool %q", caps.ID)
	}
	r.adapters[caps.ID] = adapter
	return nil
}

// Get returns the adapter for the tool id.
func (r *Registry) Get(id domain.ToolID) (ports.ToolAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[id]
	return adapter, ok
}

// IDs returns all registered tool ids, sorted for stable error messages.
func (r *Registry) IDs() []domain.ToolID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]domain.ToolID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Capabilities returns every registered capability descriptor.
func (r *Registry) Capabilities() []domain.ToolCapabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps := make([]domain.ToolCapabilities, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		caps = append(caps, adapter.Capabilities())
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].ID < caps[j].ID })
	return caps
}
