package services

import (
	"context"
	"sync"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

// MemoryAgentDirectory is an in-process agent lookup. The portal manages
// agent lifecycles elsewhere; this keeps a synced snapshot the engine can
// resolve against.
type MemoryAgentDirectory struct {
	mu     sync.RWMutex
	agents map[string]domain.AgentProfile
}

func NewMemoryAgentDirectory(seed ...domain.AgentProfile) *MemoryAgentDirectory {
	d := &MemoryAgentDirectory{agents: make(map[string]domain.AgentProfile)}
	for _, a := range seed {
		d.agents[a.ID] = a
	}
	return d
}

var _ ports.AgentDirectory = (*MemoryAgentDirectory)(nil)

// Register adds or replaces an agent profile.
func (d *MemoryAgentDirectory) Register(profile domain.AgentProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[profile.ID] = profile
}

func (d *MemoryAgentDirectory) Resolve(_ context.Context, agentID string) (*domain.AgentProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	profile, ok := d.agents[agentID]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	return &profile, nil
}
