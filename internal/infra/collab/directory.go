package collab

import (
	"context"
	"fmt"
	"sync"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

// StaticDirectory resolves agents registered at startup.
type StaticDirectory struct {
	mu     sync.RWMutex
	agents map[string]domain.AgentRecord
}

func NewStaticDirectory(records ...domain.AgentRecord) *StaticDirectory {
	d := &StaticDirectory{agents: make(map[string]domain.AgentRecord, len(records))}
	for _, r := range records {
		d.Register(r)
	}
	return d
}

func (d *StaticDirectory) Register(r domain.AgentRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[r.AgentID] = r
}

func (d *StaticDirectory) Resolve(_ context.Context, agentID string) (domain.AgentRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.agents[agentID]
	if !ok {
		return domain.AgentRecord{}, fmt.Errorf("%w: %s", domain.ErrAgentUnknown, agentID)
	}
	return r, nil
}

var _ domain.AgentDirectory = (*StaticDirectory)(nil)
