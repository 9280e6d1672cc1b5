package events

import (
	"context"
	"sync"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

// Memory keeps published events in order. It backs the enforcement history
// endpoint when no broker is configured.
type Memory struct {
	mu     sync.RWMutex
	events []domain.Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(_ context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns events of type t with key, oldest first. An empty key matches all.
func (m *Memory) Events(t domain.EventType, key string) []domain.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Event
	for _, e := range m.events {
		if e.Type != t {
			continue
		}
		if key != "" && e.Key != key {
			continue
		}
		out = append(out, e)
	}
	return out
}

var _ domain.EventPublisher = (*Memory)(nil)
