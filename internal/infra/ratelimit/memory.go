package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

var errCapacityExceeded = errors.New("rate limiter capacity exceeded")

// Memory is a fixed-window limiter for single-instance deployments. Each
// caller and route pair gets its own window.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[domain.RateLimitKey]*window
	maxKeys int
}

type window struct {
	used int
	end  time.Time
}

type MemoryConfig struct {
	Now     func() time.Time
	MaxKeys int
}

func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	return &Memory{
		now:     cfg.Now,
		windows: make(map[domain.RateLimitKey]*window),
		maxKeys: cfg.MaxKeys,
	}
}

func (m *Memory) Allow(_ context.Context, key domain.RateLimitKey, quota domain.Quota) (domain.RateLimitDecision, error) {
	if quota.Requests <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: quota.Requests, Remaining: quota.Requests}, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, err := m.window(key, quota.Window, now)
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	decision := domain.RateLimitDecision{Limit: quota.Requests, ResetAt: w.end}
	if w.used < quota.Requests {
		w.used++
		decision.Allowed = true
	}
	decision.Remaining = quota.Requests - w.used
	return decision, nil
}

// window returns the live window for key, opening a new one when the previous
// expired. A new key is refused once maxKeys live windows exist.
func (m *Memory) window(key domain.RateLimitKey, d time.Duration, now time.Time) (*window, error) {
	if w, ok := m.windows[key]; ok && now.Before(w.end) {
		return w, nil
	}
	if _, ok := m.windows[key]; !ok && len(m.windows) >= m.maxKeys {
		m.evictExpired(now)
		if len(m.windows) >= m.maxKeys {
			return nil, errCapacityExceeded
		}
	}
	if d <= 0 {
		d = time.Second
	}
	w := &window{end: now.Add(d)}
	m.windows[key] = w
	return w, nil
}

func (m *Memory) evictExpired(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.end) {
			delete(m.windows, key)
		}
	}
}

var _ domain.RateLimiter = (*Memory)(nil)
