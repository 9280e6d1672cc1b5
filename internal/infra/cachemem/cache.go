package cachemem

import (
	"context"
	"sync"
	"time"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/usecase"
)

// Cache keeps ledger entries that were found by a previous lookup. Misses are
// never cached, so a freshly anchored receipt is visible on the next read.
type Cache struct {
	mu         sync.Mutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]cacheEntry
}

type cacheEntry struct {
	value     domain.LedgerEntry
	expiresAt time.Time
}

func New(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &Cache{
		now:        time.Now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]cacheEntry),
	}
}

func (c *Cache) Get(_ context.Context, evidenceHash string) (*domain.LedgerEntry, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[evidenceHash]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().After(entry.expiresAt) {
		delete(c.entries, evidenceHash)
		return nil, false
	}
	value := entry.value
	return &value, true
}

func (c *Cache) Put(_ context.Context, value domain.LedgerEntry) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[value.EvidenceHash]; !exists && len(c.entries) >= c.maxEntries {
		c.evict()
	}
	c.entries[value.EvidenceHash] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// evict drops expired entries, or an arbitrary one when nothing has expired.
func (c *Cache) evict() {
	now := c.now()
	for key, entry := range c.entries {
		if c.ttl > 0 && now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var _ usecase.EntryCache = (*Cache)(nil)
