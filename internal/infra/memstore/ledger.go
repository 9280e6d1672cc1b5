package memstore

import (
	"context"
	"sync"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

// LedgerRepository keeps entries in a map guarded by a mutex.
type LedgerRepository struct {
	mu      sync.RWMutex
	entries map[string]domain.LedgerEntry
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{entries: make(map[string]domain.LedgerEntry)}
}

func (r *LedgerRepository) Insert(_ context.Context, entry domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.EvidenceHash]; ok {
		return domain.ErrDuplicateEvidence
	}
	r.entries[entry.EvidenceHash] = entry
	return nil
}

func (r *LedgerRepository) Get(_ context.Context, evidenceHash string) (*domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[evidenceHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

func (r *LedgerRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

var _ domain.LedgerRepository = (*LedgerRepository)(nil)
