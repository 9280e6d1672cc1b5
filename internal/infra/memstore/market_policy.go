package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

type MarketPolicyRepository struct {
	mu       sync.RWMutex
	policies map[string]domain.MarketPolicy
}

func NewMarketPolicyRepository() *MarketPolicyRepository {
	return &MarketPolicyRepository{policies: make(map[string]domain.MarketPolicy)}
}

func (r *MarketPolicyRepository) Create(_ context.Context, policy domain.MarketPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[policy.Market]; ok {
		return domain.ErrMarketExists
	}
	r.policies[policy.Market] = clonePolicy(policy)
	return nil
}

func (r *MarketPolicyRepository) Get(_ context.Context, market string) (*domain.MarketPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	policy, ok := r.policies[market]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	out := clonePolicy(policy)
	return &out, nil
}

func (r *MarketPolicyRepository) Update(_ context.Context, policy domain.MarketPolicy, prevUpdateAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.policies[policy.Market]
	if !ok {
		return domain.ErrMarketNotFound
	}
	if !domain.SameUpdateTime(stored.LastUpdateAt, prevUpdateAt) {
		return domain.ErrCooldownActive
	}
	r.policies[policy.Market] = clonePolicy(policy)
	return nil
}

func clonePolicy(p domain.MarketPolicy) domain.MarketPolicy {
	if p.LastUpdateAt != nil {
		t := *p.LastUpdateAt
		p.LastUpdateAt = &t
	}
	return p
}

var _ domain.MarketPolicyRepository = (*MarketPolicyRepository)(nil)
