package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

type PolicyGuardDeps struct {
	Repo      domain.MarketPolicyRepository
	Ledger    LedgerReader
	Cache     EntryCache
	Access    domain.AccessControl
	Engine    domain.PolicyEngine
	Publisher domain.EventPublisher
	Metrics   Metrics
	Logger    zerolog.Logger
	Now       func() time.Time
}

// PolicyGuard lets executors change market parameters only with a
// sufficiently scored receipt and only inside configured bounds.
type PolicyGuard struct {
	repo      domain.MarketPolicyRepository
	ledger    LedgerReader
	cache     EntryCache
	access    domain.AccessControl
	engine    domain.PolicyEngine
	publisher domain.EventPublisher
	metrics   Metrics
	logger    zerolog.Logger
	now       func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewPolicyGuard(deps PolicyGuardDeps) *PolicyGuard {
	g := &PolicyGuard{
		repo:      deps.Repo,
		ledger:    deps.Ledger,
		cache:     deps.Cache,
		access:    deps.Access,
		engine:    deps.Engine,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
		locks:     make(map[string]*sync.Mutex),
	}
	if g.publisher == nil {
		g.publisher = nopPublisher{}
	}
	if g.metrics == nil {
		g.metrics = nopMetrics{}
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

func (g *PolicyGuard) marketLock(market string) *sync.Mutex {
	g.locksMu.Lock()
	defer g.locksMu.Unlock()
	mu, ok := g.locks[market]
	if !ok {
		mu = &sync.Mutex{}
		g.locks[market] = mu
	}
	return mu
}

// InitMarket creates the bounds for a market. Admin only.
func (g *PolicyGuard) InitMarket(ctx context.Context, req domain.InitMarketRequest, callerID string) (domain.MarketPolicy, error) {
	if err := g.requireRole(ctx, domain.RoleAdmin, callerID, domain.ErrNotAdmin); err != nil {
		return domain.MarketPolicy{}, err
	}
	if err := validateInitRequest(req); err != nil {
		return domain.MarketPolicy{}, err
	}

	mu := g.marketLock(req.Market)
	mu.Lock()
	defer mu.Unlock()

	policy := domain.MarketPolicy{
		Market:          req.Market,
		MaxLTV:          req.MaxLTV,
		MinLTV:          req.MinLTV,
		MaxCap:          req.MaxCap,
		CooldownSeconds: req.CooldownSeconds,
		CreatedAt:       g.now().UTC().Truncate(time.Millisecond),
	}
	if err := g.repo.Create(ctx, policy); err != nil {
		return domain.MarketPolicy{}, err
	}
	g.logger.Info().
		Str("market", policy.Market).
		Int64("max_ltv", policy.MaxLTV).
		Uint64("max_cap", policy.MaxCap).
		Str("admin", callerID).
		Msg("market initialized")
	return policy, nil
}

func validateInitRequest(req domain.InitMarketRequest) error {
	switch {
	case req.Market == "":
		return fmt.Errorf("%w: market is required", domain.ErrInvalidMarketParams)
	case req.MaxLTV <= 0 || req.MaxLTV > domain.MaxLTVBps:
		return fmt.Errorf("%w: maxLtv must be in (0, %d]", domain.ErrInvalidMarketParams, domain.MaxLTVBps)
	case req.MinLTV < 0 || req.MinLTV > req.MaxLTV:
		return fmt.Errorf("%w: minLtv must be in [0, maxLtv]", domain.ErrInvalidMarketParams)
	case req.CooldownSeconds < 0:
		return fmt.Errorf("%w: cooldown must be non-negative", domain.ErrInvalidMarketParams)
	}
	return nil
}

func (g *PolicyGuard) Get(ctx context.Context, market string) (*domain.MarketPolicy, error) {
	return g.repo.Get(ctx, market)
}

// Enforce validates a proposal and, if every check passes, commits the
// freeze flag and update time. Nothing is written on any failure. The
// PolicyEnforced event goes out after the market lock is released.
func (g *PolicyGuard) Enforce(ctx context.Context, req domain.EnforceRequest, callerID string) (domain.MarketPolicy, error) {
	policy, err := g.enforce(ctx, req, callerID)
	g.metrics.ObserveEnforcement(ResultCode(err))
	if err != nil {
		g.logger.Info().
			Str("market", req.Market).
			Str("evidence_hash", req.EvidenceHash).
			Str("executor", callerID).
			Str("code", ResultCode(err)).
			Msg("enforcement rejected")
		return domain.MarketPolicy{}, err
	}
	g.notify(ctx, req, callerID, *policy.LastUpdateAt)
	return policy, nil
}

func (g *PolicyGuard) enforce(ctx context.Context, req domain.EnforceRequest, callerID string) (domain.MarketPolicy, error) {
	if err := g.requireRole(ctx, domain.RoleExecutor, callerID, domain.ErrUnauthorizedExecutor); err != nil {
		return domain.MarketPolicy{}, err
	}

	mu := g.marketLock(req.Market)
	mu.Lock()
	defer mu.Unlock()

	current, err := g.repo.Get(ctx, req.Market)
	if err != nil {
		return domain.MarketPolicy{}, err
	}
	policy := *current

	now := g.now().UTC().Truncate(time.Millisecond)
	if now.Before(policy.CooldownUntil()) {
		return domain.MarketPolicy{}, domain.ErrCooldownActive
	}

	entry, err := g.verifiedEntry(ctx, req.EvidenceHash)
	if err != nil {
		return domain.MarketPolicy{}, err
	}

	if req.NewLTV > policy.MaxLTV || req.NewLTV < policy.MinLTV {
		return domain.MarketPolicy{}, &domain.BlastRadiusError{Param: "LTV"}
	}
	if req.NewCap > policy.MaxCap {
		return domain.MarketPolicy{}, &domain.BlastRadiusError{Param: "CAP"}
	}

	if g.engine != nil {
		result, err := g.engine.Evaluate(ctx, domain.EnforcementPolicyInput{
			Market:   req.Market,
			Policy:   policy,
			Proposal: req,
			Entry:    entry,
		})
		if err != nil {
			return domain.MarketPolicy{}, fmt.Errorf("evaluate policy: %w", err)
		}
		if !result.Allow {
			codes := make([]string, 0, len(result.Deny))
			for _, d := range result.Deny {
				codes = append(codes, d.Code)
			}
			return domain.MarketPolicy{}, &domain.PolicyVetoError{Codes: codes}
		}
	}

	// The market lock only covers this process; the repository check catches a
	// replica that committed since the read above.
	policy.IsFrozen = req.Freeze
	policy.LastUpdateAt = &now
	if err := g.repo.Update(ctx, policy, current.LastUpdateAt); err != nil {
		return domain.MarketPolicy{}, err
	}
	return policy, nil
}

// verifiedEntry applies the fixed score threshold. Only positive lookups are
// cached; a miss today may be anchored tomorrow.
func (g *PolicyGuard) verifiedEntry(ctx context.Context, evidenceHash string) (domain.LedgerEntry, error) {
	if g.cache != nil {
		if entry, ok := g.cache.Get(ctx, evidenceHash); ok && entry.Score >= domain.MinScoreForEnforcement {
			return *entry, nil
		}
	}
	entry, err := g.ledger.Get(ctx, evidenceHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidEvidenceHash) {
			return domain.LedgerEntry{}, domain.ErrInvalidReceipt
		}
		return domain.LedgerEntry{}, err
	}
	if entry.Score < domain.MinScoreForEnforcement {
		return domain.LedgerEntry{}, domain.ErrInvalidReceipt
	}
	if g.cache != nil {
		g.cache.Put(ctx, *entry)
	}
	return *entry, nil
}

func (g *PolicyGuard) notify(ctx context.Context, req domain.EnforceRequest, executor string, at time.Time) {
	event := domain.Event{
		Type:       domain.EventPolicyEnforced,
		Key:        req.Market,
		OccurredAt: at,
		Payload: domain.PolicyEnforced{
			Market:       req.Market,
			EvidenceHash: req.EvidenceHash,
			NewLTV:       req.NewLTV,
			NewCap:       req.NewCap,
			Freeze:       req.Freeze,
			Executor:     executor,
			EnforcedAt:   at,
		},
	}
	err := g.publisher.Publish(ctx, event)
	g.metrics.ObservePublish(event.Type, ResultCode(err))
	if err != nil {
		g.logger.Warn().Err(err).Str("market", req.Market).Msg("publish PolicyEnforced failed")
	}
}

// GrantRole adds an admin or executor. Owner only.
func (g *PolicyGuard) GrantRole(ctx context.Context, role domain.Role, subject, callerID string) error {
	if err := g.checkRoleChange(ctx, role, subject, callerID); err != nil {
		return err
	}
	return g.access.Grant(ctx, role, subject)
}

func (g *PolicyGuard) RevokeRole(ctx context.Context, role domain.Role, subject, callerID string) error {
	if err := g.checkRoleChange(ctx, role, subject, callerID); err != nil {
		return err
	}
	return g.access.Revoke(ctx, role, subject)
}

func (g *PolicyGuard) checkRoleChange(ctx context.Context, role domain.Role, subject, callerID string) error {
	if err := g.requireRole(ctx, domain.RoleOwner, callerID, domain.ErrNotOwner); err != nil {
		return err
	}
	if role != domain.RoleAdmin && role != domain.RoleExecutor {
		return fmt.Errorf("%w: role %q is not managed by the guard", domain.ErrInvalidInput, role)
	}
	if subject == "" {
		return fmt.Errorf("%w: subject is required", domain.ErrInvalidInput)
	}
	return nil
}

func (g *PolicyGuard) requireRole(ctx context.Context, role domain.Role, callerID string, denied error) error {
	ok, err := g.access.HasRole(ctx, role, callerID)
	if err != nil {
		return err
	}
	if !ok {
		return denied
	}
	return nil
}
