package usecase

import (
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

type fakeAccess struct {
	mu    sync.Mutex
	roles map[domain.Role]map[string]bool
	err   error
}

func newFakeAccess() *fakeAccess {
	return &fakeAccess{roles: map[domain.Role]map[string]bool{}}
}

func (f *fakeAccess) with(role domain.Role, subjects ...string) *fakeAccess {
	for _, s := range subjects {
		_ = f.Grant(context.Background(), role, s)
	}
	return f
}

func (f *fakeAccess) HasRole(_ context.Context, role domain.Role, subject string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.roles[role][subject], nil
}

func (f *fakeAccess) Grant(_ context.Context, role domain.Role, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roles[role] == nil {
		f.roles[role] = map[string]bool{}
	}
	f.roles[role][subject] = true
	return nil
}

func (f *fakeAccess) Revoke(_ context.Context, role domain.Role, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.roles[role], subject)
	return nil
}

type fakeLedgerRepo struct {
	mu      sync.Mutex
	entries map[string]domain.LedgerEntry
	gets    int
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{entries: map[string]domain.LedgerEntry{}}
}

func (f *fakeLedgerRepo) Insert(_ context.Context, entry domain.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[entry.EvidenceHash]; ok {
		return domain.ErrDuplicateEvidence
	}
	f.entries[entry.EvidenceHash] = entry
	return nil
}

func (f *fakeLedgerRepo) Get(_ context.Context, hash string) (*domain.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	entry, ok := f.entries[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &entry, nil
}

func (f *fakeLedgerRepo) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

type fakePolicyRepo struct {
	mu       sync.Mutex
	policies map[string]domain.MarketPolicy
	updates  int
}

func newFakePolicyRepo() *fakePolicyRepo {
	return &fakePolicyRepo{policies: map[string]domain.MarketPolicy{}}
}

func (f *fakePolicyRepo) Create(_ context.Context, p domain.MarketPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.policies[p.Market]; ok {
		return domain.ErrMarketExists
	}
	f.policies[p.Market] = p
	return nil
}

func (f *fakePolicyRepo) Get(_ context.Context, market string) (*domain.MarketPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[market]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return &p, nil
}

func (f *fakePolicyRepo) Update(_ context.Context, p domain.MarketPolicy, prev *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.policies[p.Market]
	if !ok {
		return domain.ErrMarketNotFound
	}
	if !domain.SameUpdateTime(stored.LastUpdateAt, prev) {
		return domain.ErrCooldownActive
	}
	f.updates++
	f.policies[p.Market] = p
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, e domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeMetrics struct {
	mu           sync.Mutex
	anchors      []string
	enforcements []string
	evaluations  int
	publishes    []string
}

func (f *fakeMetrics) ObserveEvaluation(domain.Mode, domain.RiskLevel, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluations++
}

func (f *fakeMetrics) ObserveAnchor(result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anchors = append(f.anchors, result)
}

func (f *fakeMetrics) ObserveEnforcement(result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enforcements = append(f.enforcements, result)
}

func (f *fakeMetrics) ObservePublish(_ domain.EventType, result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes = append(f.publishes, result)
}

type fakeDirectory map[string]domain.AgentRecord

func (f fakeDirectory) Resolve(_ context.Context, agentID string) (domain.AgentRecord, error) {
	r, ok := f[agentID]
	if !ok {
		return domain.AgentRecord{}, domain.ErrAgentUnknown
	}
	return r, nil
}

type fakeCache struct {
	entries map[string]domain.LedgerEntry
	puts    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]domain.LedgerEntry{}}
}

func (f *fakeCache) Get(_ context.Context, hash string) (*domain.LedgerEntry, bool) {
	e, ok := f.entries[hash]
	if !ok {
		return nil, false
	}
	return &e, true
}

func (f *fakeCache) Put(_ context.Context, e domain.LedgerEntry) {
	f.puts++
	f.entries[e.EvidenceHash] = e
}

type fakeEngine struct {
	result domain.PolicyResult
	err    error
	inputs []domain.EnforcementPolicyInput
}

func (f *fakeEngine) Evaluate(_ context.Context, in domain.EnforcementPolicyInput) (domain.PolicyResult, error) {
	f.inputs = append(f.inputs, in)
	return f.result, f.err
}

type fakeSignals struct {
	set    domain.SignalSet
	drills []bool
}

func (f *fakeSignals) Acquire(_ context.Context, asset string, drill bool) domain.SignalSet {
	f.drills = append(f.drills, drill)
	set := f.set
	set.Asset = asset
	return set
}

type fakeKeys struct {
	key domain.SigningKey
	err error
}

func (f fakeKeys) Get(context.Context) (domain.SigningKey, error) {
	return f.key, f.err
}

type fakePayments struct {
	verification domain.PaymentVerification
	err          error
	refs         []string
}

func (f *fakePayments) Verify(_ context.Context, ref string) (domain.PaymentVerification, error) {
	f.refs = append(f.refs, ref)
	return f.verification, f.err
}

type fakeNarrator struct {
	text string
	err  error
}

func (f fakeNarrator) Narrate(context.Context, domain.SignalSet, domain.RiskScoreResult) (string, error) {
	return f.text, f.err
}

type fakeArchive struct {
	stored chan domain.SignedReceipt
}

func (f *fakeArchive) Store(_ context.Context, r domain.SignedReceipt) error {
	f.stored <- r
	return nil
}

func testSigningKey(seed byte) domain.SigningKey {
	s := make([]byte, ed25519.SeedSize)
	for i := range s {
		s[i] = seed
	}
	priv := ed25519.NewKeyFromSeed(s)
	return domain.SigningKey{
		Alg:        domain.SignatureAlgEd25519,
		PrivateKey: priv,
		PublicKey:  priv.Public().(ed25519.PublicKey),
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
