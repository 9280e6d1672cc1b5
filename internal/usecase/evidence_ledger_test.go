package usecase

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	"github.com/cosu123/reality-firewall-v3/internal/infra/crypto"
)

var anchorTime = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func hashOf(s string) string {
	return crypto.Hash([]byte(s))
}

func anchorRequest(evidence string) domain.AnchorRequest {
	return domain.AnchorRequest{
		EvidenceHash: hashOf(evidence),
		RunIDHash:    crypto.RunIDHash("run-" + evidence),
		AgentID:      "agent-1",
		Score:        64,
		Level:        int(domain.LevelHigh),
	}
}

type ledgerFixture struct {
	ledger    *EvidenceLedger
	repo      *fakeLedgerRepo
	access    *fakeAccess
	publisher *fakePublisher
	metrics   *fakeMetrics
}

func newLedgerFixture() ledgerFixture {
	f := ledgerFixture{
		repo:      newFakeLedgerRepo(),
		access:    newFakeAccess().with(domain.RoleOwner, "owner").with(domain.RoleAgent, "agent-1"),
		publisher: &fakePublisher{},
		metrics:   &fakeMetrics{},
	}
	f.ledger = NewEvidenceLedger(EvidenceLedgerDeps{
		Repo:      f.repo,
		Access:    f.access,
		Publisher: f.publisher,
		Metrics:   f.metrics,
		Logger:    zerolog.Nop(),
		Now:       fixedClock(anchorTime),
	})
	return f
}

func TestEvidenceLedger_AnchorAndRead(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()
	req := anchorRequest("a")

	entry, err := f.ledger.Anchor(ctx, req, "agent-1")
	if err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if entry.EvidenceHash != req.EvidenceHash || !entry.AnchoredAt.Equal(anchorTime) {
		t.Fatalf("unexpected entry %+v", entry)
	}

	got, err := f.ledger.Get(ctx, req.EvidenceHash)
	if err != nil || got.Score != 64 {
		t.Fatalf("get: %+v %v", got, err)
	}
	if ok, _ := f.ledger.Exists(ctx, req.EvidenceHash); !ok {
		t.Fatal("expected exists")
	}
	if ok, _ := f.ledger.Verify(ctx, req.EvidenceHash, 50); !ok {
		t.Fatal("expected verify(50) true")
	}
	if ok, _ := f.ledger.Verify(ctx, req.EvidenceHash, 65); ok {
		t.Fatal("expected verify(65) false")
	}
	if ok, _ := f.ledger.Verify(ctx, hashOf("missing"), 0); ok {
		t.Fatal("unknown hash must not verify")
	}

	if f.publisher.count() != 1 || f.publisher.events[0].Type != domain.EventReceiptAnchored {
		t.Fatalf("expected one ReceiptAnchored event, got %+v", f.publisher.events)
	}
	payload := f.publisher.events[0].Payload.(domain.ReceiptAnchored)
	if payload.EvidenceHash != req.EvidenceHash || payload.Score != 64 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestEvidenceLedger_AnchorValidationOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *domain.AnchorRequest)
		caller string
		want   error
	}{
		{"score above range", func(r *domain.AnchorRequest) { r.Score = 101 }, "agent-1", domain.ErrInvalidScore},
		{"score negative", func(r *domain.AnchorRequest) { r.Score = -1 }, "agent-1", domain.ErrInvalidScore},
		{"score before level", func(r *domain.AnchorRequest) { r.Score = 101; r.Level = 9 }, "nobody", domain.ErrInvalidScore},
		{"level", func(r *domain.AnchorRequest) { r.Level = 5 }, "agent-1", domain.ErrInvalidLevel},
		{"level before agent", func(r *domain.AnchorRequest) { r.Level = -1; r.AgentID = "" }, "agent-1", domain.ErrInvalidLevel},
		{"empty agent", func(r *domain.AnchorRequest) { r.AgentID = "" }, "agent-1", domain.ErrZeroAgent},
		{"zero address agent", func(r *domain.AnchorRequest) { r.AgentID = "0x" + strings.Repeat("0", 40) }, "agent-1", domain.ErrZeroAgent},
		{"agent before caller", func(r *domain.AnchorRequest) { r.AgentID = "0x0" }, "nobody", domain.ErrZeroAgent},
		{"unauthorized caller", func(r *domain.AnchorRequest) {}, "nobody", domain.ErrUnauthorizedAgent},
		{"caller before hash", func(r *domain.AnchorRequest) { r.EvidenceHash = "bad" }, "nobody", domain.ErrUnauthorizedAgent},
		{"malformed hash", func(r *domain.AnchorRequest) { r.EvidenceHash = "0xABC" }, "agent-1", domain.ErrInvalidEvidenceHash},
		{"uppercase hash", func(r *domain.AnchorRequest) { r.EvidenceHash = strings.ToUpper(r.EvidenceHash) }, "agent-1", domain.ErrInvalidEvidenceHash},
		{"malformed run id hash", func(r *domain.AnchorRequest) { r.RunIDHash = "run-1" }, "agent-1", domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newLedgerFixture()
			req := anchorRequest("order")
			tt.mutate(&req)
			_, err := f.ledger.Anchor(context.Background(), req, tt.caller)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(f.repo.entries) != 0 {
				t.Fatal("rejected anchor must not write")
			}
			if f.publisher.count() != 0 {
				t.Fatal("rejected anchor must not publish")
			}
		})
	}
}

func TestEvidenceLedger_BoundaryValuesAccepted(t *testing.T) {
	f := newLedgerFixture()
	for i, tc := range []struct{ score, level int }{{0, 0}, {100, 4}} {
		req := anchorRequest(string(rune('x' + i)))
		req.Score, req.Level = tc.score, tc.level
		if _, err := f.ledger.Anchor(context.Background(), req, "agent-1"); err != nil {
			t.Fatalf("score %d level %d: %v", tc.score, tc.level, err)
		}
	}
}

func TestEvidenceLedger_DoubleAnchor(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()
	req := anchorRequest("dup")

	first, err := f.ledger.Anchor(ctx, req, "agent-1")
	if err != nil {
		t.Fatalf("first anchor: %v", err)
	}
	second := req
	second.Score = 99
	if _, err := f.ledger.Anchor(ctx, second, "agent-1"); !errors.Is(err, domain.ErrDuplicateEvidence) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	got, _ := f.ledger.Get(ctx, req.EvidenceHash)
	if *got != first {
		t.Fatalf("state changed after duplicate: %+v vs %+v", got, first)
	}
	if f.publisher.count() != 1 {
		t.Fatalf("expected a single event, got %d", f.publisher.count())
	}
	if f.metrics.anchors[1] != "duplicate_evidence" {
		t.Fatalf("expected duplicate metric, got %v", f.metrics.anchors)
	}
}

func TestEvidenceLedger_ConcurrentSameHashOneWins(t *testing.T) {
	f := newLedgerFixture()
	req := anchorRequest("race")

	const n = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Anchor(context.Background(), req, "agent-1")
			if err != nil && !errors.Is(err, domain.ErrDuplicateEvidence) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestEvidenceLedger_PublishFailureKeepsAnchor(t *testing.T) {
	f := newLedgerFixture()
	f.publisher.err = errors.New("broker down")
	req := anchorRequest("pub")
	if _, err := f.ledger.Anchor(context.Background(), req, "agent-1"); err != nil {
		t.Fatalf("anchor must succeed despite publish failure: %v", err)
	}
	if ok, _ := f.ledger.Exists(context.Background(), req.EvidenceHash); !ok {
		t.Fatal("anchor must be committed")
	}
	if f.metrics.publishes[0] != "error" {
		t.Fatalf("expected publish error metric, got %v", f.metrics.publishes)
	}
}

func TestEvidenceLedger_GetErrors(t *testing.T) {
	f := newLedgerFixture()
	if _, err := f.ledger.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrInvalidEvidenceHash) {
		t.Fatalf("expected invalid hash, got %v", err)
	}
	if _, err := f.ledger.Get(context.Background(), hashOf("missing")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEvidenceLedger_AgentManagement(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()

	if err := f.ledger.AuthorizeAgent(ctx, "agent-2", "agent-1"); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := f.ledger.AuthorizeAgent(ctx, "0x000", "owner"); !errors.Is(err, domain.ErrZeroAgent) {
		t.Fatalf("expected zero agent, got %v", err)
	}
	if err := f.ledger.AuthorizeAgent(ctx, "agent-2", "owner"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if ok, _ := f.ledger.IsAuthorized(ctx, "agent-2"); !ok {
		t.Fatal("expected agent-2 authorized")
	}
	if _, err := f.ledger.Anchor(ctx, anchorRequest("by-2"), "agent-2"); err != nil {
		t.Fatalf("anchor by new agent: %v", err)
	}
	if err := f.ledger.RevokeAgent(ctx, "agent-2", "owner"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := f.ledger.Anchor(ctx, anchorRequest("by-2-again"), "agent-2"); !errors.Is(err, domain.ErrUnauthorizedAgent) {
		t.Fatalf("expected unauthorized after revoke, got %v", err)
	}
}

func TestEvidenceLedger_AnchorSigned(t *testing.T) {
	svc := crypto.NewService()
	key := testSigningKey(7)
	other := testSigningKey(9)

	newSignedFixture := func() ledgerFixture {
		f := newLedgerFixture()
		f.ledger.directory = fakeDirectory{
			"agent-1": {AgentID: "agent-1", PublicKeyHex: hex.EncodeToString(key.PublicKey)},
			"agent-3": {AgentID: "agent-3", PublicKeyHex: hex.EncodeToString(other.PublicKey)},
		}
		f.ledger.verifier = svc
		return f
	}

	t.Run("valid signature anchors", func(t *testing.T) {
		f := newSignedFixture()
		signed, err := svc.SignAnchorRequest(anchorRequest("signed"), key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		entry, err := f.ledger.AnchorSigned(context.Background(), signed)
		if err != nil {
			t.Fatalf("anchor signed: %v", err)
		}
		if entry.AgentID != "agent-1" {
			t.Fatalf("unexpected entry %+v", entry)
		}
	})

	t.Run("tampered score", func(t *testing.T) {
		f := newSignedFixture()
		signed, _ := svc.SignAnchorRequest(anchorRequest("tamper"), key)
		signed.Score = 99
		if _, err := f.ledger.AnchorSigned(context.Background(), signed); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Fatalf("expected invalid signature, got %v", err)
		}
	})

	t.Run("signer is not the claimed agent", func(t *testing.T) {
		f := newSignedFixture()
		signed, _ := svc.SignAnchorRequest(anchorRequest("impostor"), other)
		if _, err := f.ledger.AnchorSigned(context.Background(), signed); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Fatalf("expected invalid signature, got %v", err)
		}
	})

	t.Run("registered but unauthorized agent", func(t *testing.T) {
		f := newSignedFixture()
		req := anchorRequest("agent-3")
		req.AgentID = "agent-3"
		signed, _ := svc.SignAnchorRequest(req, other)
		if _, err := f.ledger.AnchorSigned(context.Background(), signed); !errors.Is(err, domain.ErrUnauthorizedAgent) {
			t.Fatalf("expected unauthorized agent, got %v", err)
		}
	})

	t.Run("unknown agent", func(t *testing.T) {
		f := newSignedFixture()
		req := anchorRequest("ghost")
		req.AgentID = "ghost"
		signed, _ := svc.SignAnchorRequest(req, key)
		if _, err := f.ledger.AnchorSigned(context.Background(), signed); !errors.Is(err, domain.ErrAgentUnknown) {
			t.Fatalf("expected unknown agent, got %v", err)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		f := newLedgerFixture()
		signed, _ := svc.SignAnchorRequest(anchorRequest("nocfg"), key)
		if _, err := f.ledger.AnchorSigned(context.Background(), signed); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Fatalf("expected invalid signature, got %v", err)
		}
	})
}

func TestIsZeroAgent(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"", true},
		{"  ", true},
		{"0x", true},
		{"0x0000", true},
		{"0X00", true},
		{"0x01", false},
		{"agent-1", false},
		{"0", false},
	}
	for _, tt := range tests {
		if got := IsZeroAgent(tt.id); got != tt.want {
			t.Fatalf("IsZeroAgent(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
