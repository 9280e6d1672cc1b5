package usecase

import (
	"context"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

// AnchorVerifier checks a signed anchor request against a public key.
type AnchorVerifier interface {
	VerifyAnchorRequest(req domain.SignedAnchorRequest, pubKey []byte) error
}

// ReceiptSigner turns an assembled receipt into a signed one.
type ReceiptSigner interface {
	SignReceipt(r domain.UnsignedReceipt, key domain.SigningKey) (domain.SignedReceipt, error)
}

type KeyProvider interface {
	Get(ctx context.Context) (domain.SigningKey, error)
}

type SignalSource interface {
	Acquire(ctx context.Context, asset string, drill bool) domain.SignalSet
}

// LedgerReader is the read side PolicyGuard consumes.
type LedgerReader interface {
	Get(ctx context.Context, evidenceHash string) (*domain.LedgerEntry, error)
}

// EntryCache holds ledger entries known to exist. Entries are write-once,
// so a cached entry never goes stale.
type EntryCache interface {
	Get(ctx context.Context, evidenceHash string) (*domain.LedgerEntry, bool)
	Put(ctx context.Context, entry domain.LedgerEntry)
}

type Metrics interface {
	ObserveEvaluation(mode domain.Mode, level domain.RiskLevel, score int)
	ObserveAnchor(result string)
	ObserveEnforcement(result string)
	ObservePublish(eventType domain.EventType, result string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveEvaluation(domain.Mode, domain.RiskLevel, int) {}

func (nopMetrics) ObserveAnchor(string) {}

func (nopMetrics) ObserveEnforcement(string) {}

func (nopMetrics) ObservePublish(domain.EventType, string) {}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) error { return nil }
