package domain

import "context"

type PaymentVerification struct {
	Valid  bool     `json:"valid"`
	Reason string   `json:"reason,omitempty"`
	Amount *float64 `json:"amount,omitempty"`
}

// PaymentGate answers whether a payment reference entitles the caller to a drill.
type PaymentGate interface {
	Verify(ctx context.Context, paymentRef string) (PaymentVerification, error)
}

type AdvisoryNarrator interface {
	Narrate(ctx context.Context, signals SignalSet, result RiskScoreResult) (string, error)
}

type AgentRecord struct {
	AgentID      string `json:"agentId" yaml:"agent_id"`
	PublicKeyHex string `json:"publicKeyHex" yaml:"public_key_hex"`
	RegistryRef  string `json:"registryRef,omitempty" yaml:"registry_ref"`
}

type AgentDirectory interface {
	Resolve(ctx context.Context, agentID string) (AgentRecord, error)
}

// ReceiptArchive keeps a copy of every issued receipt for offline analysis.
type ReceiptArchive interface {
	Store(ctx context.Context, receipt SignedReceipt) error
}
