package domain

import (
	"context"
	"time"
)

const AnchorRequestVersion = "anchor_request_v1"

// LedgerEntry is write-once. The ledger never updates or deletes it.
type LedgerEntry struct {
	EvidenceHash string    `json:"evidenceHash"`
	RunIDHash    string    `json:"runIdHash"`
	AgentID      string    `json:"agentId"`
	Score        int       `json:"score"`
	Level        int       `json:"level"`
	IsDrill      bool      `json:"isDrill"`
	AnchoredAt   time.Time `json:"anchoredAt"`
}

type AnchorRequest struct {
	EvidenceHash string `json:"evidenceHash"`
	RunIDHash    string `json:"runIdHash"`
	AgentID      string `json:"agentId"`
	Score        int    `json:"score"`
	Level        int    `json:"level"`
	IsDrill      bool   `json:"isDrill"`
}

// SignedAnchorRequest replaces the privileged caller with a signature by AgentID
// over the anchor request payload.
type SignedAnchorRequest struct {
	AnchorRequest
	Signature string `json:"signature"`
}

// LedgerRepository stores entries keyed by evidence hash. Insert must be an
// atomic insert-if-absent and return ErrDuplicateEvidence when the key exists.
type LedgerRepository interface {
	Insert(ctx context.Context, entry LedgerEntry) error
	Get(ctx context.Context, evidenceHash string) (*LedgerEntry, error)
}
