package domain

import (
	"context"
	"time"
)

type EventType string

const (
	EventReceiptAnchored EventType = "ReceiptAnchored"
	EventPolicyEnforced  EventType = "PolicyEnforced"
)

type ReceiptAnchored struct {
	EvidenceHash string    `json:"evidenceHash"`
	RunIDHash    string    `json:"runIdHash"`
	AgentID      string    `json:"agentId"`
	Score        int       `json:"score"`
	Level        int       `json:"level"`
	IsDrill      bool      `json:"isDrill"`
	AnchoredAt   time.Time `json:"anchoredAt"`
}

type PolicyEnforced struct {
	Market       string    `json:"market"`
	EvidenceHash string    `json:"evidenceHash"`
	NewLTV       int64     `json:"newLtv"`
	NewCap       uint64    `json:"newCap"`
	Freeze       bool      `json:"freeze"`
	Executor     string    `json:"executor"`
	EnforcedAt   time.Time `json:"enforcedAt"`
}

// Event is the envelope handed to publishers. Key orders events per partition.
type Event struct {
	Type       EventType `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
