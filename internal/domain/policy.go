package domain

import (
	"context"
	"time"
)

const (
	MaxLTVBps              int64 = 10000
	MinScoreForEnforcement       = 50
)

// MarketPolicy bounds parameter changes for one market. LTVs are basis points.
type MarketPolicy struct {
	Market          string     `json:"market"`
	MaxLTV          int64      `json:"maxLtv"`
	MinLTV          int64      `json:"minLtv"`
	MaxCap          uint64     `json:"maxCap"`
	IsFrozen        bool       `json:"isFrozen"`
	LastUpdateAt    *time.Time `json:"lastUpdateAt,omitempty"`
	CooldownSeconds int64      `json:"cooldownSeconds"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// CooldownUntil reports when the next enforcement may commit.
func (p MarketPolicy) CooldownUntil() time.Time {
	if p.LastUpdateAt == nil {
		return time.Time{}
	}
	return p.LastUpdateAt.Add(time.Duration(p.CooldownSeconds) * time.Second)
}

type InitMarketRequest struct {
	Market          string `json:"market"`
	MaxLTV          int64  `json:"maxLtv"`
	MinLTV          int64  `json:"minLtv"`
	MaxCap          uint64 `json:"maxCap"`
	CooldownSeconds int64  `json:"cooldownSeconds"`
}

type EnforceRequest struct {
	Market       string `json:"market"`
	EvidenceHash string `json:"evidenceHash"`
	NewLTV       int64  `json:"newLtv"`
	NewCap       uint64 `json:"newCap"`
	Freeze       bool   `json:"freeze"`
}

// MarketPolicyRepository persists policies. Create fails with ErrMarketExists
// for a known market, Get and Update with ErrMarketNotFound for an unknown one.
//
// Update is a compare-and-set: it writes only while the stored LastUpdateAt
// still equals prevUpdateAt and returns ErrCooldownActive when another writer
// committed first.
type MarketPolicyRepository interface {
	Create(ctx context.Context, policy MarketPolicy) error
	Get(ctx context.Context, market string) (*MarketPolicy, error)
	Update(ctx context.Context, policy MarketPolicy, prevUpdateAt *time.Time) error
}

// SameUpdateTime compares two optional update times.
func SameUpdateTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// EnforcementPolicyInput is the document handed to the rego veto.
type EnforcementPolicyInput struct {
	Market   string         `json:"market"`
	Policy   MarketPolicy   `json:"policy"`
	Proposal EnforceRequest `json:"proposal"`
	Entry    LedgerEntry    `json:"entry"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEngine interface {
	Evaluate(ctx context.Context, input EnforcementPolicyInput) (PolicyResult, error)
}
