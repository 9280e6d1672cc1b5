package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// maxSubjectKeyLen bounds the raw subject embedded in a storage key.
const maxSubjectKeyLen = 128

// RateLimitKey names one caller's budget on one route. Budgets on different
// routes are independent.
type RateLimitKey struct {
	Route   string
	Subject string
}

// String renders the storage key. Long subjects are hashed.
func (k RateLimitKey) String() string {
	if len(k.Subject) > maxSubjectKeyLen {
		sum := sha256.Sum256([]byte(k.Subject))
		return k.Route + ":subject_hash:" + hex.EncodeToString(sum[:])
	}
	return k.Route + ":subject:" + k.Subject
}

// Quota is the number of requests allowed per window. Requests <= 0 disables
// limiting.
type Quota struct {
	Requests int
	Window   time.Duration
}

type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the wait before a denied caller's window resets.
func (d RateLimitDecision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// RateLimiter admits evaluation requests. Denied requests do not consume
// budget.
type RateLimiter interface {
	Allow(ctx context.Context, key RateLimitKey, quota Quota) (RateLimitDecision, error)
}
