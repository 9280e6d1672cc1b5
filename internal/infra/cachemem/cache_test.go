package cachemem

import (
	"context"
	"testing"
	"time"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

func TestCache_PutGetExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := New(time.Minute, 10)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "0xabc"); ok {
		t.Fatal("expected miss on empty cache")
	}
	cache.Put(ctx, domain.LedgerEntry{EvidenceHash: "0xabc", Score: 70})
	got, ok := cache.Get(ctx, "0xabc")
	if !ok || got.Score != 70 {
		t.Fatalf("expected hit, got %+v %v", got, ok)
	}

	got.Score = 1
	again, _ := cache.Get(ctx, "0xabc")
	if again.Score != 70 {
		t.Fatal("cache returned a shared pointer")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get(ctx, "0xabc"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected expired entry removed, len=%d", cache.Len())
	}
}

func TestCache_Bounded(t *testing.T) {
	cache := New(time.Hour, 2)
	ctx := context.Background()
	for _, h := range []string{"0x1", "0x2", "0x3"} {
		cache.Put(ctx, domain.LedgerEntry{EvidenceHash: h})
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
	if _, ok := cache.Get(ctx, "0x3"); !ok {
		t.Fatal("most recent entry must be present")
	}
}

func TestCache_NilSafe(t *testing.T) {
	var cache *Cache
	cache.Put(context.Background(), domain.LedgerEntry{EvidenceHash: "0x1"})
	if _, ok := cache.Get(context.Background(), "0x1"); ok {
		t.Fatal("nil cache must miss")
	}
}
