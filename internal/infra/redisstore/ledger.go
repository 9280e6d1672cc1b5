package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

const ledgerPrefix = "rf:ledger:"

var errRedisUnavailable = errors.New("redis unavailable")

// LedgerRepository stores each entry as a JSON string under its evidence hash.
// Keys are written with SETNX and no expiry.
type LedgerRepository struct {
	client redis.UniversalClient
}

func NewLedgerRepository(client redis.UniversalClient) *LedgerRepository {
	return &LedgerRepository{client: client}
}

func ledgerKey(evidenceHash string) string {
	return ledgerPrefix + evidenceHash
}

func (r *LedgerRepository) Insert(ctx context.Context, entry domain.LedgerEntry) error {
	if r == nil || r.client == nil {
		return errRedisUnavailable
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	ok, err := r.client.SetNX(ctx, ledgerKey(entry.EvidenceHash), payload, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrDuplicateEvidence
	}
	return nil
}

func (r *LedgerRepository) Get(ctx context.Context, evidenceHash string) (*domain.LedgerEntry, error) {
	if r == nil || r.client == nil {
		return nil, errRedisUnavailable
	}
	raw, err := r.client.Get(ctx, ledgerKey(evidenceHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var entry domain.LedgerEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode ledger entry %s: %w", evidenceHash, err)
	}
	return &entry, nil
}

var _ domain.LedgerRepository = (*LedgerRepository)(nil)
