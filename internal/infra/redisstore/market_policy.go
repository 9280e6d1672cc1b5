package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

const marketPrefix = "rf:market:"

// Each market is a hash: "policy" holds the JSON document and "updated" the
// last update in unix milliseconds, empty before the first enforcement.
var createMarketScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "policy", ARGV[1], "updated", ARGV[2])
return 1
`)

var updateMarketScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "updated")
if not current then
  return -1
end
if current ~= ARGV[1] then
  return 0
end
redis.call("HSET", KEYS[1], "policy", ARGV[2], "updated", ARGV[3])
return 1
`)

// MarketPolicyRepository keeps market policies in redis so cooldowns survive
// restarts and are shared by every replica.
type MarketPolicyRepository struct {
	client redis.UniversalClient
}

func NewMarketPolicyRepository(client redis.UniversalClient) *MarketPolicyRepository {
	return &MarketPolicyRepository{client: client}
}

func marketKey(market string) string {
	return marketPrefix + market
}

func updateStamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UTC().UnixMilli(), 10)
}

func (r *MarketPolicyRepository) Create(ctx context.Context, policy domain.MarketPolicy) error {
	if r == nil || r.client == nil {
		return errRedisUnavailable
	}
	payload, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("encode market policy: %w", err)
	}
	created, err := createMarketScript.Run(ctx, r.client,
		[]string{marketKey(policy.Market)}, payload, updateStamp(policy.LastUpdateAt)).Int()
	if err != nil {
		return err
	}
	if created == 0 {
		return domain.ErrMarketExists
	}
	return nil
}

func (r *MarketPolicyRepository) Get(ctx context.Context, market string) (*domain.MarketPolicy, error) {
	if r == nil || r.client == nil {
		return nil, errRedisUnavailable
	}
	raw, err := r.client.HGet(ctx, marketKey(market), "policy").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrMarketNotFound
	}
	if err != nil {
		return nil, err
	}
	var policy domain.MarketPolicy
	if err := json.Unmarshal(raw, &policy); err != nil {
		return nil, fmt.Errorf("decode market policy %s: %w", market, err)
	}
	return &policy, nil
}

func (r *MarketPolicyRepository) Update(ctx context.Context, policy domain.MarketPolicy, prevUpdateAt *time.Time) error {
	if r == nil || r.client == nil {
		return errRedisUnavailable
	}
	payload, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("encode market policy: %w", err)
	}
	res, err := updateMarketScript.Run(ctx, r.client,
		[]string{marketKey(policy.Market)},
		updateStamp(prevUpdateAt), payload, updateStamp(policy.LastUpdateAt)).Int()
	if err != nil {
		return err
	}
	switch res {
	case -1:
		return domain.ErrMarketNotFound
	case 0:
		return domain.ErrCooldownActive
	}
	return nil
}

var _ domain.MarketPolicyRepository = (*MarketPolicyRepository)(nil)
