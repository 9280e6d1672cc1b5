package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

const keyPrefix = "rf:ratelimit:"

// Redis shares clock-aligned windows across every service instance. The
// window number is part of the key, so a window never outlives its end even
// when the expiry is lost.
type Redis struct {
	client redis.UniversalClient
	now    func() time.Time
}

// admitScript consumes one unit unless the window is already spent.
// KEYS[1] window counter, ARGV[1] limit, ARGV[2] expiry in ms.
// Returns {admitted, used}.
var admitScript = redis.NewScript(`
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
if used >= tonumber(ARGV[1]) then
  return {0, used}
end
used = redis.call("INCR", KEYS[1])
if used == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, used}
`)

func NewRedis(client redis.UniversalClient, now func() time.Time) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{client: client, now: now}, nil
}

func (r *Redis) Allow(ctx context.Context, key domain.RateLimitKey, quota domain.Quota) (domain.RateLimitDecision, error) {
	if quota.Requests <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: quota.Requests, Remaining: quota.Requests}, nil
	}
	number, end := alignedWindow(r.now(), quota.Window)
	// one extra second of expiry covers clock skew between instances
	expiry := time.Until(end) + time.Second
	if expiry < time.Second {
		expiry = time.Second
	}

	redisKey := keyPrefix + key.String() + ":w" + strconv.FormatInt(number, 10)
	result, err := admitScript.Run(ctx, r.client, []string{redisKey}, quota.Requests, expiry.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	if len(result) != 2 {
		return domain.RateLimitDecision{}, errors.New("unexpected redis rate limit response")
	}
	remaining := quota.Requests - int(result[1])
	if remaining < 0 {
		remaining = 0
	}
	return domain.RateLimitDecision{
		Allowed:   result[0] == 1,
		Limit:     quota.Requests,
		Remaining: remaining,
		ResetAt:   end,
	}, nil
}

// alignedWindow numbers windows from the Unix epoch so every instance agrees
// on where a window starts and ends.
func alignedWindow(now time.Time, window time.Duration) (int64, time.Time) {
	if window <= 0 {
		window = time.Second
	}
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	number := now.UnixMilli() / ms
	return number, time.UnixMilli((number + 1) * ms).UTC()
}

var _ domain.RateLimiter = (*Redis)(nil)
