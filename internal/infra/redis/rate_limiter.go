package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"tcross-assistant/internal/domain/model"
	"tcross-assistant/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

const (
	keyPrefix     = "tcross:rl:"
	ledgerHorizon = 2 * time.Hour
)

// KEYS[1] ledger zset (score = ms timestamp), KEYS[2] block flag.
// ARGV: now_ms, per_minute, per_hour, member, horizon_ms.
// Returns 0 allowed, 1 blocked, 2 per minute, 3 per hour.
var luaAllow = redis.NewScript(`
local now = tonumber(ARGV[1])
local per_minute = tonumber(ARGV[2])
local per_hour = tonumber(ARGV[3])
local horizon = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - horizon)

if redis.call('EXISTS', KEYS[2]) == 1 then
	return 1
end
if redis.call('ZCOUNT', KEYS[1], '(' .. (now - 60000), '+inf') >= per_minute then
	return 2
end
if redis.call('ZCOUNT', KEYS[1], '(' .. (now - 3600000), '+inf') >= per_hour then
	redis.call('SET', KEYS[2], now)
	return 3
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], horizon)
return 0
`)

// RateLimiter is the shared-ledger variant of the sliding-window limiter:
// one script run per check, so replicas see the same counts.
type RateLimiter struct {
	client    *Client
	perMinute int
	perHour   int
	now       func() time.Time
}

func NewRateLimiter(client *Client, perMinute, perHour int) *RateLimiter {
	return &RateLimiter{client: client, perMinute: perMinute, perHour: perHour, now: time.Now}
}

func (r *RateLimiter) Allow(ctx context.Context, identity string) (model.RateDecision, error) {
	ledger, blocked := LedgerKey(identity), BlockKey(identity)
	code, err := luaAllow.Run(ctx, r.client.cli, []string{ledger, blocked},
		r.now().UnixMilli(), r.perMinute, r.perHour, uuid.NewString(), ledgerHorizon.Milliseconds(),
	).Int()
	if err != nil {
		return model.RateDecision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	switch code {
	case 0:
		return model.Allow(), nil
	case 1:
		return model.Deny(model.RateReasonBlocked), nil
	case 2:
		return model.Deny(model.RateReasonPerMinute), nil
	case 3:
		return model.Deny(model.RateReasonPerHour), nil
	default:
		return model.RateDecision{}, fmt.Errorf("redis rate limit: unexpected result %d", code)
	}
}

func (r *RateLimiter) Unblock(ctx context.Context, identity string) error {
	return r.client.Del(ctx, LedgerKey(identity), BlockKey(identity))
}

func LedgerKey(identity string) string { return keyPrefix + "ledger:" + identity }

func BlockKey(identity string) string { return keyPrefix + "blocked:" + identity }
