package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"msghub/internal/observability/metrics"
)

const qpsKeyPrefix = "rate_limit:qps:"

// qpsScript counts requests in the current one-second window and records the
// new request only when the count is under the limit. The key carries a short
// expiry so idle windows clean themselves up.
var qpsScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local member = ARGV[3]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - 1)
local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, 2)
    return {1, limit - count - 1}
end
return {0, 0}
`)

// QPSLimiter enforces a per-second request cap on a named resource. When an
// actor is supplied the cap applies per actor, otherwise a single global
// counter is shared by all callers of the resource.
type QPSLimiter struct {
	client *redis.Client
	maxQPS int
	clock  Clock
	logger *slog.Logger
}

// NewQPSLimiter creates a QPSLimiter admitting at most maxQPS requests per
// second per key.
func NewQPSLimiter(client *redis.Client, maxQPS int, logger *slog.Logger) *QPSLimiter {
	if maxQPS <= 0 {
		maxQPS = 1
	}
	return &QPSLimiter{
		client: client,
		maxQPS: maxQPS,
		clock:  &SystemClock{},
		logger: logger,
	}
}

// WithClock overrides the time source. Intended for tests.
func (l *QPSLimiter) WithClock(clock Clock) *QPSLimiter {
	l.clock = clock
	return l
}

// Allow reports whether one more request for resource may proceed in the
// current second. An empty actor means the global counter for the resource.
func (l *QPSLimiter) Allow(ctx context.Context, resource, actor string) *Decision {
	key := l.key(resource, actor)
	now := l.clock.Now()
	nowSec := now.Unix()
	member := fmt.Sprintf("%d:%d", now.UnixNano(), fastRand())

	res, err := qpsScript.Run(ctx, l.client, []string{key}, l.maxQPS, nowSec, member).Int64Slice()
	if err != nil || len(res) != 2 {
		l.logger.Error("qps limiter store failure, admitting request",
			slog.String("key", key),
			slog.Any("error", err),
		)
		metrics.RecordRateLimitStoreError("qps")
		metrics.RecordRateLimitDecision("qps", true)
		return failOpenDecision(key, "qps", l.maxQPS)
	}

	resetAt := time.Unix(nowSec+1, 0)
	if res[0] == 1 {
		metrics.RecordRateLimitDecision("qps", true)
		return allowedDecision(key, "qps", l.maxQPS, int(res[1]), resetAt)
	}
	metrics.RecordRateLimitDecision("qps", false)
	return deniedDecision(key, "qps", l.maxQPS, resetAt)
}

func (l *QPSLimiter) key(resource, actor string) string {
	if actor == "" {
		return qpsKeyPrefix + resource + ":global"
	}
	return qpsKeyPrefix + resource + ":" + actor
}
