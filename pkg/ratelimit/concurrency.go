package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"msghub/internal/observability/metrics"
)

const concurrencyKeyPrefix = "rate_limit:concurrent:"

// concurrencySafetyExpiry bounds how long an in-flight marker can survive a
// crashed holder that never calls Release.
const concurrencySafetyExpiry = 60 * time.Second

// concurrencyScript evicts markers whose safety deadline has passed, then
// admits the request if the remaining in-flight count is under the cap.
var concurrencyScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local expiry = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - expiry)
local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, expiry)
    return {1, limit - count - 1}
end
return {0, 0}
`)

// ConcurrencyLimiter caps how many requests for a resource may be in flight
// at once. Callers that are admitted must call Release with the same request
// id when done. Markers left behind by crashed holders are evicted after a
// safety expiry.
type ConcurrencyLimiter struct {
	client        *redis.Client
	maxConcurrent int
	safetyExpiry  time.Duration
	clock         Clock
	logger        *slog.Logger
}

// NewConcurrencyLimiter creates a limiter admitting at most maxConcurrent
// simultaneous holders per resource.
func NewConcurrencyLimiter(client *redis.Client, maxConcurrent int, logger *slog.Logger) *ConcurrencyLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &ConcurrencyLimiter{
		client:        client,
		maxConcurrent: maxConcurrent,
		safetyExpiry:  concurrencySafetyExpiry,
		clock:         &SystemClock{},
		logger:        logger,
	}
}

// WithClock overrides the time source. Intended for tests.
func (l *ConcurrencyLimiter) WithClock(clock Clock) *ConcurrencyLimiter {
	l.clock = clock
	return l
}

// Allow attempts to register requestID as an in-flight holder of resource.
// The requestID must be unique per request; reuse it in Release.
func (l *ConcurrencyLimiter) Allow(ctx context.Context, resource, requestID string) *Decision {
	key := concurrencyKeyPrefix + resource
	now := l.clock.Now().Unix()

	res, err := concurrencyScript.Run(ctx, l.client, []string{key},
		l.maxConcurrent,
		now,
		int64(l.safetyExpiry.Seconds()),
		requestID,
	).Int64Slice()
	if err != nil || len(res) != 2 {
		l.logger.Error("concurrency limiter store failure, admitting request",
			slog.String("key", key),
			slog.Any("error", err),
		)
		metrics.RecordRateLimitStoreError("concurrent")
		metrics.RecordRateLimitDecision("concurrent", true)
		return failOpenDecision(key, "concurrent", l.maxConcurrent)
	}

	resetAt := l.clock.Now().Add(l.safetyExpiry)
	if res[0] == 1 {
		metrics.RecordRateLimitDecision("concurrent", true)
		return allowedDecision(key, "concurrent", l.maxConcurrent, int(res[1]), resetAt)
	}
	metrics.RecordRateLimitDecision("concurrent", false)
	return deniedDecision(key, "concurrent", l.maxConcurrent, resetAt)
}

// Release removes requestID from the in-flight set for resource. Releasing a
// request that was never admitted, or was already evicted, is a no-op.
func (l *ConcurrencyLimiter) Release(ctx context.Context, resource, requestID string) {
	key := concurrencyKeyPrefix + resource
	if err := l.client.ZRem(ctx, key, requestID).Err(); err != nil {
		l.logger.Warn("concurrency limiter release failed",
			slog.String("key", key),
			slog.String("request_id", requestID),
			slog.Any("error", err),
		)
		metrics.RecordRateLimitStoreError("concurrent")
	}
}
