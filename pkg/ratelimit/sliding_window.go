package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"msghub/internal/observability/metrics"
)

const slidingKeyPrefix = "rate_limit:sliding:"

// DefaultSlidingWindow is the window applied when none is configured.
const DefaultSlidingWindow = 60 * time.Second

// slidingScript trims entries older than the window, counts what remains and
// records the new request when under the limit. Scores are fractional seconds
// so sub-second windows stay accurate.
var slidingScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, math.ceil(window) + 1)
    return {1, limit - count - 1}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local retry = window
if oldest[2] then
    retry = (tonumber(oldest[2]) + window) - now
end
return {0, math.ceil(retry * 1000)}
`)

// SlidingWindowLimiter admits at most maxRequests per window per key. Unlike
// QPSLimiter the window slides continuously, so a burst at the end of one
// second still counts against the start of the next.
type SlidingWindowLimiter struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
	clock       Clock
	logger      *slog.Logger
}

// NewSlidingWindowLimiter creates a limiter over the given window. A zero or
// negative window falls back to DefaultSlidingWindow.
func NewSlidingWindowLimiter(client *redis.Client, maxRequests int, window time.Duration, logger *slog.Logger) *SlidingWindowLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = DefaultSlidingWindow
	}
	return &SlidingWindowLimiter{
		client:      client,
		maxRequests: maxRequests,
		window:      window,
		clock:       &SystemClock{},
		logger:      logger,
	}
}

// WithClock overrides the time source. Intended for tests.
func (l *SlidingWindowLimiter) WithClock(clock Clock) *SlidingWindowLimiter {
	l.clock = clock
	return l
}

// Allow reports whether one more request for resource may proceed within the
// sliding window. An empty actor means the global counter for the resource.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, resource, actor string) *Decision {
	key := l.key(resource, actor)
	now := l.clock.Now()
	nowSec := float64(now.UnixNano()) / float64(time.Second)
	member := fmt.Sprintf("%d:%d", now.UnixNano(), fastRand())

	res, err := slidingScript.Run(ctx, l.client, []string{key},
		l.maxRequests,
		fmt.Sprintf("%.6f", nowSec),
		l.window.Seconds(),
		member,
	).Int64Slice()
	if err != nil || len(res) != 2 {
		l.logger.Error("sliding window limiter store failure, admitting request",
			slog.String("key", key),
			slog.Any("error", err),
		)
		metrics.RecordRateLimitStoreError("sliding")
		metrics.RecordRateLimitDecision("sliding", true)
		return failOpenDecision(key, "sliding", l.maxRequests)
	}

	if res[0] == 1 {
		metrics.RecordRateLimitDecision("sliding", true)
		return allowedDecision(key, "sliding", l.maxRequests, int(res[1]), now.Add(l.window))
	}
	metrics.RecordRateLimitDecision("sliding", false)
	retryAfter := time.Duration(res[1]) * time.Millisecond
	return deniedDecision(key, "sliding", l.maxRequests, now.Add(retryAfter))
}

func (l *SlidingWindowLimiter) key(resource, actor string) string {
	if actor == "" {
		return slidingKeyPrefix + resource + ":global"
	}
	return slidingKeyPrefix + resource + ":" + actor
}
