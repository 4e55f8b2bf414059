// Package ratelimit provides rate limiting over a shared Redis counter store.
//
// Three interchangeable strategies are implemented, all as single-round-trip
// Lua scripts so the check and the record happen atomically under concurrent
// callers:
//
//   - QPSLimiter: fixed one-second window per resource (optionally per actor)
//   - SlidingWindowLimiter: configurable window with wall-clock scores
//   - ConcurrencyLimiter: in-flight markers with an explicit Release
//
// All strategies fail open: if the store is unreachable the request is
// admitted, the failure is logged and counted. Availability is preferred over
// strictness on the admission path.
package ratelimit

import (
	"math/rand/v2"
	"time"
)

// fastRand returns a random member suffix so two requests that land in the
// same nanosecond still produce distinct sorted-set members.
func fastRand() uint64 { return rand.Uint64() }

// Clock provides an abstraction for time operations to enable testing.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time { return time.Now() }

// Decision represents the result of a rate limit check.
type Decision struct {
	// Key is the store key the decision was made against.
	Key string

	// Allowed indicates whether the request should be permitted.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests left in the current window.
	// Zero means the limit has been reached.
	Remaining int

	// ResetAt is when the current window expires.
	ResetAt time.Time

	// LimiterType identifies which strategy made this decision
	// ("qps", "sliding", "concurrent", "memory").
	LimiterType string

	// FailedOpen is true when the decision admitted the request because the
	// store was unreachable, not because the count was under the limit.
	FailedOpen bool
}

// RetryAfter returns how long the caller should wait before retrying a
// denied request.
func (d *Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

func allowedDecision(key, limiterType string, limit, remaining int, resetAt time.Time) *Decision {
	return &Decision{
		Key:         key,
		Allowed:     true,
		Limit:       limit,
		Remaining:   remaining,
		ResetAt:     resetAt,
		LimiterType: limiterType,
	}
}

func deniedDecision(key, limiterType string, limit int, resetAt time.Time) *Decision {
	return &Decision{
		Key:         key,
		Allowed:     false,
		Limit:       limit,
		Remaining:   0,
		ResetAt:     resetAt,
		LimiterType: limiterType,
	}
}

func failOpenDecision(key, limiterType string, limit int) *Decision {
	return &Decision{
		Key:         key,
		Allowed:     true,
		Limit:       limit,
		Remaining:   0,
		LimiterType: limiterType,
		FailedOpen:  true,
	}
}
