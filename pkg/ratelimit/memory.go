package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter is an in-process per-key token bucket, used where a shared
// store would be overkill, for example HTTP middleware throttling by client
// IP. Idle keys are evicted in the background.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*memoryEntry
	rps      rate.Limit
	burst    int
	ttl      time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter creates an in-process limiter admitting rps requests per
// second with the given burst per key. Entries idle longer than ttl are
// evicted.
func NewMemoryLimiter(rps float64, burst int, ttl time.Duration) *MemoryLimiter {
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	l := &MemoryLimiter{
		limiters: make(map[string]*memoryEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether one more request for key may proceed.
func (l *MemoryLimiter) Allow(key string) *Decision {
	l.mu.Lock()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &memoryEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	if entry.limiter.Allow() {
		return allowedDecision(key, "memory", l.burst, int(entry.limiter.Tokens()), time.Now())
	}
	return deniedDecision(key, "memory", l.burst, time.Now().Add(time.Second))
}

// Stop terminates the background eviction loop.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

func (l *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-l.ttl)
			l.mu.Lock()
			for key, entry := range l.limiters {
				if entry.lastSeen.Before(cutoff) {
					delete(l.limiters, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
