// Package redlock implements a Redis-backed distributed mutex with an owner
// token, plus a reentrant variant for callers that re-enter a critical
// section on the same goroutine-scoped owner.
//
// Unlike the rate limiters, lock acquisition fails closed: if the store is
// unreachable the lock is reported as not acquired. A mutual exclusion
// guarantee that silently degrades is worse than an unavailable one.
package redlock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "lock:"

// ErrNotHeld is returned when Release or Refresh is called by a caller that
// does not currently own the lock.
var ErrNotHeld = errors.New("redlock: lock not held by this owner")

// releaseScript deletes the lock only when the stored token matches, so an
// expired lock reacquired by another owner is never released by the first.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only for the current owner.
var refreshScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// Mutex is a single-holder distributed lock. Each acquisition is stamped
// with a random token; only the holder of the token can release it.
type Mutex struct {
	client     *redis.Client
	name       string
	ttl        time.Duration
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger

	token string
}

// Option configures a Mutex.
type Option func(*Mutex)

// WithTTL sets how long an acquisition holds the lock before it expires on
// its own. Default 30s.
func WithTTL(ttl time.Duration) Option {
	return func(m *Mutex) { m.ttl = ttl }
}

// WithRetries sets how many extra acquisition attempts TryAcquire makes, and
// the delay between them. Defaults to no retries.
func WithRetries(retries int, delay time.Duration) Option {
	return func(m *Mutex) {
		m.retries = retries
		m.retryDelay = delay
	}
}

// NewMutex creates a Mutex for the named resource. The name is scoped under
// a shared "lock:" prefix in the store.
func NewMutex(client *redis.Client, name string, logger *slog.Logger, opts ...Option) *Mutex {
	m := &Mutex{
		client:     client,
		name:       lockKeyPrefix + name,
		ttl:        30 * time.Second,
		retryDelay: 100 * time.Millisecond,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TryAcquire attempts to take the lock, retrying per the configured policy.
// It returns false when the lock is held elsewhere or the store is
// unreachable.
func (m *Mutex) TryAcquire(ctx context.Context) bool {
	token := uuid.NewString()
	for attempt := 0; ; attempt++ {
		ok, err := m.client.SetNX(ctx, m.name, token, m.ttl).Result()
		if err != nil {
			m.logger.Error("lock acquisition store failure",
				slog.String("lock", m.name),
				slog.Any("error", err),
			)
			return false
		}
		if ok {
			m.token = token
			return true
		}
		if attempt >= m.retries {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(m.retryDelay):
		}
	}
}

// Release gives the lock up. It returns ErrNotHeld when the lock expired or
// belongs to another owner.
func (m *Mutex) Release(ctx context.Context) error {
	if m.token == "" {
		return ErrNotHeld
	}
	n, err := releaseScript.Run(ctx, m.client, []string{m.name}, m.token).Int64()
	m.token = ""
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Refresh extends the holder's TTL without releasing.
func (m *Mutex) Refresh(ctx context.Context) error {
	if m.token == "" {
		return ErrNotHeld
	}
	n, err := refreshScript.Run(ctx, m.client, []string{m.name}, m.token, m.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// WithLock runs fn while holding the named lock, releasing it afterwards.
// It returns false without running fn when the lock cannot be acquired.
func WithLock(ctx context.Context, client *redis.Client, name string, logger *slog.Logger, fn func(ctx context.Context) error, opts ...Option) (bool, error) {
	m := NewMutex(client, name, logger, opts...)
	if !m.TryAcquire(ctx) {
		return false, nil
	}
	defer func() {
		if err := m.Release(ctx); err != nil && !errors.Is(err, ErrNotHeld) {
			logger.Warn("lock release failed", slog.String("lock", m.name), slog.Any("error", err))
		}
	}()
	return true, fn(ctx)
}
