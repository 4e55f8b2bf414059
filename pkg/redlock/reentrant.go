package redlock

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// reentrantAcquireScript takes the lock when free, or bumps the hold count
// and refreshes the TTL when the caller already owns it.
var reentrantAcquireScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'owner')
if owner == false then
    redis.call('HSET', KEYS[1], 'owner', ARGV[1], 'count', 1)
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
    return 1
end
if owner == ARGV[1] then
    redis.call('HINCRBY', KEYS[1], 'count', 1)
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
    return redis.call('HGET', KEYS[1], 'count')
end
return 0
`)

// reentrantReleaseScript decrements the hold count and deletes the lock when
// the outermost hold is released.
var reentrantReleaseScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'owner')
if owner ~= ARGV[1] then
    return -1
end
local count = redis.call('HINCRBY', KEYS[1], 'count', -1)
if count <= 0 then
    redis.call('DEL', KEYS[1])
    return 0
end
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return count
`)

// ReentrantMutex is a lock the same owner may acquire multiple times. Each
// Acquire must be matched by a Release; the lock is freed when the count
// returns to zero. Every successful Acquire refreshes the TTL.
type ReentrantMutex struct {
	client *redis.Client
	name   string
	owner  string
	ttl    time.Duration
	logger *slog.Logger
}

// NewReentrantMutex creates a ReentrantMutex for the named resource with a
// fresh owner identity.
func NewReentrantMutex(client *redis.Client, name string, ttl time.Duration, logger *slog.Logger) *ReentrantMutex {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ReentrantMutex{
		client: client,
		name:   lockKeyPrefix + name,
		owner:  uuid.NewString(),
		ttl:    ttl,
		logger: logger,
	}
}

// Acquire takes or re-enters the lock. It returns false when another owner
// holds it or the store is unreachable.
func (m *ReentrantMutex) Acquire(ctx context.Context) bool {
	n, err := reentrantAcquireScript.Run(ctx, m.client, []string{m.name}, m.owner, m.ttl.Milliseconds()).Int64()
	if err != nil {
		m.logger.Error("reentrant lock acquisition store failure",
			slog.String("lock", m.name),
			slog.Any("error", err),
		)
		return false
	}
	return n > 0
}

// Release undoes one Acquire. It returns ErrNotHeld when the caller does not
// own the lock.
func (m *ReentrantMutex) Release(ctx context.Context) error {
	n, err := reentrantReleaseScript.Run(ctx, m.client, []string{m.name}, m.owner, m.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n < 0 {
		return ErrNotHeld
	}
	return nil
}

// HoldCount reports how many times the owner currently holds the lock.
func (m *ReentrantMutex) HoldCount(ctx context.Context) (int, error) {
	owner, err := m.client.HGet(ctx, m.name, "owner").Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if owner != m.owner {
		return 0, nil
	}
	count, err := m.client.HGet(ctx, m.name, "count").Int()
	if err != nil {
		return 0, err
	}
	return count, nil
}
