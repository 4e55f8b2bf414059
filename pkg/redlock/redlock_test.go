package redlock

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestMutexMutualExclusion(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	first := NewMutex(client, "task:sweep", discardLogger())
	second := NewMutex(client, "task:sweep", discardLogger())

	require.True(t, first.TryAcquire(ctx))
	assert.False(t, second.TryAcquire(ctx))

	require.NoError(t, first.Release(ctx))
	assert.True(t, second.TryAcquire(ctx))
}

func TestMutexReleaseByNonOwnerFails(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	holder := NewMutex(client, "task:sweep", discardLogger(), WithTTL(time.Second))
	require.True(t, holder.TryAcquire(ctx))

	// The lock expires and another owner takes it. The original holder's
	// release must not remove the new owner's lock.
	mr.FastForward(2 * time.Second)
	usurper := NewMutex(client, "task:sweep", discardLogger())
	require.True(t, usurper.TryAcquire(ctx))

	assert.ErrorIs(t, holder.Release(ctx), ErrNotHeld)
	assert.NoError(t, usurper.Release(ctx))
}

func TestMutexReleaseWithoutAcquire(t *testing.T) {
	_, client := newTestClient(t)
	m := NewMutex(client, "task:sweep", discardLogger())
	assert.ErrorIs(t, m.Release(context.Background()), ErrNotHeld)
}

func TestMutexRefreshExtendsTTL(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	m := NewMutex(client, "task:sweep", discardLogger(), WithTTL(2*time.Second))
	require.True(t, m.TryAcquire(ctx))

	mr.FastForward(time.Second)
	require.NoError(t, m.Refresh(ctx))
	mr.FastForward(1500 * time.Millisecond)

	// Still held after the original deadline passed.
	other := NewMutex(client, "task:sweep", discardLogger())
	assert.False(t, other.TryAcquire(ctx))
}

func TestMutexFailsClosedWhenStoreDown(t *testing.T) {
	mr, client := newTestClient(t)
	mr.Close()

	m := NewMutex(client, "task:sweep", discardLogger())
	assert.False(t, m.TryAcquire(context.Background()))
}

func TestWithLockRunsFunctionUnderLock(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	ran := false
	acquired, err := WithLock(ctx, client, "task:sweep", discardLogger(), func(ctx context.Context) error {
		ran = true
		blocked := NewMutex(client, "task:sweep", discardLogger())
		assert.False(t, blocked.TryAcquire(ctx))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, ran)

	// Released after fn returned.
	after := NewMutex(client, "task:sweep", discardLogger())
	assert.True(t, after.TryAcquire(ctx))
}

func TestWithLockSkipsWhenHeldElsewhere(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	holder := NewMutex(client, "task:sweep", discardLogger())
	require.True(t, holder.TryAcquire(ctx))

	wantErr := errors.New("should not run")
	acquired, err := WithLock(ctx, client, "task:sweep", discardLogger(), func(ctx context.Context) error {
		return wantErr
	})
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestReentrantMutexNestedAcquire(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	m := NewReentrantMutex(client, "task:batch", 10*time.Second, discardLogger())
	require.True(t, m.Acquire(ctx))
	require.True(t, m.Acquire(ctx))

	count, err := m.HoldCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	other := NewReentrantMutex(client, "task:batch", 10*time.Second, discardLogger())
	assert.False(t, other.Acquire(ctx))

	// Inner release keeps the lock, outer release frees it.
	require.NoError(t, m.Release(ctx))
	assert.False(t, other.Acquire(ctx))
	require.NoError(t, m.Release(ctx))
	assert.True(t, other.Acquire(ctx))
}

func TestReentrantMutexReleaseByNonOwner(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	holder := NewReentrantMutex(client, "task:batch", 10*time.Second, discardLogger())
	require.True(t, holder.Acquire(ctx))

	other := NewReentrantMutex(client, "task:batch", 10*time.Second, discardLogger())
	assert.ErrorIs(t, other.Release(ctx), ErrNotHeld)
}
