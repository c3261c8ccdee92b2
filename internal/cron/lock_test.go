package cron

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgredis "github.com/jasoncmcclain/mcpmp-api/pkg/redis"
)

func newRedis(t *testing.T) (*pkgredis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return pkgredis.NewFromClient(raw), srv
}

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	client, srv := newRedis(t)

	first, err := NewRedisLock(client, "mcpmp:lock:cron:test", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(client, "mcpmp:lock:cron:test", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// releasing a lock we never held must not free the owner's lock
	require.NoError(t, second.Release(ctx))
	assert.True(t, srv.Exists("mcpmp:lock:cron:test"))

	require.NoError(t, first.Release(ctx))
	assert.False(t, srv.Exists("mcpmp:lock:cron:test"))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockDoesNotReleaseAfterTakeover(t *testing.T) {
	ctx := context.Background()
	client, srv := newRedis(t)

	first, err := NewRedisLock(client, "lock", time.Second)
	require.NoError(t, err)
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	srv.FastForward(2 * time.Second)

	second, err := NewRedisLock(client, "lock", time.Minute)
	require.NoError(t, err)
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, first.Release(ctx))
	assert.True(t, srv.Exists("lock"), "expired owner released the new owner's lock")
}

func TestRedisLockExtendDetectsLoss(t *testing.T) {
	ctx := context.Background()
	client, srv := newRedis(t)

	lock, err := NewRedisLock(client, "lock", 30*time.Second)
	require.NoError(t, err)

	held, err := lock.Extend(ctx)
	require.NoError(t, err)
	assert.False(t, held, "extend before acquire")

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	srv.FastForward(20 * time.Second)
	held, err = lock.Extend(ctx)
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, 30*time.Second, srv.TTL("lock"))

	srv.FastForward(time.Minute)
	held, err = lock.Extend(ctx)
	require.NoError(t, err)
	assert.False(t, held)
	require.NoError(t, lock.Release(ctx))
}

func TestNewRedisLockValidates(t *testing.T) {
	client, _ := newRedis(t)
	_, err := NewRedisLock(nil, "k", 0)
	assert.Error(t, err)
	_, err = NewRedisLock(client, "", 0)
	assert.Error(t, err)

	lock, err := NewRedisLock(client, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, lock.ttl)
}

func TestLocalLock(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalLock()
	ok, _ := lock.Acquire(ctx)
	assert.True(t, ok)
	ok, _ = lock.Acquire(ctx)
	assert.False(t, ok)
	require.NoError(t, lock.Release(ctx))
	ok, _ = lock.Acquire(ctx)
	assert.True(t, ok)
}
