package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

func newLock(t *testing.T, ttl time.Duration) (*Lock, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, ttl), mr
}

func TestLock_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	l, mr := newLock(t, time.Minute)

	release, err := l.Acquire(ctx, "INTENT-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("kart:capture:INTENT-1"))
	assert.Equal(t, time.Minute, mr.TTL("kart:capture:INTENT-1"))

	_, err = l.Acquire(ctx, "INTENT-1")
	require.ErrorIs(t, err, checkout.ErrCaptureInProgress)

	other, err := l.Acquire(ctx, "INTENT-2")
	require.NoError(t, err, "different intents do not contend")
	other(ctx)

	release(ctx)
	assert.False(t, mr.Exists("kart:capture:INTENT-1"))

	again, err := l.Acquire(ctx, "INTENT-1")
	require.NoError(t, err)
	again(ctx)
}

func TestLock_ExpiredHolderDoesNotReleaseNewOwner(t *testing.T) {
	ctx := context.Background()
	l, mr := newLock(t, time.Second)

	stale, err := l.Acquire(ctx, "INTENT-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists("kart:capture:INTENT-1"))

	fresh, err := l.Acquire(ctx, "INTENT-1")
	require.NoError(t, err)

	stale(ctx)
	assert.True(t, mr.Exists("kart:capture:INTENT-1"), "stale release must not delete the new owner's key")

	fresh(ctx)
	assert.False(t, mr.Exists("kart:capture:INTENT-1"))
}

func TestLock_BackendError(t *testing.T) {
	l, mr := newLock(t, time.Minute)
	mr.Close()

	_, err := l.Acquire(context.Background(), "INTENT-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, checkout.ErrCaptureInProgress)
	assert.Error(t, l.Ping(context.Background()))
}

func TestNew_DefaultTTL(t *testing.T) {
	l := New(nil, 0)
	assert.Equal(t, DefaultTTL, l.ttl)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Options().DB)
	require.NoError(t, c.Close())

	_, err = NewClient("://bad")
	require.Error(t, err)
}
