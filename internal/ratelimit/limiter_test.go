package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, time.Second), mr
}

func TestAllowWithinWindow(t *testing.T) {
	l, _ := newTestLimiter(t)
	start := time.Unix(1_700_000_020, 0) // 20s before a window boundary
	l.now = func() time.Time { return start }
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := l.Allow(ctx, "auth", "ip:10.0.0.1", 3)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 3-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "auth", "ip:10.0.0.1", 3)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Equal(t, 20*time.Second, d.RetryAfter)

	// other subjects and buckets count separately
	d, err = l.Allow(ctx, "auth", "ip:10.0.0.2", 3)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = l.Allow(ctx, "api", "ip:10.0.0.1", 3)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	// next window starts fresh
	l.now = func() time.Time { return start.Add(21 * time.Second) }
	d, err = l.Allow(ctx, "auth", "ip:10.0.0.1", 3)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 2, d.Remaining)
}

func TestAllowSetsExpiry(t *testing.T) {
	l, mr := newTestLimiter(t)
	l.now = func() time.Time { return time.Unix(1_700_000_020, 0) }

	_, err := l.Allow(context.Background(), "api", "user:u1", 10)
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	require.Equal(t, 2*window, mr.TTL(keys[0]))
}

func TestAllowStoreDown(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	d, err := l.Allow(context.Background(), "api", "user:u1", 10)
	require.Error(t, err)
	require.True(t, d.Allowed)
}
