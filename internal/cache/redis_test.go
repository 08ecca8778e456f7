package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"ghostworks/api/internal/config"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.RedisConfig{
		Addr:           mr.Addr(),
		OpTimeout:      time.Second,
		DialTimeout:    time.Second,
		PoolSize:       4,
		MinIdleConns:   1,
		ConnectTimeout: time.Second,
	}
	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	opts := client.Options()
	require.Equal(t, 4, opts.PoolSize)
	require.Equal(t, 1, opts.MinIdleConns)
	require.Equal(t, time.Second, opts.DialTimeout)
	require.Equal(t, time.Second, opts.ReadTimeout)

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), config.RedisConfig{
		Addr:           addr,
		OpTimeout:      100 * time.Millisecond,
		DialTimeout:    100 * time.Millisecond,
		ConnectTimeout: 500 * time.Millisecond,
	})
	require.ErrorContains(t, err, "redis ping")
}
