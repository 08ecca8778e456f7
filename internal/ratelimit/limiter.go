// Package ratelimit implements fixed one-minute windows counted in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const window = time.Minute

type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter struct {
	client    *redis.Client
	opTimeout time.Duration
	now       func() time.Time
}

func New(client *redis.Client, opTimeout time.Duration) *Limiter {
	return &Limiter{client: client, opTimeout: opTimeout, now: time.Now}
}

// Allow counts one hit for subject in bucket and reports whether it fits
// under limit for the current window.
func (l *Limiter) Allow(ctx context.Context, bucket, subject string, limit int) (Decision, error) {
	now := l.now()
	slot := now.Unix() / int64(window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%s:%d", bucket, subject, slot)

	if l.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opTimeout)
		defer cancel()
	}

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*window)
		return nil
	})
	if err != nil {
		return Decision{Allowed: true, Limit: limit}, fmt.Errorf("rate limit %s: %w", bucket, err)
	}

	count := int(incr.Val())
	windowEnd := time.Unix((slot+1)*int64(window.Seconds()), 0)
	d := Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: limit - count,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = windowEnd.Sub(now)
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
	}
	return d, nil
}
