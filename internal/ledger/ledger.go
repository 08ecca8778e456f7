// Package ledger tracks refresh-token rotation in Redis. Each refresh token
// id is either active or rotated; presenting a rotated id again revokes the
// whole lineage.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RotateResult int

const (
	Rotated RotateResult = iota
	Reused
	Unknown
	Revoked
)

func (r RotateResult) String() string {
	switch r {
	case Rotated:
		return "rotated"
	case Reused:
		return "reused"
	case Unknown:
		return "unknown"
	case Revoked:
		return "revoked"
	}
	return "invalid"
}

const (
	stateActive  = "active"
	stateRotated = "rotated"
)

// KEYS: old token, lineage revocation flag, new token. ARGV: ttl in ms.
var rotateScript = redis.NewScript(`
local state = redis.call('GET', KEYS[1])
if not state then
	return 'unknown'
end
if state == 'rotated' then
	redis.call('SET', KEYS[2], '1', 'PX', ARGV[1])
	return 'reused'
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 'revoked'
end
redis.call('SET', KEYS[1], 'rotated', 'PX', ARGV[1])
redis.call('SET', KEYS[3], 'active', 'PX', ARGV[1])
return 'rotated'
`)

type Ledger struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
}

// New returns a ledger whose entries live for ttl, which should match the
// refresh token lifetime.
func New(client *redis.Client, ttl, opTimeout time.Duration) *Ledger {
	return &Ledger{client: client, ttl: ttl, opTimeout: opTimeout}
}

func tokenKey(jti string) string {
	return "auth:rt:" + jti
}

func revokedKey(family string) string {
	return "auth:fam:" + family + ":revoked"
}

func (l *Ledger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.opTimeout)
}

// Register marks jti as the active refresh token of a new lineage.
func (l *Ledger) Register(ctx context.Context, family, jti string) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if err := l.client.Set(ctx, tokenKey(jti), stateActive, l.ttl).Err(); err != nil {
		return fmt.Errorf("register refresh token: %w", err)
	}
	return nil
}

// Rotate atomically retires oldJTI and activates newJTI. Exactly one of any
// number of concurrent calls with the same oldJTI returns Rotated.
func (l *Ledger) Rotate(ctx context.Context, family, oldJTI, newJTI string) (RotateResult, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	res, err := rotateScript.Run(ctx, l.client,
		[]string{tokenKey(oldJTI), revokedKey(family), tokenKey(newJTI)},
		l.ttl.Milliseconds(),
	).Text()
	if err != nil {
		return Unknown, fmt.Errorf("rotate refresh token: %w", err)
	}

	switch res {
	case "rotated":
		return Rotated, nil
	case "reused":
		return Reused, nil
	case "revoked":
		return Revoked, nil
	case "unknown":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("rotate refresh token: unexpected result %q", res)
}

func (l *Ledger) Revoke(ctx context.Context, family string) error {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if err := l.client.Set(ctx, revokedKey(family), "1", l.ttl).Err(); err != nil {
		return fmt.Errorf("revoke lineage: %w", err)
	}
	return nil
}

func (l *Ledger) IsRevoked(ctx context.Context, family string) (bool, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	err := l.client.Get(ctx, revokedKey(family)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check lineage: %w", err)
	}
	return true, nil
}
