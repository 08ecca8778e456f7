package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoTenantTx is returned by tenant-data repositories called outside a
// tenant-scoped transaction.
var ErrNoTenantTx = errors.New("no tenant-scoped transaction in context")

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Session values visible to row-level security policies.
type Session struct {
	TenantID string
	UserID   string
	Role     string
}

type txKey struct{}

func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok && tx != nil
}

// BeginTenantTx opens a transaction that runs as dbRole with the session
// settings applied. Both are transaction-local and vanish on commit or
// rollback, so pooled connections never carry a tenant between requests.
func BeginTenantTx(ctx context.Context, pool *pgxpool.Pool, dbRole string, s Session) (pgx.Tx, error) {
	if s.TenantID == "" {
		return nil, errors.New("tenant id required")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tenant tx: %w", err)
	}

	if err := applySession(ctx, tx, dbRole, s); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return tx, nil
}

func applySession(ctx context.Context, tx pgx.Tx, dbRole string, s Session) error {
	if dbRole != "" {
		if _, err := tx.Exec(ctx, "SET LOCAL ROLE "+pgx.Identifier{dbRole}.Sanitize()); err != nil {
			return fmt.Errorf("set tenant role: %w", err)
		}
	}

	const query = `
		SELECT
			set_config('app.current_tenant_id', $1, true),
			set_config('app.current_user_id', $2, true),
			set_config('app.current_role', $3, true)
	`
	if _, err := tx.Exec(ctx, query, s.TenantID, s.UserID, s.Role); err != nil {
		return fmt.Errorf("apply tenant settings: %w", err)
	}
	return nil
}
