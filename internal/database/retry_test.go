package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestRetryOnce(t *testing.T) {
	ctx := context.Background()
	conflict := fmt.Errorf("update: %w", &pgconn.PgError{Code: "40001"})

	calls := 0
	err := RetryOnce(ctx, func(context.Context) error {
		calls++
		if calls == 1 {
			return conflict
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	calls = 0
	err = RetryOnce(ctx, func(context.Context) error {
		calls++
		return conflict
	})
	require.True(t, IsRetryable(err))
	require.Equal(t, 2, calls)

	calls = 0
	domain := errors.New("last owner")
	err = RetryOnce(ctx, func(context.Context) error {
		calls++
		return domain
	})
	require.ErrorIs(t, err, domain)
	require.Equal(t, 1, calls)
}

func TestUniqueViolation(t *testing.T) {
	name, ok := UniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "tenants_slug_key"})
	require.True(t, ok)
	require.Equal(t, "tenants_slug_key", name)

	_, ok = UniqueViolation(errors.New("other"))
	require.False(t, ok)
	require.True(t, IsRetryable(&pgconn.PgError{Code: "40P01"}))
}

func TestTxFromContext(t *testing.T) {
	_, ok := TxFromContext(context.Background())
	require.False(t, ok)
}
