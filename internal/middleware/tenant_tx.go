package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/database"
)

const tenantTxKey = "tenant_tx"

type scopedTx struct {
	tx   pgx.Tx
	done bool
}

// TenantTx runs the rest of the chain inside a transaction bound to the
// resolved scope. Row-level security sees the tenant, user and role of the
// request; repositories pick the transaction up from the request context.
// The transaction commits when the handler answered below 400 and rolls
// back otherwise.
func TenantTx(pool *pgxpool.Pool, dbRole string, timeout time.Duration, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, ok := ScopeFrom(c)
		if !ok {
			AbortWithError(c, apperr.ErrNoActiveWorkspace)
			return
		}
		if pool == nil {
			AbortWithError(c, apperr.Unavailable(errors.New("database not configured")))
			return
		}

		ctx := c.Request.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		tx, err := database.BeginTenantTx(ctx, pool, dbRole, database.Session{
			TenantID: scope.TenantID,
			UserID:   scope.UserID,
			Role:     scope.Role.String(),
		})
		if err != nil {
			AbortWithError(c, apperr.Unavailable(err))
			return
		}

		state := &scopedTx{tx: tx}
		c.Set(tenantTxKey, state)
		c.Request = c.Request.WithContext(database.WithTx(ctx, tx))

		defer func() {
			if state.done {
				return
			}
			state.done = true
			if c.Writer.Status() < http.StatusBadRequest && len(c.Errors) == 0 {
				if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
					log.Error().Err(err).Str("tenant_id", scope.TenantID).Msg("tenant tx commit failed")
				}
				return
			}
			if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
				log.Error().Err(err).Str("tenant_id", scope.TenantID).Msg("tenant tx rollback failed")
			}
		}()

		c.Next()
	}
}

// CommitTenantTx commits the request transaction before the response is
// written, so a failed commit can still be reported to the client.
func CommitTenantTx(c *gin.Context) error {
	v, ok := c.Get(tenantTxKey)
	if !ok {
		return database.ErrNoTenantTx
	}
	state := v.(*scopedTx)
	if state.done {
		return nil
	}
	state.done = true
	if err := state.tx.Commit(c.Request.Context()); err != nil {
		return apperr.Unavailable(err)
	}
	return nil
}
