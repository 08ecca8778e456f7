package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ghostworks/api/internal/ids"
	"ghostworks/api/internal/models"
)

type AuditRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewAuditRepository(pool *pgxpool.Pool, timeout time.Duration) *AuditRepository {
	return &AuditRepository{pool: pool, timeout: timeout}
}

// Insert is idempotent on the event id so redelivered stream messages do
// not duplicate rows.
func (r *AuditRepository) Insert(ctx context.Context, ev models.AuditEvent) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO audit_events (
			id, request_id, user_id, tenant_id, method, route, required_role, actual_role, outcome, reason, occurred_at
		) VALUES (
			$1, $2, NULLIF($3, '')::uuid, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		ev.ID,
		ev.RequestID,
		uuidOrEmpty(ev.UserID),
		uuidOrEmpty(ev.TenantID),
		ev.Method,
		ev.Route,
		ev.Required,
		ev.Actual,
		string(ev.Outcome),
		ev.Reason,
		ev.OccurredAt,
	)
	return err
}

func (r *AuditRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	cmd, err := r.pool.Exec(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// uuidOrEmpty drops ids that would fail the uuid cast. Denied requests can
// carry arbitrary workspace ids from the request path.
func uuidOrEmpty(id string) string {
	if ids.ValidUUID(id) {
		return id
	}
	return ""
}
