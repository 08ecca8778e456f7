package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/database"
	"ghostworks/api/internal/ids"
	"ghostworks/api/internal/models"
)

// MembershipTx is a per-tenant unit of work. Rows returned by Lock stay
// locked until the surrounding transaction ends.
type MembershipTx interface {
	// Lock returns the memberships of userIDs in the tenant, active or not,
	// keyed by user id. Missing users are absent from the map.
	Lock(ctx context.Context, userIDs ...string) (map[string]models.Membership, error)
	CountActiveOwners(ctx context.Context) (int, error)
	UpdateRole(ctx context.Context, userID string, role models.Role) (models.Membership, error)
	Deactivate(ctx context.Context, userID string) error
}

type MembershipRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewMembershipRepository(pool *pgxpool.Pool, timeout time.Duration) *MembershipRepository {
	return &MembershipRepository{pool: pool, timeout: timeout}
}

const membershipColumns = `m.id, m.user_id, m.tenant_id, m.role, m.is_active, m.created_at, m.updated_at`

func membershipDest(m *models.Membership, role *string) []any {
	return []any{&m.ID, &m.UserID, &m.TenantID, role, &m.IsActive, &m.CreatedAt, &m.UpdatedAt}
}

func scanMembership(row pgx.Row) (models.Membership, error) {
	var (
		m    models.Membership
		role string
	)
	if err := row.Scan(membershipDest(&m, &role)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Membership{}, apperr.ErrNotAMember
		}
		return models.Membership{}, err
	}
	parsed, err := models.ParseRole(role)
	if err != nil {
		return models.Membership{}, err
	}
	m.Role = parsed
	return m, nil
}

// Add inserts a membership or reactivates a removed one. An active row for
// the same (user, tenant) pair is left untouched and reported as
// AlreadyMember. A deadlock against a concurrent insert is retried once.
func (r *MembershipRepository) Add(ctx context.Context, m models.Membership) (models.Membership, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		INSERT INTO memberships AS m (id, user_id, tenant_id, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
		ON CONFLICT (user_id, tenant_id) DO UPDATE SET
			role = EXCLUDED.role,
			is_active = TRUE,
			updated_at = NOW()
		WHERE NOT m.is_active
		RETURNING ` + membershipColumns

	var created models.Membership
	err := database.RetryOnce(ctx, func(ctx context.Context) error {
		var err error
		created, err = scanMembership(r.pool.QueryRow(ctx, query, m.ID, m.UserID, m.TenantID, m.Role.String()))
		return err
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotAMember) {
			return models.Membership{}, apperr.ErrAlreadyMember
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && database.IsForeignKeyViolation(err) {
			if strings.Contains(pgErr.ConstraintName, "tenant") {
				return models.Membership{}, apperr.ErrTenantNotFound
			}
			return models.Membership{}, apperr.ErrUserNotFound
		}
		return models.Membership{}, fmt.Errorf("insert membership: %w", err)
	}
	return created, nil
}

func (r *MembershipRepository) Get(ctx context.Context, tenantID, userID string) (models.Membership, error) {
	if !ids.ValidUUID(tenantID) || !ids.ValidUUID(userID) {
		return models.Membership{}, apperr.ErrNotAMember
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT ` + membershipColumns + `
		FROM memberships m
		WHERE m.tenant_id = $1 AND m.user_id = $2 AND m.is_active
	`
	return scanMembership(r.pool.QueryRow(ctx, query, tenantID, userID))
}

func (r *MembershipRepository) ListByTenant(ctx context.Context, tenantID string) ([]models.Membership, error) {
	const query = `
		SELECT ` + membershipColumns + `, u.email
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.tenant_id = $1 AND m.is_active
		ORDER BY m.created_at, m.id
	`
	return r.list(ctx, query, tenantID)
}

func (r *MembershipRepository) ListByUser(ctx context.Context, userID string) ([]models.Membership, error) {
	const query = `
		SELECT ` + membershipColumns + `, u.email
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		JOIN tenants t ON t.id = m.tenant_id
		WHERE m.user_id = $1 AND m.is_active AND t.is_active
		ORDER BY m.created_at, m.id
	`
	return r.list(ctx, query, userID)
}

func (r *MembershipRepository) list(ctx context.Context, query string, arg string) ([]models.Membership, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Membership
	for rows.Next() {
		var (
			m    models.Membership
			role string
		)
		if err := rows.Scan(append(membershipDest(&m, &role), &m.Email)...); err != nil {
			return nil, err
		}
		if m.Role, err = models.ParseRole(role); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MembershipRepository) CountActiveOwners(ctx context.Context, tenantID string) (int, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	return countActiveOwners(ctx, r.pool, tenantID)
}

// WithinTenant runs fn in one SERIALIZABLE transaction, retried once on a
// serialization failure or deadlock. A conflict that survives the retry is
// reported as Unavailable.
func (r *MembershipRepository) WithinTenant(ctx context.Context, tenantID string, fn func(tx MembershipTx) error) error {
	if !ids.ValidUUID(tenantID) {
		return apperr.ErrNotAMember
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	err := database.InSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&membershipTx{tx: tx, tenantID: tenantID})
	})
	if database.IsRetryable(err) {
		return apperr.Unavailable(err)
	}
	return err
}

type membershipTx struct {
	tx       pgx.Tx
	tenantID string
}

func (t *membershipTx) Lock(ctx context.Context, userIDs ...string) (map[string]models.Membership, error) {
	// user_id order keeps lock acquisition consistent across transactions
	const query = `
		SELECT ` + membershipColumns + `
		FROM memberships m
		WHERE m.tenant_id = $1 AND m.user_id = ANY($2::uuid[])
		ORDER BY m.user_id
		FOR UPDATE
	`
	valid := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if ids.ValidUUID(id) {
			valid = append(valid, id)
		}
	}

	rows, err := t.tx.Query(ctx, query, t.tenantID, valid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locked := make(map[string]models.Membership, len(userIDs))
	for rows.Next() {
		var (
			m    models.Membership
			role string
		)
		if err := rows.Scan(membershipDest(&m, &role)...); err != nil {
			return nil, err
		}
		if m.Role, err = models.ParseRole(role); err != nil {
			return nil, err
		}
		locked[m.UserID] = m
	}
	return locked, rows.Err()
}

func (t *membershipTx) CountActiveOwners(ctx context.Context) (int, error) {
	return countActiveOwners(ctx, t.tx, t.tenantID)
}

func (t *membershipTx) UpdateRole(ctx context.Context, userID string, role models.Role) (models.Membership, error) {
	const query = `
		UPDATE memberships AS m SET role = $3, updated_at = NOW()
		WHERE m.tenant_id = $1 AND m.user_id = $2 AND m.is_active
		RETURNING ` + membershipColumns
	return scanMembership(t.tx.QueryRow(ctx, query, t.tenantID, userID, role.String()))
}

func (t *membershipTx) Deactivate(ctx context.Context, userID string) error {
	const query = `
		UPDATE memberships SET is_active = FALSE, updated_at = NOW()
		WHERE tenant_id = $1 AND user_id = $2 AND is_active
	`
	cmd, err := t.tx.Exec(ctx, query, t.tenantID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.ErrNotAMember
	}
	return nil
}

func countActiveOwners(ctx context.Context, q database.Querier, tenantID string) (int, error) {
	const query = `
		SELECT COUNT(*) FROM memberships
		WHERE tenant_id = $1 AND role = 'owner' AND is_active
	`
	var count int64
	if err := q.QueryRow(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, err
	}
	return int(count), nil
}
