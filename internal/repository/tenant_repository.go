package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/database"
	"ghostworks/api/internal/ids"
	"ghostworks/api/internal/models"
)

type TenantRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewTenantRepository(pool *pgxpool.Pool, timeout time.Duration) *TenantRepository {
	return &TenantRepository{pool: pool, timeout: timeout}
}

const tenantColumns = `t.id, t.slug, t.name, t.description, t.settings, t.plan, t.is_active, t.created_at, t.updated_at`

func tenantDest(t *models.Tenant, plan *string) []any {
	return []any{
		&t.ID,
		&t.Slug,
		&t.Name,
		&t.Description,
		&t.Settings,
		plan,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	}
}

func scanTenant(row pgx.Row) (models.Tenant, error) {
	var (
		tenant models.Tenant
		plan   string
	)
	if err := row.Scan(tenantDest(&tenant, &plan)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Tenant{}, apperr.ErrTenantNotFound
		}
		return models.Tenant{}, err
	}
	tenant.Plan = models.Plan(plan)
	return tenant, nil
}

// CreateWithOwner inserts the tenant and its first Owner membership in one
// transaction, retried once on a serialization failure or deadlock.
func (r *TenantRepository) CreateWithOwner(ctx context.Context, tenant models.Tenant, owner models.Membership) (models.Tenant, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	settings, err := json.Marshal(nonNilSettings(tenant.Settings))
	if err != nil {
		return models.Tenant{}, fmt.Errorf("encode settings: %w", err)
	}

	var created models.Tenant
	err = database.RetryOnce(ctx, func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			const insertTenant = `
				INSERT INTO tenants AS t (id, slug, name, description, settings, plan, is_active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5::jsonb, $6, TRUE, NOW(), NOW())
				RETURNING ` + tenantColumns

			var err error
			created, err = scanTenant(tx.QueryRow(ctx, insertTenant,
				tenant.ID,
				tenant.Slug,
				tenant.Name,
				tenant.Description,
				string(settings),
				string(tenant.Plan),
			))
			if err != nil {
				if _, ok := database.UniqueViolation(err); ok {
					return apperr.ErrSlugTaken
				}
				return fmt.Errorf("insert tenant: %w", err)
			}

			const insertOwner = `
				INSERT INTO memberships (id, user_id, tenant_id, role, is_active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
			`
			if _, err := tx.Exec(ctx, insertOwner, owner.ID, owner.UserID, created.ID, models.RoleOwner.String()); err != nil {
				if database.IsForeignKeyViolation(err) {
					return apperr.ErrUserNotFound
				}
				return fmt.Errorf("insert owner membership: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return models.Tenant{}, err
	}
	return created, nil
}

func (r *TenantRepository) GetByID(ctx context.Context, id string) (models.Tenant, error) {
	if !ids.ValidUUID(id) {
		return models.Tenant{}, apperr.ErrTenantNotFound
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `SELECT ` + tenantColumns + ` FROM tenants t WHERE t.id = $1 AND t.is_active`
	return scanTenant(r.pool.QueryRow(ctx, query, id))
}

func (r *TenantRepository) Update(ctx context.Context, id string, upd models.TenantUpdate) (models.Tenant, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var settings *string
	if upd.Settings != nil {
		b, err := json.Marshal(upd.Settings)
		if err != nil {
			return models.Tenant{}, fmt.Errorf("encode settings: %w", err)
		}
		s := string(b)
		settings = &s
	}
	var plan *string
	if upd.Plan != nil {
		p := string(*upd.Plan)
		plan = &p
	}

	const query = `
		UPDATE tenants AS t SET
			name = COALESCE($2, t.name),
			description = COALESCE($3, t.description),
			settings = t.settings || COALESCE($4::jsonb, '{}'::jsonb),
			plan = COALESCE($5, t.plan),
			updated_at = NOW()
		WHERE t.id = $1 AND t.is_active
		RETURNING ` + tenantColumns

	return scanTenant(r.pool.QueryRow(ctx, query, id, upd.Name, upd.Description, settings, plan))
}

func (r *TenantRepository) ListForUser(ctx context.Context, userID string) ([]models.TenantSummary, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT ` + tenantColumns + `, m.role,
			(SELECT COUNT(*) FROM memberships mc WHERE mc.tenant_id = t.id AND mc.is_active)
		FROM memberships m
		JOIN tenants t ON t.id = m.tenant_id
		WHERE m.user_id = $1 AND m.is_active AND t.is_active
		ORDER BY t.name, t.id
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.TenantSummary
	for rows.Next() {
		var (
			s     models.TenantSummary
			plan  string
			role  string
			count int64
		)
		dest := append(tenantDest(&s.Tenant, &plan), &role, &count)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		s.Plan = models.Plan(plan)
		if s.Role, err = models.ParseRole(role); err != nil {
			return nil, err
		}
		s.MemberCount = int(count)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Delete removes the tenant; memberships and artifacts cascade.
func (r *TenantRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	cmd, err := r.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperr.ErrTenantNotFound
	}
	return nil
}

// ListWithoutOwner returns active tenants that have no active Owner.
func (r *TenantRepository) ListWithoutOwner(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	const query = `
		SELECT t.id FROM tenants t
		WHERE t.is_active AND NOT EXISTS (
			SELECT 1 FROM memberships m
			WHERE m.tenant_id = t.id AND m.role = 'owner' AND m.is_active
		)
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func nonNilSettings(s map[string]any) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return s
}
