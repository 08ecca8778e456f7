package service

import (
	"context"

	"ghostworks/api/internal/ledger"
	"ghostworks/api/internal/models"
	"ghostworks/api/internal/repository"
)

// The interfaces below are satisfied by the Postgres repositories and by
// the in-memory store used in tests.

type UserStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	UpdatePassword(ctx context.Context, id string, hash []byte) error
	MarkVerified(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
}

type TenantStore interface {
	CreateWithOwner(ctx context.Context, tenant models.Tenant, owner models.Membership) (models.Tenant, error)
	GetByID(ctx context.Context, id string) (models.Tenant, error)
	Update(ctx context.Context, id string, upd models.TenantUpdate) (models.Tenant, error)
	ListForUser(ctx context.Context, userID string) ([]models.TenantSummary, error)
	Delete(ctx context.Context, id string) error
}

type MembershipStore interface {
	Add(ctx context.Context, m models.Membership) (models.Membership, error)
	Get(ctx context.Context, tenantID, userID string) (models.Membership, error)
	ListByTenant(ctx context.Context, tenantID string) ([]models.Membership, error)
	ListByUser(ctx context.Context, userID string) ([]models.Membership, error)
	CountActiveOwners(ctx context.Context, tenantID string) (int, error)
	WithinTenant(ctx context.Context, tenantID string, fn func(tx repository.MembershipTx) error) error
}

type RotationLedger interface {
	Register(ctx context.Context, family, jti string) error
	Rotate(ctx context.Context, family, oldJTI, newJTI string) (ledger.RotateResult, error)
	Revoke(ctx context.Context, family string) error
	IsRevoked(ctx context.Context, family string) (bool, error)
}

var (
	_ UserStore       = (*repository.UserRepository)(nil)
	_ TenantStore     = (*repository.TenantRepository)(nil)
	_ MembershipStore = (*repository.MembershipRepository)(nil)
	_ RotationLedger  = (*ledger.Ledger)(nil)
)
