package service

import (
	"context"

	"github.com/rs/zerolog"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/ids"
	"ghostworks/api/internal/models"
	"ghostworks/api/internal/repository"
)

type MembershipService struct {
	memberships MembershipStore
	tenants     TenantStore
	users       UserStore
	log         zerolog.Logger
}

func NewMembershipService(memberships MembershipStore, tenants TenantStore, users UserStore, log zerolog.Logger) *MembershipService {
	return &MembershipService{
		memberships: memberships,
		tenants:     tenants,
		users:       users,
		log:         log,
	}
}

// AddMember binds userID to the tenant. A previously removed membership is
// reactivated with the new role.
func (s *MembershipService) AddMember(ctx context.Context, tenantID, userID string, role models.Role) (models.Membership, error) {
	if !role.Valid() {
		return models.Membership{}, apperr.InvalidInput("unknown role")
	}
	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		return models.Membership{}, err
	}

	m, err := s.memberships.Add(ctx, models.Membership{
		ID:       ids.NewUUID().String(),
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		IsActive: true,
	})
	if err != nil {
		return models.Membership{}, err
	}

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("user_id", userID).
		Str("role", role.String()).
		Msg("member added")
	return m, nil
}

// Invite adds the registered user owning email. The acting member must be
// allowed to grant role.
func (s *MembershipService) Invite(ctx context.Context, tenantID, email string, role models.Role, acting models.Membership) (models.Membership, error) {
	if acting.TenantID != tenantID || !models.CanGrant(acting.Role, role) {
		return models.Membership{}, apperr.ErrInsufficientPrivilege
	}

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return models.Membership{}, err
	}
	if !user.IsActive {
		return models.Membership{}, apperr.ErrUserNotFound
	}
	return s.AddMember(ctx, tenantID, user.ID, role)
}

// ChangeRole re-reads the acting and target memberships under lock, checks
// the hierarchy and the owner floor, and writes the new role, all in one
// transaction.
func (s *MembershipService) ChangeRole(ctx context.Context, tenantID, userID string, newRole models.Role, acting models.Membership) (models.Membership, error) {
	if !newRole.Valid() {
		return models.Membership{}, apperr.InvalidInput("unknown role")
	}

	var updated models.Membership
	err := s.memberships.WithinTenant(ctx, tenantID, func(tx repository.MembershipTx) error {
		actor, target, err := lockPair(ctx, tx, acting.UserID, userID)
		if err != nil {
			return err
		}
		self := actor.UserID == target.UserID

		if err := models.CheckRoleChange(actor.Role, target.Role, newRole, self); err != nil {
			return err
		}
		if target.Role == newRole {
			updated = target
			return nil
		}

		if target.Role == models.RoleOwner {
			owners, err := tx.CountActiveOwners(ctx)
			if err != nil {
				return err
			}
			if err := models.CheckOwnerFloor(target.Role, false, newRole, owners, self); err != nil {
				return err
			}
		}

		updated, err = tx.UpdateRole(ctx, userID, newRole)
		return err
	})
	if err != nil {
		return models.Membership{}, err
	}

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("user_id", userID).
		Str("acting_user_id", acting.UserID).
		Str("role", newRole.String()).
		Msg("member role changed")
	return updated, nil
}

func (s *MembershipService) RemoveMember(ctx context.Context, tenantID, userID string, acting models.Membership) error {
	err := s.memberships.WithinTenant(ctx, tenantID, func(tx repository.MembershipTx) error {
		actor, target, err := lockPair(ctx, tx, acting.UserID, userID)
		if err != nil {
			return err
		}
		self := actor.UserID == target.UserID

		if err := models.CheckRemoval(actor.Role, target.Role, self); err != nil {
			return err
		}
		if target.Role == models.RoleOwner {
			owners, err := tx.CountActiveOwners(ctx)
			if err != nil {
				return err
			}
			if err := models.CheckOwnerFloor(target.Role, true, target.Role, owners, self); err != nil {
				return err
			}
		}
		return tx.Deactivate(ctx, userID)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("user_id", userID).
		Str("acting_user_id", acting.UserID).
		Msg("member removed")
	return nil
}

// lockPair locks both memberships and requires each to be active. A missing
// acting membership means the caller lost access since the request began.
func lockPair(ctx context.Context, tx repository.MembershipTx, actingUserID, targetUserID string) (models.Membership, models.Membership, error) {
	locked, err := tx.Lock(ctx, actingUserID, targetUserID)
	if err != nil {
		return models.Membership{}, models.Membership{}, err
	}
	actor, ok := locked[actingUserID]
	if !ok || !actor.IsActive {
		return models.Membership{}, models.Membership{}, apperr.ErrInsufficientPrivilege
	}
	target, ok := locked[targetUserID]
	if !ok || !target.IsActive {
		return models.Membership{}, models.Membership{}, apperr.ErrNotAMember
	}
	return actor, target, nil
}

func (s *MembershipService) GetMembership(ctx context.Context, tenantID, userID string) (models.Membership, error) {
	return s.memberships.Get(ctx, tenantID, userID)
}

func (s *MembershipService) ListMembers(ctx context.Context, tenantID string) ([]models.Membership, error) {
	return s.memberships.ListByTenant(ctx, tenantID)
}

func (s *MembershipService) ListForUser(ctx context.Context, userID string) ([]models.Membership, error) {
	return s.memberships.ListByUser(ctx, userID)
}

// SoleOwnerTenants lists the workspaces where userID is the only active
// Owner.
func (s *MembershipService) SoleOwnerTenants(ctx context.Context, userID string) ([]string, error) {
	memberships, err := s.memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var sole []string
	for _, m := range memberships {
		if m.Role != models.RoleOwner {
			continue
		}
		owners, err := s.memberships.CountActiveOwners(ctx, m.TenantID)
		if err != nil {
			return nil, err
		}
		if owners <= 1 {
			sole = append(sole, m.TenantID)
		}
	}
	return sole, nil
}

func (s *MembershipService) CountActiveOwners(ctx context.Context, tenantID string) (int, error) {
	return s.memberships.CountActiveOwners(ctx, tenantID)
}
