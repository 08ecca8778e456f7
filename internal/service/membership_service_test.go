package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/models"
)

func TestRoleScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.createUser(t, "u@example.com")
	v := env.createUser(t, "v@example.com")
	w := env.createUser(t, "w@example.com")
	tenant := env.createTenant(t, "tenant-t", u)

	require.Equal(t, models.RoleOwner, env.membership(t, tenant.ID, u.ID).Role)

	_, err := env.memberships.AddMember(ctx, tenant.ID, v.ID, models.RoleMember)
	require.NoError(t, err)
	_, err = env.memberships.AddMember(ctx, tenant.ID, w.ID, models.RoleMember)
	require.NoError(t, err)

	// a member cannot demote the owner
	_, err = env.memberships.ChangeRole(ctx, tenant.ID, u.ID, models.RoleMember, env.membership(t, tenant.ID, v.ID))
	require.ErrorIs(t, err, apperr.ErrInsufficientPrivilege)

	// a member cannot change another member
	_, err = env.memberships.ChangeRole(ctx, tenant.ID, w.ID, models.RoleAdmin, env.membership(t, tenant.ID, v.ID))
	require.ErrorIs(t, err, apperr.ErrInsufficientPrivilege)

	updated, err := env.memberships.ChangeRole(ctx, tenant.ID, v.ID, models.RoleAdmin, env.membership(t, tenant.ID, u.ID))
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, updated.Role)

	// the acting role is re-read from the store, not taken from the caller
	staleV := models.Membership{TenantID: tenant.ID, UserID: v.ID, Role: models.RoleMember}
	require.NoError(t, env.memberships.RemoveMember(ctx, tenant.ID, w.ID, staleV))

	_, err = env.memberships.ChangeRole(ctx, tenant.ID, u.ID, models.RoleMember, env.membership(t, tenant.ID, v.ID))
	require.ErrorIs(t, err, apperr.ErrInsufficientPrivilege)

	// admins cannot mint admins or owners
	_, err = env.memberships.AddMember(ctx, tenant.ID, w.ID, models.RoleMember)
	require.NoError(t, err)
	_, err = env.memberships.ChangeRole(ctx, tenant.ID, w.ID, models.RoleOwner, env.membership(t, tenant.ID, v.ID))
	require.ErrorIs(t, err, apperr.ErrInsufficientPrivilege)
	_, err = env.memberships.ChangeRole(ctx, tenant.ID, w.ID, models.RoleAdmin, env.membership(t, tenant.ID, v.ID))
	require.ErrorIs(t, err, apperr.ErrInsufficientPrivilege)
}

func TestLastOwnerProtection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner@example.com")
	second := env.createUser(t, "second@example.com")
	tenant := env.createTenant(t, "solo", owner)
	acting := env.membership(t, tenant.ID, owner.ID)

	_, err := env.memberships.ChangeRole(ctx, tenant.ID, owner.ID, models.RoleAdmin, acting)
	require.ErrorIs(t, err, apperr.ErrLastOwnerProtected)

	err = env.memberships.RemoveMember(ctx, tenant.ID, owner.ID, acting)
	require.ErrorIs(t, err, apperr.ErrSelfRemovalByLastOwner)

	// self-promotion is never allowed
	_, err = env.memberships.AddMember(ctx, tenant.ID, second.ID, models.RoleAdmin)
	require.NoError(t, err)
	_, err = env.memberships.ChangeRole(ctx, tenant.ID, second.ID, models.RoleOwner, env.membership(t, tenant.ID, second.ID))
	require.ErrorIs(t, err, apperr.ErrInsufficientPrivilege)

	// with a second owner the first may step down
	_, err = env.memberships.ChangeRole(ctx, tenant.ID, second.ID, models.RoleOwner, acting)
	require.NoError(t, err)
	_, err = env.memberships.ChangeRole(ctx, tenant.ID, owner.ID, models.RoleMember, acting)
	require.NoError(t, err)

	count, err := env.memberships.CountActiveOwners(ctx, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestConcurrentOwnerStepDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.createUser(t, "a@example.com")
	b := env.createUser(t, "b@example.com")
	tenant := env.createTenant(t, "pair", a)
	_, err := env.memberships.AddMember(ctx, tenant.ID, b.ID, models.RoleOwner)
	require.NoError(t, err)

	actors := []models.Membership{env.membership(t, tenant.ID, a.ID), env.membership(t, tenant.ID, b.ID)}
	errs := make([]error, len(actors))

	var wg sync.WaitGroup
	for i, m := range actors {
		wg.Add(1)
		go func(i int, m models.Membership) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = env.memberships.ChangeRole(ctx, tenant.ID, m.UserID, models.RoleMember, m)
			} else {
				errs[i] = env.memberships.RemoveMember(ctx, tenant.ID, m.UserID, m)
			}
		}(i, m)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t,
			errors.Is(err, apperr.ErrLastOwnerProtected) || errors.Is(err, apperr.ErrSelfRemovalByLastOwner),
			err.Error())
	}
	require.Equal(t, 1, succeeded)

	count, err := env.memberships.CountActiveOwners(ctx, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRemoveAndReinvite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner@example.com")
	member := env.createUser(t, "member@example.com")
	tenant := env.createTenant(t, "reinvite", owner)
	acting := env.membership(t, tenant.ID, owner.ID)

	first, err := env.memberships.Invite(ctx, tenant.ID, "MEMBER@example.com", models.RoleMember, acting)
	require.NoError(t, err)

	_, err = env.memberships.Invite(ctx, tenant.ID, member.Email, models.RoleMember, acting)
	require.ErrorIs(t, err, apperr.ErrAlreadyMember)

	require.NoError(t, env.memberships.RemoveMember(ctx, tenant.ID, member.ID, acting))
	_, err = env.memberships.GetMembership(ctx, tenant.ID, member.ID)
	require.ErrorIs(t, err, apperr.ErrNotAMember)

	members, err := env.memberships.ListMembers(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	again, err := env.memberships.Invite(ctx, tenant.ID, member.Email, models.RoleAdmin, acting)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, models.RoleAdmin, again.Role)

	_, err = env.memberships.Invite(ctx, tenant.ID, "ghost@example.com", models.RoleMember, acting)
	require.ErrorIs(t, err, apperr.ErrUserNotFound)

	// an admin may only invite members
	_, err = env.memberships.Invite(ctx, tenant.ID, owner.Email, models.RoleAdmin, again)
	require.ErrorIs(t, err, apperr.ErrInsufficientPrivilege)

	_, err = env.memberships.AddMember(ctx, "missing-tenant", member.ID, models.RoleMember)
	require.ErrorIs(t, err, apperr.ErrTenantNotFound)

	err = env.memberships.RemoveMember(ctx, tenant.ID, "nobody", acting)
	require.ErrorIs(t, err, apperr.ErrNotAMember)
}
