package models

import (
	"fmt"
	"strings"

	"ghostworks/api/internal/apperr"
)

// Role is a workspace role. Values are ordered: a larger value dominates.
type Role int

const (
	RoleMember Role = iota
	RoleAdmin
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleAdmin:
		return "admin"
	case RoleMember:
		return "member"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

func (r Role) Valid() bool {
	return r >= RoleMember && r <= RoleOwner
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "owner":
		return RoleOwner, nil
	case "admin":
		return RoleAdmin, nil
	case "member":
		return RoleMember, nil
	}
	return RoleMember, fmt.Errorf("unknown role %q", s)
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Role) AtLeast(min Role) bool { return r >= min }

func (r Role) Outranks(other Role) bool { return r > other }

// CanGrant reports whether a member holding acting may hand out role.
// Only an Owner may grant Owner; otherwise the grant must be strictly lower.
func CanGrant(acting, role Role) bool {
	return acting == RoleOwner || acting > role
}

// CheckRoleChange enforces the hierarchy for moving a membership from
// current to next. self is true when the acting member targets their own
// membership. Last-owner protection needs the owner count and is applied by
// the store inside its transaction.
func CheckRoleChange(acting, current, next Role, self bool) error {
	if !next.Valid() {
		return apperr.ErrInsufficientPrivilege
	}
	if self {
		if next > current {
			return apperr.ErrInsufficientPrivilege
		}
		return nil
	}
	if !acting.Outranks(current) || !CanGrant(acting, next) {
		return apperr.ErrInsufficientPrivilege
	}
	return nil
}

func CheckRemoval(acting, target Role, self bool) error {
	if self {
		return nil
	}
	if !acting.Outranks(target) {
		return apperr.ErrInsufficientPrivilege
	}
	return nil
}

// CheckOwnerFloor rejects a change that would leave the workspace without
// an active Owner. activeOwners is counted before the change.
func CheckOwnerFloor(current Role, removing bool, next Role, activeOwners int, self bool) error {
	if current != RoleOwner {
		return nil
	}
	if !removing && next == RoleOwner {
		return nil
	}
	if activeOwners > 1 {
		return nil
	}
	if removing && self {
		return apperr.ErrSelfRemovalByLastOwner
	}
	return apperr.ErrLastOwnerProtected
}
