// Package identity carries the authenticated caller resolved by the upstream
// session layer.
package identity

import (
	"context"
	"errors"
	"strings"
)

type Role string

const (
	RoleClient     Role = "client"
	RoleStaffTier1 Role = "staff_tier_1"
	RoleStaffTier2 Role = "staff_tier_2"
	RoleSuperadmin Role = "superadmin"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

var roleRank = map[Role]int{
	RoleClient:     0,
	RoleStaffTier1: 1,
	RoleStaffTier2: 2,
	RoleSuperadmin: 3,
}

func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := roleRank[role]
	return role, ok
}

func (r Role) IsStaff() bool {
	return roleRank[r] >= roleRank[RoleStaffTier1] && r != RoleClient
}

// AtLeast compares staff seniority; clients never satisfy a staff minimum.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

type Identity struct {
	UserID string
	Role   Role
}

// CanAccess reports whether the caller may read a record owned by ownerID.
func (i Identity) CanAccess(ownerID string) bool {
	if i.Role.IsStaff() {
		return true
	}
	return i.UserID != "" && i.UserID == ownerID
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || strings.TrimSpace(id.UserID) == "" {
		return Identity{}, false
	}
	return id, true
}

func Require(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}

func RequireStaff(ctx context.Context, min Role) (Identity, error) {
	id, err := Require(ctx)
	if err != nil {
		return Identity{}, err
	}
	if !id.Role.IsStaff() || !id.Role.AtLeast(min) {
		return Identity{}, ErrForbidden
	}
	return id, nil
}
