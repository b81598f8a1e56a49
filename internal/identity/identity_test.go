package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Staff_Tier_2 ")
	require.True(t, ok)
	assert.Equal(t, RoleStaffTier2, role)

	_, ok = ParseRole("owner")
	assert.False(t, ok)
}

func TestRoleOrdering(t *testing.T) {
	assert.False(t, RoleClient.IsStaff())
	assert.True(t, RoleStaffTier1.IsStaff())
	assert.True(t, RoleSuperadmin.AtLeast(RoleStaffTier2))
	assert.False(t, RoleStaffTier1.AtLeast(RoleStaffTier2))
	assert.False(t, Role("ghost").AtLeast(RoleClient))
}

func TestCanAccess(t *testing.T) {
	client := Identity{UserID: "u1", Role: RoleClient}
	assert.True(t, client.CanAccess("u1"))
	assert.False(t, client.CanAccess("u2"))

	staff := Identity{UserID: "s1", Role: RoleStaffTier1}
	assert.True(t, staff.CanAccess("u2"))
}

func TestRequireStaff(t *testing.T) {
	_, err := RequireStaff(context.Background(), RoleStaffTier1)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	ctx := WithIdentity(context.Background(), Identity{UserID: "u1", Role: RoleClient})
	_, err = RequireStaff(ctx, RoleStaffTier1)
	assert.ErrorIs(t, err, ErrForbidden)

	ctx = WithIdentity(context.Background(), Identity{UserID: "s1", Role: RoleStaffTier1})
	_, err = RequireStaff(ctx, RoleStaffTier2)
	assert.ErrorIs(t, err, ErrForbidden)

	id, err := RequireStaff(ctx, RoleStaffTier1)
	require.NoError(t, err)
	assert.Equal(t, "s1", id.UserID)
}
