package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/launchpad/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRoleInheritance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		role    identity.Role
		object  string
		action  string
		allowed bool
	}{
		{identity.RoleClient, ObjectLaunchRequest, ActionLaunchRequestEdit, true},
		{identity.RoleClient, ObjectLaunchAdmin, ActionLaunchBoardView, false},
		{identity.RoleStaffTier1, ObjectLaunchAdmin, ActionLaunchStatusUpdate, true},
		{identity.RoleStaffTier1, ObjectLaunchAdmin, ActionLaunchReopen, false},
		{identity.RoleStaffTier2, ObjectLaunchAdmin, ActionLaunchReopen, true},
		{identity.RoleStaffTier2, ObjectLaunchProgress, ActionLaunchProgressUpdate, true},
		{identity.RoleSuperadmin, ObjectLaunchAdmin, ActionLaunchBoardView, true},
		{identity.RoleSuperadmin, ObjectCatalog, ActionCatalogCreate, true},
		{identity.RoleStaffTier2, ObjectCatalog, ActionCatalogCreate, false},
		{identity.RoleStaffTier1, ObjectPayment, ActionOverpaymentView, false},
		{identity.RoleSuperadmin, ObjectPayment, ActionOverpaymentView, true},
	}

	for _, tc := range cases {
		err := svc.Authorize(ctx, string(tc.role), tc.object, tc.action)
		if tc.allowed {
			assert.NoError(t, err, "%s %s", tc.role, tc.action)
		} else {
			assert.ErrorIs(t, err, ErrForbidden, "%s %s", tc.role, tc.action)
		}
	}
}

func TestAuthorizeRejectsUnknownRole(t *testing.T) {
	svc := newTestService(t)
	err := svc.Authorize(context.Background(), "owner", ObjectOrder, ActionOrderView)
	assert.ErrorIs(t, err, ErrInvalidActor)
}

func TestSeedPoliciesIsIdempotent(t *testing.T) {
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	before, err := enforcer.GetPolicy()
	require.NoError(t, err)
	require.NoError(t, seedPolicies(enforcer))
	after, err := enforcer.GetPolicy()
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after))
}
