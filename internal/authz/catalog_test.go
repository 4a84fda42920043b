package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRolePermissionsMonotonicInheritance(t *testing.T) {
	hierarchy := []Role{RoleStaff, RoleManager, RoleOwner, RoleSuperadmin}
	for i := 1; i < len(hierarchy); i++ {
		junior := RolePermissions(hierarchy[i-1])
		senior := RolePermissions(hierarchy[i])
		for perm := range junior {
			assert.True(t, senior.Has(perm), "%s must inherit %s from %s", hierarchy[i], perm, hierarchy[i-1])
		}
		assert.Greater(t, len(senior), len(junior), "%s must add grants over %s", hierarchy[i], hierarchy[i-1])
	}
}

func TestRolePermissionsUnknownRoleFailsClosed(t *testing.T) {
	set := RolePermissions(Role("intern"))
	assert.Empty(t, set)
	assert.False(t, KnownRole(Role("intern")))
}

func TestRolePermissionsContents(t *testing.T) {
	staff := RolePermissions(RoleStaff)
	assert.True(t, staff.Has(PermBookingReadOwn))
	assert.False(t, staff.Has(PermBookingReadAll))
	assert.False(t, staff.Has(PermTenantManageAll))

	manager := RolePermissions(RoleManager)
	assert.True(t, manager.Has(PermBookingReadAll))
	assert.True(t, manager.Has(PermTeamManageAll))
	assert.False(t, manager.Has(PermBillingManageAll))

	owner := RolePermissions(RoleOwner)
	assert.True(t, owner.Has(PermTenantManageAll))
	assert.False(t, owner.Has(PermSystemManageAll))

	super := RolePermissions(RoleSuperadmin)
	assert.True(t, super.Has(PermSystemManageAll))
	assert.True(t, super.Has(PermBookingReadOwn))
}

func TestCatalogEntriesSatisfyGrammar(t *testing.T) {
	for role, grants := range roleGrants {
		for _, perm := range grants {
			require.True(t, ValidPermission(perm), "catalog entry %q for role %s violates the grammar", perm, role)
		}
	}
}
