package security

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/vcp/pkg/types"
)

var errUnknownRole = errors.New("unknown role")

func testRoles() map[string]*types.Role {
	return map[string]*types.Role{
		"role-viewer": {ID: "role-viewer", Name: "viewer", Permissions: []string{types.PermVMRead, types.PermVolumeRead}},
		"role-vm-op":  {ID: "role-vm-op", Name: "vm-operator", Permissions: []string{"vm:*"}},
		"role-admin":  {ID: "role-admin", Name: "admin", Permissions: []string{types.PermAdmin}},
	}
}

func testRBAC() *RBAC {
	roles := testRoles()
	return NewRBAC(func(id string) (*types.Role, error) {
		role, ok := roles[id]
		if !ok {
			return nil, errUnknownRole
		}
		return role, nil
	})
}

func TestRBACExactPermission(t *testing.T) {
	r := testRBAC()
	require.True(t, r.Allow([]string{"role-viewer"}, types.PermVMRead))
	require.False(t, r.Allow([]string{"role-viewer"}, types.PermVMWrite))
}

func TestRBACResourceWildcard(t *testing.T) {
	r := testRBAC()
	require.True(t, r.Allow([]string{"role-vm-op"}, types.PermVMRead))
	require.True(t, r.Allow([]string{"role-vm-op"}, types.PermVMWrite))
	require.False(t, r.Allow([]string{"role-vm-op"}, types.PermVolumeWrite))
}

func TestRBACAdminWildcard(t *testing.T) {
	r := testRBAC()
	require.True(t, r.Allow([]string{"role-admin"}, types.PermNodeWrite))
}

func TestRBACUnknownRoleDenied(t *testing.T) {
	roles := testRoles()
	r := NewRBAC(func(id string) (*types.Role, error) {
		role, ok := roles[id]
		if !ok {
			return nil, errUnknownRole
		}
		return role, nil
	})
	require.False(t, r.Allow([]string{"role-missing"}, types.PermVMRead))
}
