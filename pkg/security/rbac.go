package security

import (
	"fmt"
	"strings"

	"github.com/cuemby/vcp/pkg/types"
)

// RBAC resolves a user's role ids into an effective permission set and
// answers authorization checks for pkg/api's middleware.
type RBAC struct {
	roleLookup func(id string) (*types.Role, error)
}

// NewRBAC wraps a role lookup function, typically *manager.Manager.GetRole.
func NewRBAC(roleLookup func(id string) (*types.Role, error)) *RBAC {
	return &RBAC{roleLookup: roleLookup}
}

// Allow reports whether any of roleIDs grants permission, honoring the
// "admin:*" wildcard and "<resource>:*" resource-level wildcards.
func (r *RBAC) Allow(roleIDs []string, permission string) bool {
	for _, id := range roleIDs {
		role, err := r.roleLookup(id)
		if err != nil {
			continue
		}
		for _, granted := range role.Permissions {
			if permissionMatches(granted, permission) {
				return true
			}
		}
	}
	return false
}

// permissionMatches reports whether granted (possibly a wildcard like
// "admin:*" or "vm:*") covers the requested permission.
func permissionMatches(granted, requested string) bool {
	if granted == types.PermAdmin {
		return true
	}
	if granted == requested {
		return true
	}
	resource, _, ok := strings.Cut(granted, ":")
	if !ok {
		return false
	}
	reqResource, _, _ := strings.Cut(requested, ":")
	return resource == reqResource && strings.HasSuffix(granted, ":*")
}

// RequirePermission returns an error suitable for an HTTP 403 if roleIDs
// does not grant permission.
func (r *RBAC) RequirePermission(roleIDs []string, permission string) error {
	if r.Allow(roleIDs, permission) {
		return nil
	}
	return fmt.Errorf("permission %q denied", permission)
}
