package facades

import "context"

// RolePermissionChecker authorizes actors against a static role-to-actions
// map resolved at startup. The role-permission tables themselves are owned by
// the external admin service; this facade only consumes the resolved mapping.
type RolePermissionChecker struct {
	actorRoles map[string][]string
	roleGrants map[string]map[string]struct{}
}

// NewRolePermissionChecker builds a checker from actor-to-roles and
// role-to-actions mappings.
func NewRolePermissionChecker(actorRoles map[string][]string, roleActions map[string][]string) *RolePermissionChecker {
	grants := make(map[string]map[string]struct{}, len(roleActions))
	for role, actions := range roleActions {
		set := make(map[string]struct{}, len(actions))
		for _, a := range actions {
			set[a] = struct{}{}
		}
		grants[role] = set
	}
	return &RolePermissionChecker{actorRoles: actorRoles, roleGrants: grants}
}

// Authorize reports whether any of the actor's roles grants the action.
func (c *RolePermissionChecker) Authorize(ctx context.Context, actor, action string) (bool, error) {
	for _, role := range c.actorRoles[actor] {
		if _, ok := c.roleGrants[role][action]; ok {
			return true, nil
		}
	}
	return false, nil
}
