package rbac

import "slices"

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleClient   = "client"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Roles lists every role a token may carry.
var Roles = []string{RoleClient, RoleOperator, RoleAdmin}

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsValidRole(role string) bool { return slices.Contains(Roles, role) }

// Allowed reports whether role may use an endpoint open to allowed.
// admin is always allowed; unknown roles never are.
func Allowed(role string, allowed ...string) bool {
	if !IsValidRole(role) {
		return false
	}
	return IsAdmin(role) || slices.Contains(allowed, role)
}
