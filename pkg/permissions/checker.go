// Package permissions checks permission strings with wildcard support.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "organisations.*")
//   - "resource.action" - Specific action (e.g., "organisations.read")
//   - "resource.subresource.action" - Nested permission (e.g., "organisations.tokens.delete")
package permissions

import (
	"strings"
)

// Permissions understood by the provisioning service
const (
	OrganisationsRead      = "organisations.read"
	OrganisationsCreate    = "organisations.create"
	OrganisationsUpdate    = "organisations.update"
	OrganisationsDelete    = "organisations.delete"
	OrganisationsStatus    = "organisations.status"
	OrganisationsTokens    = "organisations.tokens.manage"
	OrganisationsTokensDel = "organisations.tokens.delete"
)

// HasPermission checks if the user's permissions include the required permission.
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range userPerms {
		if p == "*" || p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}

// HasAnyPermission checks if the user has any of the required permissions.
func HasAnyPermission(userPerms []string, required []string) bool {
	for _, req := range required {
		if HasPermission(userPerms, req) {
			return true
		}
	}
	return false
}
