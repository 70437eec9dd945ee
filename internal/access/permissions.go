// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access

import "github.com/holomush/warden/internal/auth"

// Permission groups define reusable sets of permissions.
// Roles compose these groups rather than inheriting.

var accountPowers = []string{
	"account:read",
}

var roleAdminPowers = []string{
	auth.PermRoleCreate,
	auth.PermRoleDelete,
	auth.PermRoleAssign,
	auth.PermRoleRevoke,
}

// DefaultRoles returns the built-in role definitions.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		auth.RoleUser:  accountPowers,
		auth.RoleAdmin: compose(accountPowers, roleAdminPowers),
	}
}

// DefaultPolicyFile is the policy used when no file is configured.
func DefaultPolicyFile() PolicyFile {
	restrict := true
	return PolicyFile{Roles: DefaultRoles(), RestrictRegistrationRoles: &restrict}
}

// compose merges multiple permission slices into one.
func compose(groups ...[]string) []string {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	result := make([]string, 0, total)
	for _, g := range groups {
		result = append(result, g...)
	}
	return result
}
