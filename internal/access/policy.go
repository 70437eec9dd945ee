// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package access maps role names to permission patterns.
//
// Permissions are colon-separated strings such as "role:create". Patterns
// use gobwas/glob syntax with ':' as the separator, so "role:*" matches one
// segment and "role:**" matches any depth.
package access

import (
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// PolicyFile is the on-disk form of a Policy.
type PolicyFile struct {
	// Roles maps a role name to the permission patterns it grants.
	Roles map[string][]string `yaml:"roles" json:"roles" jsonschema:"required,description=Role name to permission glob patterns"`

	// AnonymousRoleCreate lets unauthenticated callers create roles.
	AnonymousRoleCreate bool `yaml:"anonymous_role_create,omitempty" json:"anonymous_role_create,omitempty" jsonschema:"description=Allow role creation without a bearer token"`

	// RestrictRegistrationRoles requires role:assign to register with
	// roles other than the default. Absent means true.
	RestrictRegistrationRoles *bool `yaml:"restrict_registration_roles,omitempty" json:"restrict_registration_roles,omitempty" jsonschema:"default=true,description=Require role:assign to self-select roles at registration. Set false to let anyone register into any role"`
}

// Policy answers permission checks. It is immutable after construction
// and safe for concurrent use.
type Policy struct {
	roles                     map[string][]compiledPermission // normalized role name -> patterns
	names                     map[string]string               // normalized role name -> spelling in the file
	anonymousRoleCreate       bool
	restrictRegistrationRoles bool
}

// compiledPermission holds a permission pattern and its compiled glob.
type compiledPermission struct {
	pattern string
	glob    glob.Glob
}

// NewPolicy compiles every pattern in f.
func NewPolicy(f PolicyFile) (*Policy, error) {
	compiled := make(map[string][]compiledPermission, len(f.Roles))
	names := make(map[string]string, len(f.Roles))
	for role, patterns := range f.Roles {
		key := auth.NormalizeRoleName(role)
		if key == "" {
			return nil, oops.In("access").Code("POLICY_INVALID").Errorf("role name cannot be empty")
		}
		// Keys differing only by case merge; the smallest spelling wins so
		// the result does not depend on map order.
		display := strings.TrimSpace(role)
		if prev, ok := names[key]; !ok || display < prev {
			names[key] = display
		}
		for _, p := range patterns {
			g, err := glob.Compile(p, ':')
			if err != nil {
				return nil, oops.In("access").
					Code("INVALID_PERMISSION_PATTERN").
					With("role", role).
					With("pattern", p).
					Wrap(err)
			}
			compiled[key] = append(compiled[key], compiledPermission{pattern: p, glob: g})
		}
	}
	return &Policy{
		roles:                     compiled,
		names:                     names,
		anonymousRoleCreate:       f.AnonymousRoleCreate,
		restrictRegistrationRoles: f.RestrictRegistrationRoles == nil || *f.RestrictRegistrationRoles,
	}, nil
}

// DefaultPolicy returns the compiled built-in policy.
//
// Panics if the built-in patterns fail to compile (programming error).
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultPolicyFile())
	if err != nil {
		panic("invalid permission pattern in DefaultRoles: " + err.Error())
	}
	return p
}

// Allowed reports whether any of roles grants permission. Role names match
// case-insensitively; unknown roles grant nothing.
func (p *Policy) Allowed(roles []string, permission string) bool {
	if permission == "" {
		return false
	}
	for _, role := range roles {
		for _, perm := range p.roles[auth.NormalizeRoleName(role)] {
			if perm.glob.Match(permission) {
				return true
			}
		}
	}
	return false
}

// Patterns returns the patterns granted to role, in file order.
func (p *Policy) Patterns(role string) []string {
	perms := p.roles[auth.NormalizeRoleName(role)]
	out := make([]string, len(perms))
	for i, perm := range perms {
		out[i] = perm.pattern
	}
	return out
}

// Roles returns the role names the policy knows, spelled as in the policy
// file and sorted.
func (p *Policy) Roles() []string {
	out := make([]string, 0, len(p.names))
	for _, name := range p.names {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// AnonymousRoleCreate reports whether role creation is open to anonymous callers.
func (p *Policy) AnonymousRoleCreate() bool {
	return p.anonymousRoleCreate
}

// RestrictRegistrationRoles reports whether registrations may only self-select the default role.
func (p *Policy) RestrictRegistrationRoles() bool {
	return p.restrictRegistrationRoles
}

var _ auth.Authorizer = (*Policy)(nil)
