// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Built-in role names.
const (
	// RoleUser is assigned at registration when the caller names no roles.
	RoleUser = "User"

	// RoleAdmin holds every permission in the default access policy.
	RoleAdmin = "Admin"
)

// Role is a named permission group. Names are unique case-insensitively.
type Role struct {
	ID             ulid.ULID
	Name           string
	NormalizedName string
	CreatedAt      time.Time
}

// NewRole creates a Role with a fresh ID. name must already be validated.
func NewRole(name string, now time.Time) *Role {
	return &Role{
		ID:             ulid.Make(),
		Name:           name,
		NormalizedName: NormalizeRoleName(name),
		CreatedAt:      now,
	}
}

// NormalizeRoleName returns the case-insensitive comparison key for a role name.
func NormalizeRoleName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// RoleSummary is a role with its live member count.
type RoleSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TotalUsers int    `json:"totalUsers"`
}

// RoleRegistry maintains the set of valid roles and per-user membership.
//
// Implementations must serialize DeleteRole against AssignRole for the same
// role, so an assignment can never reference a deleted role.
type RoleRegistry interface {
	// CreateRole stores a new role. Returns ErrDuplicate if the name exists.
	CreateRole(ctx context.Context, role *Role) error

	// GetRoleByName looks up a role case-insensitively.
	GetRoleByName(ctx context.Context, name string) (*Role, error)

	// DeleteRole removes a role and all assignments referencing it.
	// Returns ErrNotFound if absent.
	DeleteRole(ctx context.Context, id ulid.ULID) error

	// AssignRole adds a membership. Assigning an existing pair is a no-op.
	// Returns ErrNotFound if the user or role does not exist.
	AssignRole(ctx context.Context, userID, roleID ulid.ULID) error

	// RevokeRole removes a membership. Revoking a missing pair is a no-op.
	// Returns ErrNotFound if the user or role does not exist.
	RevokeRole(ctx context.Context, userID, roleID ulid.ULID) error

	// ListRoles returns all roles with member counts, ordered by name.
	ListRoles(ctx context.Context) ([]RoleSummary, error)

	// RolesForUser returns a user's role names ordered by name.
	RolesForUser(ctx context.Context, userID ulid.ULID) ([]string, error)

	// RolesForUsers returns role names for many users with a single
	// lookup. Users without roles may be absent from the map.
	RolesForUsers(ctx context.Context, userIDs []ulid.ULID) (map[ulid.ULID][]string, error)
}
