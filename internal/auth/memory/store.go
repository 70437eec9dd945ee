// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process implementation of the auth
// repositories, for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// Store implements auth.UserRepository and auth.RoleRegistry in memory.
//
// A single mutex guards all maps, so every method is atomic with respect
// to every other. No method performs I/O while holding it.
type Store struct {
	mu          sync.RWMutex
	users       map[ulid.ULID]*auth.User
	byEmail     map[string]ulid.ULID // normalized email -> user
	roles       map[ulid.ULID]*auth.Role
	byRoleName  map[string]ulid.ULID                // normalized name -> role
	memberships map[ulid.ULID]map[ulid.ULID]struct{} // user -> roles
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:       make(map[ulid.ULID]*auth.User),
		byEmail:     make(map[string]ulid.ULID),
		roles:       make(map[ulid.ULID]*auth.Role),
		byRoleName:  make(map[string]ulid.ULID),
		memberships: make(map[ulid.ULID]map[ulid.ULID]struct{}),
	}
}

// Create stores a new user with its initial roles.
func (s *Store) Create(_ context.Context, user *auth.User, roleNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := auth.NormalizeEmail(user.Email)
	if _, taken := s.byEmail[key]; taken {
		return oops.Code("USER_EMAIL_TAKEN").
			With("email", user.Email).
			Wrap(auth.ErrDuplicate)
	}
	if _, taken := s.users[user.ID]; taken {
		return oops.Code("USER_ID_TAKEN").
			With("id", user.ID.String()).
			Wrap(auth.ErrDuplicate)
	}

	roleIDs := make(map[ulid.ULID]struct{}, len(roleNames))
	for _, name := range roleNames {
		id, ok := s.byRoleName[auth.NormalizeRoleName(name)]
		if !ok {
			return oops.Code("ROLE_NOT_FOUND").
				With("role", name).
				Wrap(auth.ErrNotFound)
		}
		roleIDs[id] = struct{}{}
	}

	stored := *user
	stored.NormalizedEmail = key
	s.users[user.ID] = &stored
	s.byEmail[key] = user.ID
	s.memberships[user.ID] = roleIDs
	return nil
}

// GetByID retrieves a user by ID.
func (s *Store) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, userNotFound("id", id.String())
	}
	return copyUser(u), nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (s *Store) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, userNotFound("email", email)
	}
	return copyUser(s.users[id]), nil
}

// List returns all users ordered by email.
func (s *Store) List(_ context.Context) ([]*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*auth.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].NormalizedEmail < users[j].NormalizedEmail
	})
	return users, nil
}

// RecordLoginFailure increments the failure counter under the store lock.
func (s *Store) RecordLoginFailure(_ context.Context, id ulid.ULID, policy auth.LockoutPolicy, now time.Time) (auth.LoginState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return auth.LoginState{}, userNotFound("id", id.String())
	}
	u.RecordFailure(policy, now)
	return auth.LoginState{FailedAttempts: u.FailedAttempts, LockedUntil: copyTime(u.LockedUntil)}, nil
}

// ResetLoginState clears the failure counter and any lockout.
func (s *Store) ResetLoginState(_ context.Context, id ulid.ULID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return userNotFound("id", id.String())
	}
	u.RecordSuccess(now)
	return nil
}

// UpdatePassword replaces the stored hash for a user.
func (s *Store) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return userNotFound("id", id.String())
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

// CreateRole stores a new role.
func (s *Store) CreateRole(_ context.Context, role *auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := auth.NormalizeRoleName(role.Name)
	if _, taken := s.byRoleName[key]; taken {
		return oops.Code("ROLE_NAME_TAKEN").
			With("role", role.Name).
			Wrap(auth.ErrDuplicate)
	}
	stored := *role
	stored.NormalizedName = key
	s.roles[role.ID] = &stored
	s.byRoleName[key] = role.ID
	return nil
}

// GetRoleByName looks up a role case-insensitively.
func (s *Store) GetRoleByName(_ context.Context, name string) (*auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRoleName[auth.NormalizeRoleName(name)]
	if !ok {
		return nil, oops.Code("ROLE_NOT_FOUND").With("role", name).Wrap(auth.ErrNotFound)
	}
	role := *s.roles[id]
	return &role, nil
}

// DeleteRole removes a role and all assignments referencing it.
func (s *Store) DeleteRole(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[id]
	if !ok {
		return roleNotFound(id)
	}
	for _, roles := range s.memberships {
		delete(roles, id)
	}
	delete(s.byRoleName, role.NormalizedName)
	delete(s.roles, id)
	return nil
}

// AssignRole adds a membership idempotently.
func (s *Store) AssignRole(_ context.Context, userID, roleID ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPair(userID, roleID); err != nil {
		return err
	}
	s.memberships[userID][roleID] = struct{}{}
	return nil
}

// RevokeRole removes a membership idempotently.
func (s *Store) RevokeRole(_ context.Context, userID, roleID ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPair(userID, roleID); err != nil {
		return err
	}
	delete(s.memberships[userID], roleID)
	return nil
}

// checkPair requires s.mu held for writing.
func (s *Store) checkPair(userID, roleID ulid.ULID) error {
	if _, ok := s.users[userID]; !ok {
		return userNotFound("id", userID.String())
	}
	if _, ok := s.roles[roleID]; !ok {
		return roleNotFound(roleID)
	}
	if s.memberships[userID] == nil {
		s.memberships[userID] = make(map[ulid.ULID]struct{})
	}
	return nil
}

// ListRoles returns all roles with member counts, ordered by name.
func (s *Store) ListRoles(_ context.Context) ([]auth.RoleSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[ulid.ULID]int, len(s.roles))
	for _, roles := range s.memberships {
		for id := range roles {
			counts[id]++
		}
	}

	summaries := make([]auth.RoleSummary, 0, len(s.roles))
	for id, role := range s.roles {
		summaries = append(summaries, auth.RoleSummary{
			ID:         id.String(),
			Name:       role.Name,
			TotalUsers: counts[id],
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries, nil
}

// RolesForUser returns a user's role names ordered by name.
func (s *Store) RolesForUser(_ context.Context, userID ulid.ULID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.roleNames(userID), nil
}

// RolesForUsers returns role names for many users under one lock.
func (s *Store) RolesForUsers(_ context.Context, userIDs []ulid.ULID) (map[ulid.ULID][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[ulid.ULID][]string, len(userIDs))
	for _, id := range userIDs {
		if names := s.roleNames(id); len(names) > 0 {
			result[id] = names
		}
	}
	return result, nil
}

// roleNames requires s.mu held.
func (s *Store) roleNames(userID ulid.ULID) []string {
	names := make([]string, 0, len(s.memberships[userID]))
	for id := range s.memberships[userID] {
		names = append(names, s.roles[id].Name)
	}
	sort.Strings(names)
	return names
}

func userNotFound(key, value string) error {
	return oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
}

func roleNotFound(id ulid.ULID) error {
	return oops.Code("ROLE_NOT_FOUND").With("role_id", id.String()).Wrap(auth.ErrNotFound)
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	c.LockedUntil = copyTime(u.LockedUntil)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Compile-time interface checks.
var (
	_ auth.UserRepository = (*Store)(nil)
	_ auth.RoleRegistry   = (*Store)(nil)
)
