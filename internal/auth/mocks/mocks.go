// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/warden/internal/auth"
)

// testingT is satisfied by *testing.T.
type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserRepository mocks auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t testingT) *MockUserRepository {
	m := &MockUserRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User, roleNames []string) error {
	return m.Called(ctx, user, roleNames).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	ret := m.Called(ctx, id)
	return userOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	ret := m.Called(ctx, email)
	return userOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context) ([]*auth.User, error) {
	ret := m.Called(ctx)
	users, _ := ret.Get(0).([]*auth.User)
	return users, ret.Error(1)
}

func (m *MockUserRepository) RecordLoginFailure(ctx context.Context, id ulid.ULID, policy auth.LockoutPolicy, now time.Time) (auth.LoginState, error) {
	ret := m.Called(ctx, id, policy, now)
	state, _ := ret.Get(0).(auth.LoginState)
	return state, ret.Error(1)
}

func (m *MockUserRepository) ResetLoginState(ctx context.Context, id ulid.ULID, now time.Time) error {
	return m.Called(ctx, id, now).Error(0)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

func userOrNil(v any) *auth.User {
	u, _ := v.(*auth.User)
	return u
}

// MockRoleRegistry mocks auth.RoleRegistry.
type MockRoleRegistry struct {
	mock.Mock
}

// NewMockRoleRegistry creates a mock that asserts its expectations on cleanup.
func NewMockRoleRegistry(t testingT) *MockRoleRegistry {
	m := &MockRoleRegistry{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockRoleRegistry) CreateRole(ctx context.Context, role *auth.Role) error {
	return m.Called(ctx, role).Error(0)
}

func (m *MockRoleRegistry) GetRoleByName(ctx context.Context, name string) (*auth.Role, error) {
	ret := m.Called(ctx, name)
	role, _ := ret.Get(0).(*auth.Role)
	return role, ret.Error(1)
}

func (m *MockRoleRegistry) DeleteRole(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRoleRegistry) AssignRole(ctx context.Context, userID, roleID ulid.ULID) error {
	return m.Called(ctx, userID, roleID).Error(0)
}

func (m *MockRoleRegistry) RevokeRole(ctx context.Context, userID, roleID ulid.ULID) error {
	return m.Called(ctx, userID, roleID).Error(0)
}

func (m *MockRoleRegistry) ListRoles(ctx context.Context) ([]auth.RoleSummary, error) {
	ret := m.Called(ctx)
	roles, _ := ret.Get(0).([]auth.RoleSummary)
	return roles, ret.Error(1)
}

func (m *MockRoleRegistry) RolesForUser(ctx context.Context, userID ulid.ULID) ([]string, error) {
	ret := m.Called(ctx, userID)
	roles, _ := ret.Get(0).([]string)
	return roles, ret.Error(1)
}

func (m *MockRoleRegistry) RolesForUsers(ctx context.Context, userIDs []ulid.ULID) (map[ulid.ULID][]string, error) {
	ret := m.Called(ctx, userIDs)
	roles, _ := ret.Get(0).(map[ulid.ULID][]string)
	return roles, ret.Error(1)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

func (m *MockPasswordHasher) Verify(password, encodedHash string) bool {
	return m.Called(password, encodedHash).Bool(0)
}

func (m *MockPasswordHasher) NeedsUpgrade(encodedHash string) bool {
	return m.Called(encodedHash).Bool(0)
}

// MockAuthorizer mocks auth.Authorizer.
type MockAuthorizer struct {
	mock.Mock
}

// NewMockAuthorizer creates a mock that asserts its expectations on cleanup.
func NewMockAuthorizer(t testingT) *MockAuthorizer {
	m := &MockAuthorizer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAuthorizer) Allowed(roles []string, permission string) bool {
	return m.Called(roles, permission).Bool(0)
}

// MockTokenDenyList mocks auth.TokenDenyList.
type MockTokenDenyList struct {
	mock.Mock
}

// NewMockTokenDenyList creates a mock that asserts its expectations on cleanup.
func NewMockTokenDenyList(t testingT) *MockTokenDenyList {
	m := &MockTokenDenyList{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockTokenDenyList) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	return m.Called(ctx, tokenID, until).Error(0)
}

func (m *MockTokenDenyList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	ret := m.Called(ctx, tokenID)
	return ret.Bool(0), ret.Error(1)
}

// Compile-time interface checks.
var (
	_ auth.UserRepository = (*MockUserRepository)(nil)
	_ auth.RoleRegistry   = (*MockRoleRegistry)(nil)
	_ auth.PasswordHasher = (*MockPasswordHasher)(nil)
	_ auth.Authorizer     = (*MockAuthorizer)(nil)
	_ auth.TokenDenyList  = (*MockTokenDenyList)(nil)
)
