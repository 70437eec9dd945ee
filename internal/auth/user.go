// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// User represents an account. PasswordHash never leaves the store and engine;
// outward projections use UserDetail.
type User struct {
	ID                   ulid.ULID
	Email                string
	NormalizedEmail      string
	FullName             string
	PhoneNumber          string
	PhoneNumberConfirmed bool
	TwoFactorEnabled     bool
	PasswordHash         string
	FailedAttempts       int
	LockedUntil          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewUser creates a User with a fresh ID. Inputs are validated by the caller
// (see Engine.Register); NewUser only normalizes them.
func NewUser(email, fullName, phoneNumber, passwordHash string, now time.Time) *User {
	email = strings.TrimSpace(email)
	return &User{
		ID:              ulid.Make(),
		Email:           email,
		NormalizedEmail: NormalizeEmail(email),
		FullName:        strings.TrimSpace(fullName),
		PhoneNumber:     strings.TrimSpace(phoneNumber),
		PasswordHash:    passwordHash,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsLocked returns true if the user is locked out at now.
func (u *User) IsLocked(now time.Time) bool {
	return IsLockedOut(u.LockedUntil, now)
}

// RecordFailure increments the failure counter and sets lockout if the
// policy threshold is reached.
func (u *User) RecordFailure(policy LockoutPolicy, now time.Time) {
	u.FailedAttempts++
	if until := policy.LockedUntil(u.FailedAttempts, now); until != nil {
		u.LockedUntil = until
	}
	u.UpdatedAt = now
}

// LoginState is the failure bookkeeping stored for a user.
type LoginState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// IsLocked reports whether the state locks the account at now.
func (s LoginState) IsLocked(now time.Time) bool {
	return IsLockedOut(s.LockedUntil, now)
}

// RecordSuccess resets failure counter and lockout.
func (u *User) RecordSuccess(now time.Time) {
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.UpdatedAt = now
}

// UserDetail is the read-only projection of a user returned to callers.
type UserDetail struct {
	ID                   string   `json:"id"`
	Email                string   `json:"email"`
	FullName             string   `json:"fullName"`
	PhoneNumber          string   `json:"phoneNumber"`
	PhoneNumberConfirmed bool     `json:"phoneNumberConfirmed"`
	TwoFactorEnabled     bool     `json:"twoFactorEnabled"`
	AccessFailedCount    int      `json:"accessFailedCount"`
	Roles                []string `json:"roles"`
}

// Detail projects u with the given role names.
func (u *User) Detail(roles []string) UserDetail {
	if roles == nil {
		roles = []string{}
	}
	return UserDetail{
		ID:                   u.ID.String(),
		Email:                u.Email,
		FullName:             u.FullName,
		PhoneNumber:          u.PhoneNumber,
		PhoneNumberConfirmed: u.PhoneNumberConfirmed,
		TwoFactorEnabled:     u.TwoFactorEnabled,
		AccessFailedCount:    u.FailedAttempts,
		Roles:                roles,
	}
}

// UserRepository is the credential store contract.
type UserRepository interface {
	// Create stores a new user and assigns the named roles in one atomic
	// step. It fails with ErrDuplicate if the normalized email is taken and
	// with ErrNotFound if any role name does not exist; in both cases
	// nothing is persisted.
	Create(ctx context.Context, user *User, roleNames []string) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// List returns all users ordered by email.
	List(ctx context.Context) ([]*User, error)

	// RecordLoginFailure atomically increments the failure counter of the
	// user and locks the account once policy's threshold is reached. It
	// returns the state after the increment.
	RecordLoginFailure(ctx context.Context, id ulid.ULID, policy LockoutPolicy, now time.Time) (LoginState, error)

	// ResetLoginState clears the failure counter and any lockout.
	ResetLoginState(ctx context.Context, id ulid.ULID, now time.Time) error

	// UpdatePassword replaces the stored hash for a user.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
