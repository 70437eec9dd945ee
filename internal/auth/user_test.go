// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/warden/internal/auth"
)

func TestNewUser_Normalizes(t *testing.T) {
	now := time.Now()
	u := auth.NewUser("  Alice@Example.COM ", " Alice ", " 555 ", "hash", now)

	assert.NotZero(t, u.ID)
	assert.Equal(t, "Alice@Example.COM", u.Email)
	assert.Equal(t, "alice@example.com", u.NormalizedEmail)
	assert.Equal(t, "Alice", u.FullName)
	assert.Equal(t, "555", u.PhoneNumber)
	assert.Equal(t, now, u.CreatedAt)
	assert.Zero(t, u.FailedAttempts)
	assert.Nil(t, u.LockedUntil)
}

func TestUser_RecordFailureLocksAtThreshold(t *testing.T) {
	now := time.Now()
	policy := auth.LockoutPolicy{Threshold: 3, Duration: time.Minute}
	u := auth.NewUser("a@example.com", "A", "", "hash", now)

	u.RecordFailure(policy, now)
	u.RecordFailure(policy, now)
	assert.Equal(t, 2, u.FailedAttempts)
	assert.False(t, u.IsLocked(now))

	u.RecordFailure(policy, now)
	assert.True(t, u.IsLocked(now))
	assert.False(t, u.IsLocked(now.Add(time.Minute)))

	u.RecordSuccess(now)
	assert.Zero(t, u.FailedAttempts)
	assert.Nil(t, u.LockedUntil)
}

func TestUser_DetailJSON(t *testing.T) {
	u := auth.NewUser("a@example.com", "A", "", "secret-hash", time.Now())
	u.FailedAttempts = 2

	detail := u.Detail(nil)
	assert.Equal(t, []string{}, detail.Roles)

	raw, err := json.Marshal(detail)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-hash")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, u.ID.String(), decoded["id"])
	assert.Equal(t, "a@example.com", decoded["email"])
	assert.Equal(t, float64(2), decoded["accessFailedCount"])
	assert.Equal(t, []any{}, decoded["roles"])
	assert.Contains(t, decoded, "phoneNumberConfirmed")
	assert.Contains(t, decoded, "twoFactorEnabled")
}

func TestNormalizeRoleName(t *testing.T) {
	assert.Equal(t, "ADMIN", auth.NormalizeRoleName(" admin "))
	assert.Equal(t, auth.NormalizeRoleName("Admin"), auth.NormalizeRoleName("ADMIN"))
}
