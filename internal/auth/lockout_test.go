// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/warden/internal/auth"
)

func TestLockoutPolicy_LockedUntil(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	policy := auth.DefaultLockoutPolicy()

	for failures := 0; failures < auth.DefaultLockoutThreshold; failures++ {
		assert.Nil(t, policy.LockedUntil(failures, now), "failures=%d", failures)
	}

	until := policy.LockedUntil(auth.DefaultLockoutThreshold, now)
	require.NotNil(t, until)
	assert.Equal(t, now.Add(auth.DefaultLockoutDuration), *until)
}

func TestLockoutPolicy_Disabled(t *testing.T) {
	now := time.Now()
	assert.False(t, auth.LockoutPolicy{}.Enabled())
	assert.Nil(t, auth.LockoutPolicy{}.LockedUntil(100, now))
	assert.Nil(t, auth.LockoutPolicy{Threshold: 1}.LockedUntil(100, now))
}

func TestIsLockedOut(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.False(t, auth.IsLockedOut(nil, now))
	assert.False(t, auth.IsLockedOut(&past, now))
	assert.False(t, auth.IsLockedOut(&now, now), "lockout ends at the boundary")
	assert.True(t, auth.IsLockedOut(&future, now))
}
