//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/auth/postgres"
	"github.com/holomush/warden/internal/store"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("warden_test"),
		tcpostgres.WithUsername("warden"),
		tcpostgres.WithPassword("warden"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		os.Exit(1)
	}

	code := func() int {
		defer func() { _ = container.Terminate(ctx) }()

		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Fprintf(os.Stderr, "connection string: %v\n", err)
			return 1
		}
		migrator, err := store.NewMigrator(connStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migrator: %v\n", err)
			return 1
		}
		if err := migrator.Up(); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			return 1
		}
		_ = migrator.Close()

		testPool, err = store.Connect(ctx, connStr, 3)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connect: %v\n", err)
			return 1
		}
		defer testPool.Close()
		return m.Run()
	}()
	os.Exit(code)
}

func resetTables(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `TRUNCATE user_roles, users, roles CASCADE`)
	require.NoError(t, err)
}

func seedRoles(t *testing.T, roles *postgres.RoleRepository, names ...string) map[string]*auth.Role {
	t.Helper()
	out := make(map[string]*auth.Role, len(names))
	for _, name := range names {
		role := auth.NewRole(name, time.Now())
		require.NoError(t, roles.CreateRole(context.Background(), role))
		out[name] = role
	}
	return out
}

func TestIntegration_CreateUserWithRoles(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	users := postgres.NewUserRepository(testPool)
	roles := postgres.NewRoleRepository(testPool)
	seedRoles(t, roles, auth.RoleUser, auth.RoleAdmin)

	alice := auth.NewUser("Alice@Example.com", "Alice", "", "hash", time.Now().UTC())
	require.NoError(t, users.Create(ctx, alice, []string{"user"}))

	got, err := users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, "Alice@Example.com", got.Email)

	names, err := roles.RolesForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleUser}, names)

	dup := auth.NewUser("ALICE@example.com", "Other", "", "hash", time.Now())
	require.ErrorIs(t, users.Create(ctx, dup, nil), auth.ErrDuplicate)

	ghost := auth.NewUser("ghost@example.com", "Ghost", "", "hash", time.Now())
	require.ErrorIs(t, users.Create(ctx, ghost, []string{"Nope"}), auth.ErrNotFound)
	_, err = users.GetByEmail(ctx, "ghost@example.com")
	require.ErrorIs(t, err, auth.ErrNotFound, "failed create must not leave a user behind")
}

func TestIntegration_ConcurrentRegistrationSameEmail(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	users := postgres.NewUserRepository(testPool)
	seedRoles(t, postgres.NewRoleRepository(testPool), auth.RoleUser)

	const workers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := auth.NewUser("race@example.com", fmt.Sprintf("Racer %d", i), "", "hash", time.Now())
			if err := users.Create(ctx, u, []string{auth.RoleUser}); err == nil {
				successes.Add(1)
			} else {
				assert.ErrorIs(t, err, auth.ErrDuplicate)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), successes.Load())
}

func TestIntegration_RoleLifecycle(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	users := postgres.NewUserRepository(testPool)
	roles := postgres.NewRoleRepository(testPool)
	seeded := seedRoles(t, roles, auth.RoleUser, "Editor")

	bob := auth.NewUser("bob@example.com", "Bob", "", "hash", time.Now())
	require.NoError(t, users.Create(ctx, bob, []string{auth.RoleUser}))

	editor := seeded["Editor"]
	require.NoError(t, roles.AssignRole(ctx, bob.ID, editor.ID))
	require.NoError(t, roles.AssignRole(ctx, bob.ID, editor.ID), "assign is idempotent")

	summaries, err := roles.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "Editor", summaries[0].Name)
	assert.Equal(t, 1, summaries[0].TotalUsers)

	require.ErrorIs(t, roles.CreateRole(ctx, auth.NewRole("EDITOR", time.Now())), auth.ErrDuplicate)

	require.NoError(t, roles.DeleteRole(ctx, editor.ID))
	names, err := roles.RolesForUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleUser}, names)

	require.ErrorIs(t, roles.DeleteRole(ctx, editor.ID), auth.ErrNotFound)
	require.ErrorIs(t, roles.AssignRole(ctx, bob.ID, editor.ID), auth.ErrNotFound)
}

func TestIntegration_LoginStateRoundTrip(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	users := postgres.NewUserRepository(testPool)

	u := auth.NewUser("carol@example.com", "Carol", "", "hash", time.Now().UTC())
	require.NoError(t, users.Create(ctx, u, nil))

	now := time.Now().UTC().Truncate(time.Microsecond)
	policy := auth.LockoutPolicy{Threshold: 1, Duration: time.Minute}
	state, err := users.RecordLoginFailure(ctx, u.ID, policy, now)
	require.NoError(t, err)
	assert.Equal(t, 1, state.FailedAttempts)
	assert.True(t, state.IsLocked(now))

	got, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FailedAttempts)
	require.NotNil(t, got.LockedUntil)
	assert.True(t, got.IsLocked(now))

	require.NoError(t, users.ResetLoginState(ctx, u.ID, now))
	got, err = users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedAttempts)
	assert.Nil(t, got.LockedUntil)

	require.NoError(t, users.UpdatePassword(ctx, u.ID, "rehashed"))
	got, err = users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "rehashed", got.PasswordHash)
}

func TestIntegration_ConcurrentLoginFailuresAreCounted(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	users := postgres.NewUserRepository(testPool)

	u := auth.NewUser("dave@example.com", "Dave", "", "hash", time.Now().UTC())
	require.NoError(t, users.Create(ctx, u, nil))

	const workers = 20
	now := time.Now().UTC()
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := users.RecordLoginFailure(ctx, u.ID, auth.DefaultLockoutPolicy(), now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.FailedAttempts)
	assert.True(t, got.IsLocked(now))
}
