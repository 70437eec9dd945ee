// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/auth/postgres"
	"github.com/holomush/warden/internal/store"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout     time.Duration
	adminEmail  string
	policyFile  string
	skipMigrate bool
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default roles in PostgreSQL",
		Long: `Creates the User and Admin roles, plus any role named in the access
policy, and optionally grants Admin to an existing account.
This command is idempotent - it will not create duplicates if run multiple times.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().StringVar(&cfg.adminEmail, "admin-email", "", "grant the Admin role to this existing account")
	cmd.Flags().StringVar(&cfg.policyFile, "policy", "", "access policy file whose roles are seeded (empty = built-in roles)")
	cmd.Flags().BoolVar(&cfg.skipMigrate, "skip-migrate", false, "do not apply pending migrations first")

	return cmd
}

func runSeed(cmd *cobra.Command, cfg *seedConfig) error {
	url, err := databaseURL()
	if err != nil {
		return err
	}

	policy, err := loadPolicy(cfg.policyFile)
	if err != nil {
		return oops.Code("POLICY_LOAD_FAILED").With("path", cfg.policyFile).Wrap(err)
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	if !cfg.skipMigrate {
		cmd.Println("Running migrations...")
		if err := withMigrator(cmd, defaultMigratorFactory, func(_ *cobra.Command, m migrator) error {
			return m.Up()
		}); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
		}
	}

	cmd.Println("Connecting to database...")
	pool, err := store.Connect(ctx, url, store.DefaultConnectRetries)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	return seedAccounts(ctx, cmd,
		postgres.NewUserRepository(pool),
		postgres.NewRoleRepository(pool),
		seedRoleNames(policy),
		cfg.adminEmail,
	)
}

// seedAccounts creates the named roles and, when adminEmail is set, adds
// that account to the Admin role.
func seedAccounts(
	ctx context.Context,
	cmd *cobra.Command,
	users auth.UserRepository,
	roles auth.RoleRegistry,
	roleNames []string,
	adminEmail string,
) error {
	if err := auth.SeedRoles(ctx, roles, slog.Default(), time.Now(), roleNames...); err != nil {
		return err
	}
	cmd.Printf("Roles ready: %s\n", strings.Join(roleNames, ", "))

	adminEmail = strings.TrimSpace(adminEmail)
	if adminEmail == "" {
		return nil
	}

	user, err := users.GetByEmail(ctx, adminEmail)
	if err != nil {
		return oops.Code("SEED_ADMIN_FAILED").With("operation", "find admin account").Wrap(err)
	}
	admin, err := roles.GetRoleByName(ctx, auth.RoleAdmin)
	if err != nil {
		return oops.Code("SEED_ADMIN_FAILED").With("operation", "find admin role").Wrap(err)
	}
	if err := roles.AssignRole(ctx, user.ID, admin.ID); err != nil {
		return oops.Code("SEED_ADMIN_FAILED").With("operation", "assign admin role").Wrap(err)
	}
	cmd.Printf("Granted %s to %s\n", admin.Name, user.Email)
	return nil
}
