// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/warden/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// defaultEnvFile is read when present; a missing file is not an error.
const defaultEnvFile = ".env"

// NewRootCmd creates the root command for the warden CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Warden - accounts, roles and access tokens",
		Long: `Warden is an identity service: it registers accounts, verifies
passwords, issues signed bearer tokens and manages role membership
over a small JSON/HTTP API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/warden/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file with secrets")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewPolicyCmd())

	return cmd
}

// databaseURL reads DATABASE_URL after loading the dotenv file. Commands
// that only touch the database use it instead of the full config.
func databaseURL() (string, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", oops.Code("CONFIG_ENV_FILE_FAILED").With("path", envFile).Wrap(err)
		}
	}
	url := strings.TrimSpace(os.Getenv(config.EnvDatabaseURL))
	if url == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("%s environment variable is required", config.EnvDatabaseURL)
	}
	return url, nil
}
