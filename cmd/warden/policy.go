// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/warden/internal/access"
)

// NewPolicyCmd creates the policy subcommand.
func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and validate access policy files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for policy files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := access.GenerateSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check FILE",
		Short: "Validate a policy file and list its roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := access.LoadPolicy(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, role := range policy.Roles() {
				fmt.Fprintf(out, "%s: %s\n", role, strings.Join(policy.Patterns(role), ", "))
			}
			fmt.Fprintf(out, "anonymous_role_create: %t\n", policy.AnonymousRoleCreate())
			fmt.Fprintf(out, "restrict_registration_roles: %t\n", policy.RestrictRegistrationRoles())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the built-in policy as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeDefaultPolicy(cmd)
		},
	})

	return cmd
}

func writeDefaultPolicy(cmd *cobra.Command) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(access.DefaultPolicyFile()); err != nil {
		return oops.Code("POLICY_ENCODE_FAILED").Wrap(err)
	}
	return enc.Close()
}
