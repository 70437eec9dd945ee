// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package cli_test

import (
	"context"
	"os/exec"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

const wardenDir = "../../../cmd/warden"

func warden(ctx context.Context, withDB bool, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "go", append([]string{"run", "."}, args...)...)
	cmd.Dir = wardenDir
	if withDB {
		cmd.Env = append(cmd.Environ(), "DATABASE_URL="+env.connStr)
	} else {
		cmd.Env = append(cmd.Environ(), "DATABASE_URL=")
	}
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func roleNames(ctx context.Context) []string {
	rows, err := env.pool.Query(ctx, "SELECT name FROM roles ORDER BY normalized_name")
	Expect(err).NotTo(HaveOccurred())
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		Expect(rows.Scan(&name)).To(Succeed())
		names = append(names, name)
	}
	Expect(rows.Err()).NotTo(HaveOccurred())
	return names
}

var _ = Describe("Migrate Command", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		resetDatabase(ctx, env.pool)
	})

	It("applies every migration and reports a clean status", func() {
		output, err := warden(ctx, true, "migrate", "up")
		Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", output)
		Expect(output).To(ContainSubstring("Migrations completed successfully"))

		output, err = warden(ctx, true, "migrate", "status")
		Expect(err).NotTo(HaveOccurred(), "migrate status failed: %s", output)
		Expect(output).To(ContainSubstring("(clean)"))
		Expect(output).NotTo(ContainSubstring("[pending]"))
	})

	It("rolls back one step at a time", func() {
		_, err := warden(ctx, true, "migrate", "up")
		Expect(err).NotTo(HaveOccurred())

		output, err := warden(ctx, true, "migrate", "down", "--steps", "1")
		Expect(err).NotTo(HaveOccurred(), "migrate down failed: %s", output)

		output, err = warden(ctx, true, "migrate", "status")
		Expect(err).NotTo(HaveOccurred())
		Expect(output).To(ContainSubstring("[pending]"))
	})
})

var _ = Describe("Seed Command", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		resetDatabase(ctx, env.pool)
	})

	It("creates the default roles", func() {
		output, err := warden(ctx, true, "seed")
		Expect(err).NotTo(HaveOccurred(), "seed command failed: %s", output)
		Expect(output).To(ContainSubstring("Roles ready: User, Admin"))

		Expect(roleNames(ctx)).To(Equal([]string{"Admin", "User"}))
	})

	It("is idempotent (running twice succeeds without duplicates)", func() {
		output, err := warden(ctx, true, "seed")
		Expect(err).NotTo(HaveOccurred(), "first seed failed: %s", output)

		output, err = warden(ctx, true, "seed")
		Expect(err).NotTo(HaveOccurred(), "second seed failed: %s", output)

		Expect(roleNames(ctx)).To(HaveLen(2))
	})

	It("grants Admin to an existing account", func() {
		_, err := warden(ctx, true, "seed")
		Expect(err).NotTo(HaveOccurred())

		_, err = env.pool.Exec(ctx,
			`INSERT INTO users (id, email, normalized_email, password_hash) VALUES ($1, $2, $3, $4)`,
			"01HZN3XS000000000000000000", "ops@example.com", "ops@example.com", "x",
		)
		Expect(err).NotTo(HaveOccurred())

		output, err := warden(ctx, true, "seed", "--admin-email", "ops@example.com")
		Expect(err).NotTo(HaveOccurred(), "seed failed: %s", output)
		Expect(output).To(ContainSubstring("Granted Admin to ops@example.com"))

		var count int
		err = env.pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM user_roles ur JOIN roles r ON r.id = ur.role_id
			WHERE ur.user_id = $1 AND r.normalized_name = 'ADMIN'`,
			"01HZN3XS000000000000000000",
		).Scan(&count)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})

	Describe("Error handling", func() {
		It("fails with CONFIG_INVALID when DATABASE_URL is missing", func() {
			output, err := warden(ctx, false, "seed", "--env-file", "")
			Expect(err).To(HaveOccurred())
			Expect(output).To(ContainSubstring("DATABASE_URL"))
		})
	})
})
