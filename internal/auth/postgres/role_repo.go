// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// RoleRepository implements auth.RoleRegistry using PostgreSQL.
//
// Assignments take FOR SHARE on the role row and deletion takes the row
// lock implicitly, so AssignRole and DeleteRole serialize per role.
type RoleRepository struct {
	pool poolIface
}

// NewRoleRepository creates a new RoleRepository.
func NewRoleRepository(pool poolIface) *RoleRepository {
	return &RoleRepository{pool: pool}
}

// CreateRole inserts a role. The normalized name is unique.
func (r *RoleRepository) CreateRole(ctx context.Context, role *auth.Role) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO roles (id, name, normalized_name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, role.ID.String(), role.Name, auth.NormalizeRoleName(role.Name), role.CreatedAt)
	if err != nil {
		return failed("ROLE_CREATE_FAILED", "insert role", err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ROLE_NAME_TAKEN").
			With("role", role.Name).
			Wrap(auth.ErrDuplicate)
	}
	return nil
}

// GetRoleByName looks up a role case-insensitively.
func (r *RoleRepository) GetRoleByName(ctx context.Context, name string) (*auth.Role, error) {
	var (
		idStr string
		role  auth.Role
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, normalized_name, created_at FROM roles WHERE normalized_name = $1
	`, auth.NormalizeRoleName(name)).Scan(&idStr, &role.Name, &role.NormalizedName, &role.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ROLE_NOT_FOUND").With("role", name).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, failed("ROLE_GET_FAILED", "get role by name", err)
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ROLE_INVALID_ID").With("id", idStr).Wrap(err)
	}
	role.ID = id
	return &role, nil
}

// DeleteRole removes a role. Memberships cascade.
func (r *RoleRepository) DeleteRole(ctx context.Context, id ulid.ULID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("ROLE_DELETE_FAILED").
			With("operation", "delete role").
			With("role_id", id.String()).
			Wrap(classify(err))
	}
	if tag.RowsAffected() == 0 {
		return roleNotFound(id)
	}
	return nil
}

// AssignRole adds a membership. An existing pair is left unchanged.
func (r *RoleRepository) AssignRole(ctx context.Context, userID, roleID ulid.ULID) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockPair(ctx, tx, userID, roleID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, userID.String(), roleID.String())
		if isForeignKeyViolation(err) {
			return roleNotFound(roleID)
		}
		if err != nil {
			return failed("ROLE_ASSIGN_FAILED", "insert membership", err)
		}
		return nil
	})
}

// RevokeRole removes a membership. A missing pair is not an error.
func (r *RoleRepository) RevokeRole(ctx context.Context, userID, roleID ulid.ULID) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockPair(ctx, tx, userID, roleID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2
		`, userID.String(), roleID.String()); err != nil {
			return failed("ROLE_REVOKE_FAILED", "delete membership", err)
		}
		return nil
	})
}

// lockPair confirms both sides of a membership exist and holds a share
// lock on the role until the transaction ends.
func lockPair(ctx context.Context, tx pgx.Tx, userID, roleID ulid.ULID) error {
	var one int
	err := tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1`, userID.String()).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("USER_NOT_FOUND").With("id", userID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return failed("ROLE_MEMBERSHIP_FAILED", "check user", err)
	}

	err = tx.QueryRow(ctx, `SELECT 1 FROM roles WHERE id = $1 FOR SHARE`, roleID.String()).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return roleNotFound(roleID)
	}
	if err != nil {
		return failed("ROLE_MEMBERSHIP_FAILED", "lock role", err)
	}
	return nil
}

// ListRoles returns every role with its member count, ordered by name.
func (r *RoleRepository) ListRoles(ctx context.Context) ([]auth.RoleSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.name, COUNT(ur.user_id)
		FROM roles r
		LEFT JOIN user_roles ur ON ur.role_id = r.id
		GROUP BY r.id, r.name
		ORDER BY r.name
	`)
	if err != nil {
		return nil, failed("ROLE_LIST_FAILED", "list roles", err)
	}
	defer rows.Close()

	summaries := []auth.RoleSummary{}
	for rows.Next() {
		var (
			s     auth.RoleSummary
			count int64
		)
		if err := rows.Scan(&s.ID, &s.Name, &count); err != nil {
			return nil, failed("ROLE_LIST_FAILED", "scan role row", err)
		}
		s.TotalUsers = int(count)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, failed("ROLE_LIST_FAILED", "iterate roles", err)
	}
	return summaries, nil
}

// RolesForUser returns the user's role names ordered by name.
func (r *RoleRepository) RolesForUser(ctx context.Context, userID ulid.ULID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.name FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`, userID.String())
	if err != nil {
		return nil, failed("ROLE_LOOKUP_FAILED", "roles for user", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, failed("ROLE_LOOKUP_FAILED", "scan role names", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// RolesForUsers returns role names for a batch of users in one query.
func (r *RoleRepository) RolesForUsers(ctx context.Context, userIDs []ulid.ULID) (map[ulid.ULID][]string, error) {
	result := make(map[ulid.ULID][]string, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	ids := make([]string, len(userIDs))
	for i, id := range userIDs {
		ids[i] = id.String()
	}

	rows, err := r.pool.Query(ctx, `
		SELECT ur.user_id, r.name FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = ANY($1)
		ORDER BY ur.user_id, r.name
	`, ids)
	if err != nil {
		return nil, failed("ROLE_LOOKUP_FAILED", "roles for users", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userIDStr, name string
		if err := rows.Scan(&userIDStr, &name); err != nil {
			return nil, failed("ROLE_LOOKUP_FAILED", "scan membership row", err)
		}
		id, err := ulid.Parse(userIDStr)
		if err != nil {
			return nil, oops.Code("USER_INVALID_ID").With("id", userIDStr).Wrap(err)
		}
		result[id] = append(result[id], name)
	}
	if err := rows.Err(); err != nil {
		return nil, failed("ROLE_LOOKUP_FAILED", "iterate memberships", err)
	}
	return result, nil
}

func roleNotFound(id ulid.ULID) error {
	return oops.Code("ROLE_NOT_FOUND").With("role_id", id.String()).Wrap(auth.ErrNotFound)
}

// Compile-time interface check.
var _ auth.RoleRegistry = (*RoleRepository)(nil)
