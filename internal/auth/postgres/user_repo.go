// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

const userColumns = `id, email, normalized_email, full_name, phone_number,
		       phone_number_confirmed, two_factor_enabled, password_hash,
		       failed_attempts, locked_until, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts the user and its role memberships in one transaction.
// The email check is a compare-and-insert on the normalized_email unique index.
func (r *UserRepository) Create(ctx context.Context, user *auth.User, roleNames []string) error {
	normalized := make([]string, len(roleNames))
	for i, name := range roleNames {
		normalized[i] = auth.NormalizeRoleName(name)
	}

	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO users (
				id, email, normalized_email, full_name, phone_number,
				phone_number_confirmed, two_factor_enabled, password_hash,
				failed_attempts, locked_until, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT DO NOTHING
		`,
			user.ID.String(),
			user.Email,
			auth.NormalizeEmail(user.Email),
			user.FullName,
			user.PhoneNumber,
			user.PhoneNumberConfirmed,
			user.TwoFactorEnabled,
			user.PasswordHash,
			user.FailedAttempts,
			user.LockedUntil,
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			return failed("USER_CREATE_FAILED", "insert user", err)
		}
		if tag.RowsAffected() == 0 {
			return oops.Code("USER_EMAIL_TAKEN").
				With("email", user.Email).
				Wrap(auth.ErrDuplicate)
		}

		if len(normalized) == 0 {
			return nil
		}

		// FOR SHARE holds the role rows until commit, so a concurrent
		// DeleteRole cannot remove one between lookup and insert.
		rows, err := tx.Query(ctx, `
			SELECT id FROM roles WHERE normalized_name = ANY($1) FOR SHARE
		`, normalized)
		if err != nil {
			return failed("USER_CREATE_FAILED", "lock roles", err)
		}
		roleIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return failed("USER_CREATE_FAILED", "scan role ids", err)
		}
		if len(roleIDs) != len(uniqueStrings(normalized)) {
			return oops.Code("ROLE_NOT_FOUND").
				With("roles", roleNames).
				Wrap(auth.ErrNotFound)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id)
			SELECT $1, unnest($2::text[])
			ON CONFLICT DO NOTHING
		`, user.ID.String(), roleIDs); err != nil {
			return failed("USER_CREATE_FAILED", "insert user roles", err)
		}
		return nil
	})
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(classify(err))
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE normalized_email = $1`,
		auth.NormalizeEmail(email))

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(classify(err))
	}
	return user, nil
}

// List returns all users ordered by email.
func (r *UserRepository) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY normalized_email`)
	if err != nil {
		return nil, failed("USER_LIST_FAILED", "list users", err)
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, failed("USER_LIST_FAILED", "scan user row", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, failed("USER_LIST_FAILED", "iterate users", err)
	}
	return users, nil
}

// RecordLoginFailure increments failed_attempts in a single statement, so
// concurrent failures are all counted. The lock is set in the same
// statement once the new count reaches the threshold.
func (r *UserRepository) RecordLoginFailure(
	ctx context.Context, id ulid.ULID, policy auth.LockoutPolicy, now time.Time,
) (auth.LoginState, error) {
	// nil when lockout is disabled, which leaves locked_until untouched.
	lockUntil := policy.LockedUntil(policy.Threshold, now)

	var state auth.LoginState
	err := r.pool.QueryRow(ctx, `
		UPDATE users SET
			failed_attempts = failed_attempts + 1,
			locked_until = CASE
				WHEN $3::timestamptz IS NOT NULL AND failed_attempts + 1 >= $2 THEN $3::timestamptz
				ELSE locked_until
			END,
			updated_at = $4
		WHERE id = $1
		RETURNING failed_attempts, locked_until
	`, id.String(), policy.Threshold, lockUntil, now).Scan(&state.FailedAttempts, &state.LockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.LoginState{}, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return auth.LoginState{}, oops.Code("USER_UPDATE_FAILED").
			With("operation", "record login failure").
			With("id", id.String()).
			Wrap(classify(err))
	}
	return state, nil
}

// ResetLoginState clears the failure counter and any lockout.
func (r *UserRepository) ResetLoginState(ctx context.Context, id ulid.ULID, now time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET failed_attempts = 0, locked_until = NULL, updated_at = $2
		WHERE id = $1
	`, id.String(), now)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "reset login state").
			With("id", id.String()).
			Wrap(classify(err))
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePassword replaces the stored hash for a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, time.Now())
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(classify(err))
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr string
		u     auth.User
	)
	err := row.Scan(
		&idStr,
		&u.Email,
		&u.NormalizedEmail,
		&u.FullName,
		&u.PhoneNumber,
		&u.PhoneNumberConfirmed,
		&u.TwoFactorEnabled,
		&u.PasswordHash,
		&u.FailedAttempts,
		&u.LockedUntil,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	u.ID = id
	return &u, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
