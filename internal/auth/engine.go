// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/warden/pkg/errutil"
)

// Permissions checked before mutating the role registry.
const (
	PermRoleCreate = "role:create"
	PermRoleDelete = "role:delete"
	PermRoleAssign = "role:assign"
	PermRoleRevoke = "role:revoke"
)

var tracer = otel.Tracer("github.com/holomush/warden/internal/auth")

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Authorizer decides whether a set of role names grants a permission.
type Authorizer interface {
	Allowed(roles []string, permission string) bool
}

// TokenDenyList records revoked token IDs until they would have expired.
type TokenDenyList interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// EngineConfig holds the engine's immutable policy settings.
type EngineConfig struct {
	PasswordPolicy PasswordPolicy
	Lockout        LockoutPolicy

	// DefaultRole is assigned when a registration names no roles.
	DefaultRole string

	// AnonymousRoleCreate lets unauthenticated callers create roles.
	// When false, CreateRole requires PermRoleCreate.
	AnonymousRoleCreate bool

	// RestrictRegistrationRoles requires PermRoleAssign from the caller
	// before a registration may name roles other than DefaultRole. On by
	// default; turning it off lets anyone register into any role.
	RestrictRegistrationRoles bool
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PasswordPolicy:            DefaultPasswordPolicy(),
		Lockout:                   DefaultLockoutPolicy(),
		DefaultRole:               RoleUser,
		RestrictRegistrationRoles: true,
	}
}

// EngineDeps are the collaborators composed by Engine. DenyList, Logger and
// Clock are optional.
type EngineDeps struct {
	Users    UserRepository
	Roles    RoleRegistry
	Hasher   PasswordHasher
	Tokens   *TokenIssuer
	Access   Authorizer
	DenyList TokenDenyList
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Engine orchestrates registration, login and role management. It holds no
// per-request state; all consistency guarantees come from the stores.
type Engine struct {
	users    UserRepository
	roles    RoleRegistry
	hasher   PasswordHasher
	tokens   *TokenIssuer
	access   Authorizer
	denyList TokenDenyList
	cfg      EngineConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(deps EngineDeps, cfg EngineConfig) (*Engine, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Code("AUTH_ENGINE_INVALID").Errorf("users repository is required")
	case deps.Roles == nil:
		return nil, oops.Code("AUTH_ENGINE_INVALID").Errorf("role registry is required")
	case deps.Hasher == nil:
		return nil, oops.Code("AUTH_ENGINE_INVALID").Errorf("password hasher is required")
	case deps.Tokens == nil:
		return nil, oops.Code("AUTH_ENGINE_INVALID").Errorf("token issuer is required")
	case deps.Access == nil:
		return nil, oops.Code("AUTH_ENGINE_INVALID").Errorf("authorizer is required")
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = RoleUser
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Engine{
		users:    deps.Users,
		roles:    deps.Roles,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
		access:   deps.Access,
		denyList: deps.DenyList,
		cfg:      cfg,
		logger:   deps.Logger,
		now:      deps.Clock,
	}, nil
}

// Principal is an authenticated caller, derived from a validated token.
type Principal struct {
	UserID    ulid.ULID
	Email     string
	Name      string
	Roles     []string
	TokenID   string
	ExpiresAt time.Time
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Email       string
	FullName    string
	PhoneNumber string
	Password    string
	Roles       []string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	UserID    ulid.ULID
	Roles     []string
}

// Register creates a user and its initial role memberships atomically.
// caller may be nil for anonymous registration.
func (e *Engine) Register(ctx context.Context, caller *Principal, in RegisterInput) (_ UserDetail, err error) {
	ctx, span := tracer.Start(ctx, "auth.Register")
	defer func() {
		recordRegistration(err)
		endSpan(span, err)
	}()

	fields := FieldErrors{}
	if reasons := ValidateEmail(in.Email); reasons != nil {
		fields.Add("email", reasons...)
	}
	if reasons := ValidateFullName(in.FullName); reasons != nil {
		fields.Add("fullName", reasons...)
	}
	if reasons := ValidatePhoneNumber(in.PhoneNumber); reasons != nil {
		fields.Add("phoneNumber", reasons...)
	}
	if reasons := e.cfg.PasswordPolicy.Validate(in.Password); reasons != nil {
		fields.Add("password", reasons...)
	}
	roleNames := e.registrationRoles(in.Roles, fields)
	if err := fields.Err(); err != nil {
		return UserDetail{}, err
	}

	if e.cfg.RestrictRegistrationRoles && !e.onlyDefaultRole(roleNames) {
		if err := e.authorize(ctx, caller, PermRoleAssign); err != nil {
			return UserDetail{}, err
		}
	}

	// Resolve names to canonical casing and report unknown ones as field
	// errors. The store re-checks inside its transaction.
	canonical := make([]string, 0, len(roleNames))
	for _, name := range roleNames {
		role, lookupErr := e.roles.GetRoleByName(ctx, name)
		if errors.Is(lookupErr, ErrNotFound) {
			fields.Add("roles", "unknown_role:"+name)
			continue
		}
		if lookupErr != nil {
			return UserDetail{}, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "resolve role").
				With("role", name).
				Wrap(lookupErr)
		}
		canonical = append(canonical, role.Name)
	}
	if err := fields.Err(); err != nil {
		return UserDetail{}, err
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return UserDetail{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user := NewUser(in.Email, in.FullName, in.PhoneNumber, hash, e.now())
	if err := e.users.Create(ctx, user, canonical); err != nil {
		switch {
		case errors.Is(err, ErrDuplicate):
			return UserDetail{}, oops.Code("AUTH_EMAIL_TAKEN").
				Public("An account with this email already exists.").
				Wrap(err)
		case errors.Is(err, ErrNotFound):
			// A role was deleted between resolution and insert.
			return UserDetail{}, FieldErrors{"roles": {"unknown_role"}}.Err()
		default:
			return UserDetail{}, oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "create user").
				Wrap(err)
		}
	}

	e.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(),
		"roles", canonical)
	return user.Detail(canonical), nil
}

func (e *Engine) registrationRoles(requested []string, fields FieldErrors) []string {
	if len(requested) == 0 {
		return []string{e.cfg.DefaultRole}
	}
	seen := make(map[string]struct{}, len(requested))
	names := make([]string, 0, len(requested))
	for _, raw := range requested {
		name := strings.TrimSpace(raw)
		if name == "" {
			fields.Add("roles", "empty_role_name")
			continue
		}
		key := NormalizeRoleName(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names
}

func (e *Engine) onlyDefaultRole(names []string) bool {
	return len(names) == 1 && NormalizeRoleName(names[0]) == NormalizeRoleName(e.cfg.DefaultRole)
}

// Login verifies credentials and issues an access token.
// Uses constant-time operations to prevent timing-based email enumeration.
func (e *Engine) Login(ctx context.Context, email, password string) (_ *LoginResult, err error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer func() {
		recordLogin(err)
		endSpan(span, err)
	}()

	user, lookupErr := e.users.GetByEmail(ctx, email)

	var targetHash string
	userExists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = dummyPasswordHash
	default:
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	// Always verify, even for unknown users, so both paths cost the same.
	valid := e.hasher.Verify(password, targetHash)

	now := e.now()
	if !userExists || !valid {
		if userExists {
			state, updateErr := e.users.RecordLoginFailure(ctx, user.ID, e.cfg.Lockout, now)
			switch {
			case updateErr != nil:
				errutil.LogError(e.logger, "failed to record login failure", updateErr)
			case state.IsLocked(now):
				e.logger.WarnContext(ctx, "account locked after repeated failures",
					"user_id", user.ID.String(),
					"failed_attempts", state.FailedAttempts)
			}
		}
		return nil, invalidCredentials()
	}

	// Lockout is checked after verification to keep timing uniform.
	if user.IsLocked(now) {
		return nil, oops.Code("AUTH_ACCOUNT_LOCKED").
			With("locked_until", user.LockedUntil).
			Public("Account is temporarily locked.").
			Wrapf(ErrUnauthorized, "account is temporarily locked")
	}

	if user.FailedAttempts > 0 || user.LockedUntil != nil {
		if updateErr := e.users.ResetLoginState(ctx, user.ID, now); updateErr != nil {
			errutil.LogError(e.logger, "failed to reset login failures", updateErr)
		}
	}

	if e.hasher.NeedsUpgrade(user.PasswordHash) {
		e.upgradeHash(ctx, user, password)
	}

	roles, err := e.roles.RolesForUser(ctx, user.ID)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get roles for user").
			Wrap(err)
	}

	token, claims, err := e.tokens.Issue(TokenSubject{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.FullName,
		Roles:  roles,
	}, 0)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue token").
			Wrap(err)
	}
	recordTokenIssued()

	e.logger.DebugContext(ctx, "login succeeded", "user_id", user.ID.String())
	return &LoginResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    user.ID,
		Roles:     claims.Roles,
	}, nil
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").
		Public("Invalid email or password.").
		Wrapf(ErrInvalidCredentials, "invalid email or password")
}

// upgradeHash rehashes with current parameters. Failures are logged only;
// login succeeds regardless.
func (e *Engine) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := e.hasher.Hash(password)
	if err != nil {
		errutil.LogError(e.logger, "failed to rehash password", err)
		return
	}
	if err := e.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
		errutil.LogError(e.logger, "failed to store upgraded password hash", err)
		return
	}
	user.PasswordHash = newHash
}

// Authenticate validates a bearer token and returns the caller it names.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, oops.Code("AUTH_TOKEN_MISSING").
			Public("Authentication required.").
			Wrapf(ErrUnauthorized, "bearer token is required")
	}

	claims, err := e.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	if e.denyList != nil && claims.ID != "" {
		revoked, err := e.denyList.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, oops.Code("AUTH_DENYLIST_FAILED").
				With("operation", "check token revocation").
				Wrap(errors.Join(ErrStoreUnavailable, err))
		}
		if revoked {
			return nil, tokenFailure(TokenRevoked, nil)
		}
	}

	return &Principal{
		UserID:    claims.UserID(),
		Email:     claims.Email,
		Name:      claims.Name,
		Roles:     claims.Roles,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes the caller's token until it expires. Without a deny-list
// this is a no-op.
func (e *Engine) Logout(ctx context.Context, caller *Principal) error {
	if caller == nil {
		return oops.Code("AUTH_TOKEN_MISSING").Wrapf(ErrUnauthorized, "caller is required")
	}
	if e.denyList == nil || caller.TokenID == "" {
		return nil
	}
	if err := e.denyList.Revoke(ctx, caller.TokenID, caller.ExpiresAt); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "revoke token").
			Wrap(errors.Join(ErrStoreUnavailable, err))
	}
	e.logger.InfoContext(ctx, "token revoked", "user_id", caller.UserID.String())
	return nil
}

// GetUserDetail returns the projection of a single user.
func (e *Engine) GetUserDetail(ctx context.Context, userID ulid.ULID) (UserDetail, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return UserDetail{}, oops.Code("USER_NOT_FOUND").
				With("user_id", userID.String()).
				Public("User not found.").
				Wrap(err)
		}
		return UserDetail{}, oops.Code("AUTH_USER_DETAIL_FAILED").Wrap(err)
	}
	roles, err := e.roles.RolesForUser(ctx, userID)
	if err != nil {
		return UserDetail{}, oops.Code("AUTH_USER_DETAIL_FAILED").
			With("operation", "get roles for user").
			Wrap(err)
	}
	return user.Detail(roles), nil
}

// ListUsers returns every user with roles fetched in one batch.
func (e *Engine) ListUsers(ctx context.Context) ([]UserDetail, error) {
	users, err := e.users.List(ctx)
	if err != nil {
		return nil, oops.Code("AUTH_LIST_USERS_FAILED").Wrap(err)
	}
	ids := make([]ulid.ULID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	roles, err := e.roles.RolesForUsers(ctx, ids)
	if err != nil {
		return nil, oops.Code("AUTH_LIST_USERS_FAILED").
			With("operation", "get roles for users").
			Wrap(err)
	}
	details := make([]UserDetail, len(users))
	for i, u := range users {
		details[i] = u.Detail(roles[u.ID])
	}
	return details, nil
}

// CreateRole creates a role. caller may be nil only when anonymous role
// creation is enabled.
func (e *Engine) CreateRole(ctx context.Context, caller *Principal, name string) (_ *Role, err error) {
	ctx, span := tracer.Start(ctx, "auth.CreateRole")
	defer func() { endSpan(span, err) }()

	if !e.cfg.AnonymousRoleCreate {
		if err := e.authorize(ctx, caller, PermRoleCreate); err != nil {
			return nil, err
		}
	}

	name, err = ValidateRoleName(name)
	if err != nil {
		return nil, err
	}

	role := NewRole(name, e.now())
	if err := e.roles.CreateRole(ctx, role); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, oops.Code("ROLE_EXISTS").
				With("role", name).
				Public("Role already exists").
				Wrap(err)
		}
		return nil, oops.Code("ROLE_CREATE_FAILED").With("role", name).Wrap(err)
	}
	e.logger.InfoContext(ctx, "role created", "role_id", role.ID.String(), "role", role.Name)
	return role, nil
}

// DeleteRole removes a role and every membership referencing it.
func (e *Engine) DeleteRole(ctx context.Context, caller *Principal, roleID string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.DeleteRole")
	defer func() { endSpan(span, err) }()

	if err := e.authorize(ctx, caller, PermRoleDelete); err != nil {
		return err
	}
	id, err := parseID(roleID, "ROLE_NOT_FOUND", "Role not found.")
	if err != nil {
		return err
	}
	if err := e.roles.DeleteRole(ctx, id); err != nil {
		return roleError(err, "ROLE_DELETE_FAILED", id)
	}
	e.logger.InfoContext(ctx, "role deleted", "role_id", id.String())
	return nil
}

// AssignRole grants a role to a user. Repeating an assignment succeeds.
func (e *Engine) AssignRole(ctx context.Context, caller *Principal, userID, roleID string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.AssignRole")
	defer func() { endSpan(span, err) }()

	return e.changeMembership(ctx, caller, PermRoleAssign, userID, roleID, e.roles.AssignRole, "role assigned")
}

// RevokeRole removes a role from a user. Revoking a missing membership succeeds.
func (e *Engine) RevokeRole(ctx context.Context, caller *Principal, userID, roleID string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.RevokeRole")
	defer func() { endSpan(span, err) }()

	return e.changeMembership(ctx, caller, PermRoleRevoke, userID, roleID, e.roles.RevokeRole, "role revoked")
}

func (e *Engine) changeMembership(
	ctx context.Context,
	caller *Principal,
	perm, rawUserID, rawRoleID string,
	apply func(context.Context, ulid.ULID, ulid.ULID) error,
	logMsg string,
) error {
	if err := e.authorize(ctx, caller, perm); err != nil {
		return err
	}
	uid, err := parseID(rawUserID, "USER_NOT_FOUND", "User not found.")
	if err != nil {
		return err
	}
	rid, err := parseID(rawRoleID, "ROLE_NOT_FOUND", "Role not found.")
	if err != nil {
		return err
	}
	if err := apply(ctx, uid, rid); err != nil {
		return roleError(err, "ROLE_MEMBERSHIP_FAILED", rid)
	}
	e.logger.InfoContext(ctx, logMsg,
		"user_id", uid.String(),
		"role_id", rid.String(),
		"by", caller.UserID.String())
	return nil
}

// ListRoles returns every role with its member count, ordered by name.
func (e *Engine) ListRoles(ctx context.Context) ([]RoleSummary, error) {
	roles, err := e.roles.ListRoles(ctx)
	if err != nil {
		return nil, oops.Code("ROLE_LIST_FAILED").Wrap(err)
	}
	return roles, nil
}

// RolesForUser returns the current role names of a user.
func (e *Engine) RolesForUser(ctx context.Context, userID ulid.ULID) ([]string, error) {
	roles, err := e.roles.RolesForUser(ctx, userID)
	if err != nil {
		return nil, oops.Code("ROLE_LOOKUP_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return roles, nil
}

// EnsureRoles creates any of the named roles that do not already exist.
func (e *Engine) EnsureRoles(ctx context.Context, names ...string) error {
	return SeedRoles(ctx, e.roles, e.logger, e.now(), names...)
}

// SeedRoles creates any of the named roles missing from roles. Existing
// roles, matched case-insensitively, are left untouched.
func SeedRoles(ctx context.Context, roles RoleRegistry, logger *slog.Logger, now time.Time, names ...string) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, name := range names {
		err := roles.CreateRole(ctx, NewRole(name, now))
		switch {
		case err == nil:
			logger.InfoContext(ctx, "seeded role", "role", name)
		case errors.Is(err, ErrDuplicate):
		default:
			return oops.Code("ROLE_SEED_FAILED").With("role", name).Wrap(err)
		}
	}
	return nil
}

// authorize checks perm against the caller's current roles rather than the
// token snapshot, so a revoked privilege takes effect immediately.
func (e *Engine) authorize(ctx context.Context, caller *Principal, perm string) error {
	if caller == nil {
		return oops.Code("AUTH_REQUIRED").
			With("permission", perm).
			Public("Authentication required.").
			Wrapf(ErrUnauthorized, "authentication required")
	}
	roles, err := e.roles.RolesForUser(ctx, caller.UserID)
	if err != nil {
		return oops.Code("AUTHZ_FAILED").
			With("operation", "get caller roles").
			With("user_id", caller.UserID.String()).
			Wrap(err)
	}
	if !e.access.Allowed(roles, perm) {
		e.logger.WarnContext(ctx, "permission denied",
			"user_id", caller.UserID.String(),
			"permission", perm)
		return oops.Code("AUTH_FORBIDDEN").
			With("permission", perm).
			Public("You do not have permission to perform this action.").
			Wrapf(ErrForbidden, "missing permission %s", perm)
	}
	return nil
}

func parseID(raw, notFoundCode, public string) (ulid.ULID, error) {
	id, err := ulid.ParseStrict(strings.TrimSpace(raw))
	if err != nil {
		// An unparseable ID cannot name an existing entity.
		return ulid.ULID{}, oops.Code(notFoundCode).
			With("id", raw).
			Public(public).
			Wrap(ErrNotFound)
	}
	return id, nil
}

func roleError(err error, code string, roleID ulid.ULID) error {
	if errors.Is(err, ErrNotFound) {
		public := "Role not found."
		if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == "USER_NOT_FOUND" {
			public = "User not found."
		}
		return oops.Public(public).Wrap(err)
	}
	return oops.Code(code).With("role_id", roleID.String()).Wrap(err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("auth.error_kind", KindOf(err).String()))
		span.SetStatus(codes.Error, KindOf(err).String())
	}
	span.End()
}
