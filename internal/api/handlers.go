// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/holomush/warden/internal/auth"
)

// Success messages.
const (
	msgAccountCreated = "Account Created Successfully!"
	msgLoginSuccess   = "Login Success."
	msgLoggedOut      = "Logged out"
	msgRoleCreated    = "Role Created successfully"
	msgRoleDeleted    = "Role deleted successfully."
	msgRoleAssigned   = "Role assigned successfully"
	msgRoleRevoked    = "Role revoked successfully"
)

// Service is the identity engine behind the HTTP surface. *auth.Engine
// implements it.
type Service interface {
	Register(ctx context.Context, caller *auth.Principal, in auth.RegisterInput) (auth.UserDetail, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
	Logout(ctx context.Context, caller *auth.Principal) error
	GetUserDetail(ctx context.Context, userID ulid.ULID) (auth.UserDetail, error)
	ListUsers(ctx context.Context) ([]auth.UserDetail, error)
	CreateRole(ctx context.Context, caller *auth.Principal, name string) (*auth.Role, error)
	DeleteRole(ctx context.Context, caller *auth.Principal, roleID string) error
	AssignRole(ctx context.Context, caller *auth.Principal, userID, roleID string) error
	RevokeRole(ctx context.Context, caller *auth.Principal, userID, roleID string) error
	ListRoles(ctx context.Context) ([]auth.RoleSummary, error)
}

var _ Service = (*auth.Engine)(nil)

type handlers struct {
	svc    Service
	logger *slog.Logger
}

type registerRequest struct {
	Email       string   `json:"email"`
	FullName    string   `json:"fullName"`
	PhoneNumber string   `json:"phoneNumber"`
	Password    string   `json:"password"`
	Roles       []string `json:"roles"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createRoleRequest struct {
	RoleName string `json:"roleName"`
}

type membershipRequest struct {
	UserID string `json:"userId"`
	RoleID string `json:"roleId"`
}

func (a *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	detail, err := a.svc.Register(r.Context(), PrincipalFrom(r.Context()), auth.RegisterInput{
		Email:       req.Email,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
		Roles:       req.Roles,
	})
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	resp := ok(msgAccountCreated)
	resp.ID = detail.ID
	writeJSON(w, http.StatusOK, resp)
}

func (a *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	result, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	resp := ok(msgLoginSuccess)
	resp.Token = result.Token
	resp.ExpiresAt = &result.ExpiresAt
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (a *handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Logout(r.Context(), PrincipalFrom(r.Context())); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ok(msgLoggedOut))
}

func (a *handlers) detail(w http.ResponseWriter, r *http.Request) {
	caller := PrincipalFrom(r.Context())
	detail, err := a.svc.GetUserDetail(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.svc.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	if users == nil {
		users = []auth.UserDetail{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *handlers) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	role, err := a.svc.CreateRole(r.Context(), PrincipalFrom(r.Context()), req.RoleName)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	resp := ok(msgRoleCreated)
	resp.ID = role.ID.String()
	writeJSON(w, http.StatusOK, resp)
}

func (a *handlers) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.svc.ListRoles(r.Context())
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	if roles == nil {
		roles = []auth.RoleSummary{}
	}
	writeJSON(w, http.StatusOK, roles)
}

func (a *handlers) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteRole(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ok(msgRoleDeleted))
}

func (a *handlers) assignRole(w http.ResponseWriter, r *http.Request) {
	a.membership(w, r, a.svc.AssignRole, msgRoleAssigned)
}

func (a *handlers) revokeRole(w http.ResponseWriter, r *http.Request) {
	a.membership(w, r, a.svc.RevokeRole, msgRoleRevoked)
}

func (a *handlers) membership(
	w http.ResponseWriter,
	r *http.Request,
	change func(context.Context, *auth.Principal, string, string) error,
	message string,
) {
	var req membershipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	if err := change(r.Context(), PrincipalFrom(r.Context()), req.UserID, req.RoleID); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ok(message))
}
