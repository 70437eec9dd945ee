// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/pkg/errutil"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// envelope is the body of every mutation response and every error.
type envelope struct {
	IsSuccess bool             `json:"isSuccess"`
	Message   string           `json:"message"`
	ID        string           `json:"id,omitempty"`
	Token     string           `json:"token,omitempty"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
	Errors    auth.FieldErrors `json:"errors,omitempty"`
}

func ok(message string) envelope {
	return envelope{IsSuccess: true, Message: message}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away; nothing useful to do
	json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a single JSON object into dst. Malformed bodies become
// validation errors on the "body" field.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		reason := "must be a JSON object"
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			reason = "too large"
		case errors.Is(err, io.EOF):
			reason = "is required"
		}
		return auth.FieldErrors{"body": {reason}}.Err()
	}
	if dec.More() {
		return auth.FieldErrors{"body": {"must contain a single JSON object"}}.Err()
	}
	return nil
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation, auth.KindDuplicate:
		return http.StatusBadRequest
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindInvalidCredentials, auth.KindUnauthorized, auth.KindToken:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// defaultMessage is used when an error carries no public message.
func defaultMessage(kind auth.Kind) string {
	switch kind {
	case auth.KindValidation:
		return "One or more fields are invalid."
	case auth.KindDuplicate:
		return "Resource already exists."
	case auth.KindNotFound:
		return "Not found."
	case auth.KindInvalidCredentials:
		return "Invalid email or password."
	case auth.KindUnauthorized:
		return "Authentication required."
	case auth.KindForbidden:
		return "You do not have permission to perform this action."
	case auth.KindToken:
		return "Invalid or expired token."
	case auth.KindStoreUnavailable:
		return "Service temporarily unavailable. Please retry."
	default:
		return "Internal server error."
	}
}

// writeError maps err to a status and body. Only public messages and field
// details reach the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := auth.KindOf(err)
	status := statusFor(kind)

	body := envelope{Message: defaultMessage(kind)}
	if kind != auth.KindInternal {
		body.Message = oops.GetPublic(err, body.Message)
	}
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		body.Errors = verr.Fields
	}
	var tokenErr *auth.TokenError
	if errors.As(err, &tokenErr) {
		body.Message = tokenMessage(tokenErr)
	}

	switch status {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", challenge(err))
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	}

	level := slog.LevelDebug
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	errutil.Log(r.Context(), logger, level, "request failed", err,
		"status", status,
		"kind", kind.String(),
		"path", r.URL.Path,
	)

	writeJSON(w, status, body)
}

// tokenMessage tells the client whether logging in again will help.
func tokenMessage(err *auth.TokenError) string {
	if err.Refreshable() {
		return "Session expired. Please log in again."
	}
	return "Invalid token."
}

// challenge builds the WWW-Authenticate value for a 401. Refreshable
// failures say so in the description; others are rejected outright.
func challenge(err error) string {
	var tokenErr *auth.TokenError
	if !errors.As(err, &tokenErr) {
		return `Bearer realm="warden"`
	}
	if tokenErr.Refreshable() {
		return fmt.Sprintf(`Bearer realm="warden", error="invalid_token", error_description="token %s, log in again"`, tokenErr.Failure)
	}
	return fmt.Sprintf(`Bearer realm="warden", error="invalid_token", error_description="token %s"`, tokenErr.Failure)
}
