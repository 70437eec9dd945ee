// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
)

// Error kinds. Every error returned by this package and its store
// implementations wraps exactly one of these sentinels (or a *TokenError),
// so callers classify with errors.Is / KindOf instead of matching codes.
var (
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicate is returned when an email or role name already exists.
	ErrDuplicate = errors.New("already exists")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is returned for any failed login. Unknown email
	// and wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is returned when a request carries no usable identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller lacks a required permission.
	ErrForbidden = errors.New("forbidden")

	// ErrStoreUnavailable is returned for transient persistence failures.
	// It is the only retryable kind.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Kind classifies an error for transport mapping.
type Kind int

// Error kinds in the order they are checked by KindOf.
const (
	KindInternal Kind = iota
	KindValidation
	KindDuplicate
	KindNotFound
	KindInvalidCredentials
	KindUnauthorized
	KindForbidden
	KindToken
	KindStoreUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindToken:
		return "token"
	case KindStoreUnavailable:
		return "store_unavailable"
	default:
		return "internal"
	}
}

// Retryable reports whether the same request may succeed if repeated.
func (k Kind) Retryable() bool {
	return k == KindStoreUnavailable
}

// KindOf returns the kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var tokenErr *TokenError
	switch {
	case errors.As(err, &tokenErr):
		return KindToken
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrDuplicate):
		return KindDuplicate
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	default:
		return KindInternal
	}
}

// TokenFailure identifies why a token was rejected.
type TokenFailure int

// Token failure reasons.
const (
	TokenMalformed TokenFailure = iota + 1
	TokenBadSignature
	TokenIssuerMismatch
	TokenAudienceMismatch
	TokenExpired
	TokenNotYetValid
	TokenRevoked
)

func (f TokenFailure) String() string {
	switch f {
	case TokenMalformed:
		return "malformed"
	case TokenBadSignature:
		return "bad signature"
	case TokenIssuerMismatch:
		return "issuer mismatch"
	case TokenAudienceMismatch:
		return "audience mismatch"
	case TokenExpired:
		return "expired"
	case TokenNotYetValid:
		return "not yet valid"
	case TokenRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// TokenError is returned by token validation.
type TokenError struct {
	Failure TokenFailure
	cause   error
}

// Sentinel token errors for use with errors.Is.
var (
	ErrTokenMalformed        = &TokenError{Failure: TokenMalformed}
	ErrTokenBadSignature     = &TokenError{Failure: TokenBadSignature}
	ErrTokenIssuerMismatch   = &TokenError{Failure: TokenIssuerMismatch}
	ErrTokenAudienceMismatch = &TokenError{Failure: TokenAudienceMismatch}
	ErrTokenExpired          = &TokenError{Failure: TokenExpired}
	ErrTokenNotYetValid      = &TokenError{Failure: TokenNotYetValid}
	ErrTokenRevoked          = &TokenError{Failure: TokenRevoked}
)

func newTokenError(failure TokenFailure, cause error) *TokenError {
	return &TokenError{Failure: failure, cause: cause}
}

func (e *TokenError) Error() string {
	if e.cause != nil {
		return "token " + e.Failure.String() + ": " + e.cause.Error()
	}
	return "token " + e.Failure.String()
}

func (e *TokenError) Unwrap() error {
	return e.cause
}

// Is matches any *TokenError with the same failure reason.
func (e *TokenError) Is(target error) bool {
	t, ok := target.(*TokenError)
	return ok && t.Failure == e.Failure
}

// Refreshable reports whether a fresh login would fix the failure.
// Expired and revoked tokens are refreshable; tampered ones are not.
func (e *TokenError) Refreshable() bool {
	return e.Failure == TokenExpired || e.Failure == TokenRevoked
}
