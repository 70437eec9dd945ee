// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token defaults.
const (
	// DefaultTokenTTL is the lifetime of an access token when none is configured.
	DefaultTokenTTL = time.Hour

	// ClockSkew is the tolerance applied to the not-before check, for
	// tokens minted by a host whose clock runs slightly ahead. Expiry is
	// checked strictly.
	ClockSkew = 5 * time.Second

	// MinSigningKeyLength is the shortest accepted HMAC key, in bytes.
	MinSigningKeyLength = 32
)

var tokenSigningMethod = jwt.SigningMethodHS256

// TokenConfig holds the immutable signing configuration.
type TokenConfig struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	TTL        time.Duration
}

// Claims are the JWT claims carried by an access token. Roles are a snapshot
// taken at issuance.
type Claims struct {
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenSubject is the identity encoded into a new token.
type TokenSubject struct {
	UserID ulid.ULID
	Email  string
	Name   string
	Roles  []string
}

// TokenIssuer mints and validates HS256 access tokens. It holds no mutable
// state and is safe for concurrent use.
type TokenIssuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

// TokenIssuerOption configures a TokenIssuer.
type TokenIssuerOption func(*TokenIssuer)

// WithClock overrides the time source used for issuance and validation.
func WithClock(now func() time.Time) TokenIssuerOption {
	return func(t *TokenIssuer) {
		t.now = now
	}
}

// NewTokenIssuer creates a TokenIssuer. The key is copied.
func NewTokenIssuer(cfg TokenConfig, opts ...TokenIssuerOption) (*TokenIssuer, error) {
	if len(cfg.SigningKey) < MinSigningKeyLength {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").
			With("min_length", MinSigningKeyLength).
			Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if cfg.Issuer == "" {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("audience is required")
	}
	if cfg.TTL < 0 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").With("ttl", cfg.TTL).Errorf("ttl cannot be negative")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTokenTTL
	}

	t := &TokenIssuer{
		key:      slices.Clone(cfg.SigningKey),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      time.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{tokenSigningMethod.Alg()}),
			// Claims are checked by Validate in a fixed order.
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// TTL returns the default token lifetime.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue mints a signed token for subject. A non-positive ttl uses the
// configured default.
func (t *TokenIssuer) Issue(subject TokenSubject, ttl time.Duration) (string, *Claims, error) {
	if ttl <= 0 {
		ttl = t.ttl
	}
	now := t.now()
	roles := slices.Clone(subject.Roles)
	if roles == nil {
		roles = []string{}
	}

	claims := &Claims{
		Email: subject.Email,
		Name:  subject.Name,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.UserID.String(),
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(tokenSigningMethod, claims).SignedString(t.key)
	if err != nil {
		return "", nil, oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, claims, nil
}

// Validate parses a token and checks, in order: signature, issuer, audience,
// expiry, and not-before. Failures are returned as *TokenError.
func (t *TokenIssuer) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	if _, err := t.parser.ParseWithClaims(token, claims, t.keyFunc); err != nil {
		return nil, tokenFailure(classifyParseError(err), err)
	}

	if claims.Issuer != t.issuer {
		return nil, tokenFailure(TokenIssuerMismatch, nil)
	}
	if !slices.Contains(claims.Audience, t.audience) {
		return nil, tokenFailure(TokenAudienceMismatch, nil)
	}

	now := t.now()
	if claims.ExpiresAt == nil {
		return nil, tokenFailure(TokenMalformed, errors.New("missing exp claim"))
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return nil, tokenFailure(TokenExpired, nil)
	}
	if claims.NotBefore != nil && now.Add(ClockSkew).Before(claims.NotBefore.Time) {
		return nil, tokenFailure(TokenNotYetValid, nil)
	}

	if _, err := ulid.Parse(claims.Subject); err != nil {
		return nil, tokenFailure(TokenMalformed, err)
	}
	return claims, nil
}

func (t *TokenIssuer) keyFunc(*jwt.Token) (any, error) {
	return t.key, nil
}

func classifyParseError(err error) TokenFailure {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return TokenBadSignature
	default:
		return TokenMalformed
	}
}

func tokenFailure(failure TokenFailure, cause error) error {
	return oops.Code("TOKEN_INVALID").
		With("reason", failure.String()).
		Public("Invalid or expired token.").
		Wrap(newTokenError(failure, cause))
}

// UserID returns the subject as a ULID. Claims returned by Validate always
// carry a parseable subject.
func (c *Claims) UserID() ulid.ULID {
	id, _ := ulid.Parse(c.Subject) //nolint:errcheck // checked in Validate
	return id
}
