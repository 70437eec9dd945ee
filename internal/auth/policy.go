// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"unicode"
	"unicode/utf8"
)

// Password rule violations reported by PasswordPolicy.Validate.
const (
	PasswordTooShort       = "too_short"
	PasswordTooLong        = "too_long"
	PasswordMissingUpper   = "missing_upper"
	PasswordMissingLower   = "missing_lower"
	PasswordMissingDigit   = "missing_digit"
	PasswordMissingSymbol  = "missing_symbol"
	PasswordTooFewDistinct = "too_few_unique_chars"
)

// MaxPasswordLength bounds the work a single hash call can be asked to do.
const MaxPasswordLength = 256

// PasswordPolicy describes the character-class and length rules enforced at
// registration.
type PasswordPolicy struct {
	MinLength           int
	RequireUpper        bool
	RequireLower        bool
	RequireDigit        bool
	RequireSymbol       bool
	RequiredUniqueChars int
}

// DefaultPasswordPolicy requires six characters drawn from all four classes.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:           6,
		RequireUpper:        true,
		RequireLower:        true,
		RequireDigit:        true,
		RequireSymbol:       true,
		RequiredUniqueChars: 1,
	}
}

// Validate returns every rule the password violates, or nil.
func (p PasswordPolicy) Validate(password string) []string {
	var reasons []string

	n := utf8.RuneCountInString(password)
	if n < p.MinLength {
		reasons = append(reasons, PasswordTooShort)
	}
	if n > MaxPasswordLength {
		reasons = append(reasons, PasswordTooLong)
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	seen := make(map[rune]struct{}, n)
	for _, r := range password {
		seen[r] = struct{}{}
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsSpace(r):
			hasSymbol = true
		}
	}

	if p.RequireUpper && !hasUpper {
		reasons = append(reasons, PasswordMissingUpper)
	}
	if p.RequireLower && !hasLower {
		reasons = append(reasons, PasswordMissingLower)
	}
	if p.RequireDigit && !hasDigit {
		reasons = append(reasons, PasswordMissingDigit)
	}
	if p.RequireSymbol && !hasSymbol {
		reasons = append(reasons, PasswordMissingSymbol)
	}
	if len(seen) < p.RequiredUniqueChars {
		reasons = append(reasons, PasswordTooFewDistinct)
	}
	return reasons
}
