// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"net/mail"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Field limits.
const (
	MaxEmailLength    = 254
	MaxFullNameLength = 128
	MaxPhoneLength    = 32
	MaxRoleNameLength = 64
)

// FieldErrors maps a request field to the rules it violated.
type FieldErrors map[string][]string

// Add records a violation for field.
func (f FieldErrors) Add(field string, reasons ...string) {
	f[field] = append(f[field], reasons...)
}

// Err returns a validation error carrying f, or nil if f is empty.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return oops.Code("AUTH_INVALID_INPUT").
		Public("One or more fields are invalid.").
		Wrap(&ValidationError{Fields: f})
}

// ValidationError carries field-level detail and unwraps to ErrValidation.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("validation failed")
	for i, field := range fields {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(field)
		b.WriteString(" ")
		b.WriteString(strings.Join(e.Fields[field], ","))
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NormalizeEmail returns the case-insensitive comparison key for an email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail returns the violated rules for an email address.
func ValidateEmail(email string) []string {
	email = strings.TrimSpace(email)
	if email == "" {
		return []string{"required"}
	}
	if len(email) > MaxEmailLength {
		return []string{"too_long"}
	}
	addr, err := mail.ParseAddress(email)
	// ParseAddress accepts "Name <a@b>"; only a bare address is allowed here.
	if err != nil || addr.Address != email || !strings.Contains(email, "@") {
		return []string{"invalid_format"}
	}
	return nil
}

// ValidateFullName returns the violated rules for a display name.
func ValidateFullName(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return []string{"required"}
	}
	if utf8.RuneCountInString(name) > MaxFullNameLength {
		return []string{"too_long"}
	}
	return nil
}

// ValidatePhoneNumber returns the violated rules for an optional phone number.
func ValidatePhoneNumber(phone string) []string {
	if phone == "" {
		return nil
	}
	if len(phone) > MaxPhoneLength {
		return []string{"too_long"}
	}
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9', r == ' ', r == '-', r == '(', r == ')', r == '.':
		case r == '+' && i == 0:
		default:
			return []string{"invalid_format"}
		}
	}
	return nil
}

// ValidateRoleName validates a role name and returns it trimmed.
func ValidateRoleName(name string) (string, error) {
	name = strings.TrimSpace(name)
	fields := FieldErrors{}
	switch {
	case name == "":
		return "", oops.Code("ROLE_NAME_REQUIRED").
			Public("Role name is required").
			Wrap(&ValidationError{Fields: FieldErrors{"roleName": {"required"}}})
	case utf8.RuneCountInString(name) > MaxRoleNameLength:
		fields.Add("roleName", "too_long")
	case strings.ContainsFunc(name, func(r rune) bool { return r < 0x20 || r == 0x7f }):
		fields.Add("roleName", "invalid_format")
	}
	if err := fields.Err(); err != nil {
		return "", err
	}
	return name, nil
}
