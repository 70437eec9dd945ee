// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the credential and token issuance engine for Warden.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser - creates a User with a fresh ID and a normalized email key
//   - NewRole - creates a Role with a fresh ID and a normalized name key
//
// Input validation (ValidateEmail, PasswordPolicy.Validate, ValidateRoleName)
// happens in Engine before a constructor is called. Repository
// implementations receive pre-validated types.
//
// # Components
//
//   - PasswordHasher - argon2id hashing with constant-time verification
//   - TokenIssuer - HS256 access tokens with ordered, typed validation
//   - UserRepository / RoleRegistry - storage contracts (see the memory and
//     postgres subpackages)
//   - Engine - register, login, and role management
//
// # Errors
//
// Every error wraps one of the Err* sentinels or a *TokenError. Use KindOf
// to map an error to a transport status; only KindStoreUnavailable is
// retryable.
package auth
