// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package revocation provides token deny-lists. A revoked token ID is
// remembered until the token would have expired on its own, after which
// the entry is dropped.
package revocation
