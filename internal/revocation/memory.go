// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package revocation

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// DefaultCleanupInterval is how often expired entries are purged.
const DefaultCleanupInterval = time.Minute

// MemoryDenyList is a process-local deny-list. Entries do not survive a
// restart and are not shared between replicas.
type MemoryDenyList struct {
	c   *gocache.Cache
	now func() time.Time
}

// NewMemoryDenyList creates an in-memory deny-list.
func NewMemoryDenyList(cleanup time.Duration) *MemoryDenyList {
	if cleanup <= 0 {
		cleanup = DefaultCleanupInterval
	}
	return &MemoryDenyList{
		c:   gocache.New(gocache.NoExpiration, cleanup),
		now: time.Now,
	}
}

// Revoke records tokenID until the given time. Tokens already expired are
// ignored.
func (m *MemoryDenyList) Revoke(_ context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return oops.Code("REVOCATION_INVALID").Errorf("token id is required")
	}
	ttl := until.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	m.c.Set(tokenID, struct{}{}, ttl)
	return nil
}

// IsRevoked reports whether tokenID is on the list.
func (m *MemoryDenyList) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, found := m.c.Get(tokenID)
	return found, nil
}

// Len returns the number of live entries, including expired ones not yet purged.
func (m *MemoryDenyList) Len() int {
	return m.c.ItemCount()
}

var _ auth.TokenDenyList = (*MemoryDenyList)(nil)
