// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package revocation

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// DefaultKeyPrefix namespaces deny-list keys in a shared Redis.
const DefaultKeyPrefix = "warden:revoked:"

// RedisDenyList stores revoked token IDs in Redis with a TTL matching the
// token's remaining lifetime, so every replica sees the same list.
type RedisDenyList struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// RedisOption configures a RedisDenyList.
type RedisOption func(*RedisDenyList)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisDenyList) { r.prefix = prefix }
}

// WithClock overrides the time source used to compute TTLs.
func WithClock(now func() time.Time) RedisOption {
	return func(r *RedisDenyList) { r.now = now }
}

// NewRedisDenyList wraps an existing client. The caller owns the client.
func NewRedisDenyList(client redis.Cmdable, opts ...RedisOption) *RedisDenyList {
	r := &RedisDenyList{client: client, prefix: DefaultKeyPrefix, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisClient builds a client from an address or redis:// URL.
func NewRedisClient(addr string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Errorf("redis address is required")
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, oops.Code("REDIS_CONFIG_INVALID").Wrap(err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, DB: db}), nil
}

// Revoke sets the token's key with an expiry at until.
func (r *RedisDenyList) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return oops.Code("REVOCATION_INVALID").Errorf("token id is required")
	}
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.prefix+tokenID, 1, ttl).Err(); err != nil {
		return oops.Code("REVOCATION_WRITE_FAILED").
			With("operation", "revoke token").
			Wrap(err)
	}
	return nil
}

// IsRevoked reports whether the token's key exists.
func (r *RedisDenyList) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+tokenID).Result()
	if err != nil {
		return false, oops.Code("REVOCATION_READ_FAILED").
			With("operation", "check token").
			Wrap(err)
	}
	return n > 0, nil
}

// Ping checks connectivity.
func (r *RedisDenyList) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return oops.Code("REVOCATION_UNAVAILABLE").Wrap(err)
	}
	return nil
}

var _ auth.TokenDenyList = (*RedisDenyList)(nil)
