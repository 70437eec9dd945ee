// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/holomush/warden/internal/api"
	"github.com/holomush/warden/internal/config"
	"github.com/holomush/warden/internal/observability"
	"github.com/holomush/warden/internal/revocation"
	"github.com/holomush/warden/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConfigLoader builds the process configuration.
	// Default: config.Load
	ConfigLoader func(opts config.Options) (*config.Config, error)

	// PoolFactory connects to PostgreSQL.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, url string, retries uint64) (*pgxpool.Pool, error)

	// RedisClientFactory creates the client behind the redis deny-list.
	// Default: revocation.NewRedisClient
	RedisClientFactory func(addr string, db int) (*redis.Client, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the API server.
	// Default: api.NewServer
	APIServerFactory func(addr string, handler http.Handler, opts ...api.ServerOption) APIServer
}

// ObservabilityServer is the subset of *observability.Server used by serve.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registry() *prometheus.Registry
	Metrics() *observability.Metrics
}

// APIServer is the subset of *api.Server used by serve.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.ConfigLoader == nil {
		out.ConfigLoader = config.Load
	}
	if out.PoolFactory == nil {
		out.PoolFactory = store.Connect
	}
	if out.RedisClientFactory == nil {
		out.RedisClientFactory = revocation.NewRedisClient
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(addr string, handler http.Handler, opts ...api.ServerOption) APIServer {
			return api.NewServer(addr, handler, opts...)
		}
	}
	return &out
}
