// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/warden/internal/access"
	"github.com/holomush/warden/internal/api"
	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/auth/memory"
	"github.com/holomush/warden/internal/auth/postgres"
	"github.com/holomush/warden/internal/config"
	"github.com/holomush/warden/internal/logging"
	"github.com/holomush/warden/internal/observability"
	"github.com/holomush/warden/internal/revocation"
	"github.com/holomush/warden/internal/store"
	"github.com/holomush/warden/internal/xdg"
)

const (
	serviceName      = "warden"
	shutdownTimeout  = 5 * time.Second
	readinessTimeout = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the identity API server",
		Long: `Start the HTTP API together with the metrics and health endpoints.
Settings come from the config file, overridden by flags; secrets come
from the environment (WARDEN_SIGNING_KEY, DATABASE_URL, REDIS_URL).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// backend is an opened credential store.
type backend struct {
	users auth.UserRepository
	roles auth.RoleRegistry
	ready observability.ReadinessChecker
	close func()

	// seed is set for stores that start empty on every run.
	seed bool
}

func openBackend(ctx context.Context, cfg *config.Config, deps *ServeDeps) (*backend, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := deps.PoolFactory(ctx, cfg.DatabaseURL, cfg.Store.ConnectRetries)
		if err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
		}
		return &backend{
			users: postgres.NewUserRepository(pool),
			roles: postgres.NewRoleRepository(pool),
			ready: store.ReadinessCheck(pool, readinessTimeout),
			close: pool.Close,
		}, nil
	default:
		s := memory.NewStore()
		return &backend{
			users: s,
			roles: s,
			ready: func() bool { return true },
			close: func() {},
			seed:  true,
		}, nil
	}
}

// openDenyList returns a nil list when revocation is disabled.
func openDenyList(cfg *config.Config, deps *ServeDeps) (auth.TokenDenyList, observability.ReadinessChecker, func(), error) {
	always := func() bool { return true }
	switch cfg.Revocation.Backend {
	case config.RevocationMemory:
		return revocation.NewMemoryDenyList(0), always, func() {}, nil
	case config.RevocationRedis:
		client, err := deps.RedisClientFactory(cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			return nil, nil, nil, err
		}
		list := revocation.NewRedisDenyList(client)
		ready := func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
			defer cancel()
			return list.Ping(ctx) == nil
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				slog.Debug("error closing redis client", "error", err)
			}
		}
		return list, ready, closeFn, nil
	default:
		return nil, always, func() {}, nil
	}
}

func loadPolicy(path string) (*access.Policy, error) {
	if path == "" {
		return access.DefaultPolicy(), nil
	}
	return access.LoadPolicy(path)
}

// seedRoleNames lists the built-in roles followed by any other role the
// policy grants permissions to.
func seedRoleNames(policy *access.Policy) []string {
	names := []string{auth.RoleUser, auth.RoleAdmin}
	builtin := map[string]bool{
		auth.NormalizeRoleName(auth.RoleUser):  true,
		auth.NormalizeRoleName(auth.RoleAdmin): true,
	}
	for _, role := range policy.Roles() {
		if !builtin[auth.NormalizeRoleName(role)] {
			names = append(names, role)
		}
	}
	return names
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	cfg, err := deps.ConfigLoader(config.Options{
		File:        configFile,
		EnvFile:     envFile,
		Flags:       cmd.Flags(),
		DefaultFile: xdg.ConfigFile,
	})
	if err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
	})

	logger.Info("starting warden",
		"http_addr", cfg.HTTP.Addr,
		"store", cfg.Store.Backend,
		"revocation", cfg.Revocation.Backend,
	)

	policy, err := loadPolicy(cfg.Policy.File)
	if err != nil {
		return oops.Code("POLICY_LOAD_FAILED").With("path", cfg.Policy.File).Wrap(err)
	}

	be, err := openBackend(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer be.close()

	denyList, denyReady, closeDenyList, err := openDenyList(cfg, deps)
	if err != nil {
		return oops.Code("REVOCATION_SETUP_FAILED").Wrap(err)
	}
	defer closeDenyList()

	tokens, err := auth.NewTokenIssuer(cfg.TokenIssuerConfig())
	if err != nil {
		return oops.Code("TOKEN_ISSUER_FAILED").Wrap(err)
	}

	engine, err := auth.NewEngine(auth.EngineDeps{
		Users:    be.users,
		Roles:    be.roles,
		Hasher:   auth.NewArgon2idHasher(),
		Tokens:   tokens,
		Access:   policy,
		DenyList: denyList,
		Logger:   logger,
	}, auth.EngineConfig{
		PasswordPolicy:            cfg.PasswordPolicy(),
		Lockout:                   cfg.LockoutPolicy(),
		DefaultRole:               auth.RoleUser,
		AnonymousRoleCreate:       policy.AnonymousRoleCreate(),
		RestrictRegistrationRoles: policy.RestrictRegistrationRoles(),
	})
	if err != nil {
		return err
	}

	if be.seed {
		if err := engine.EnsureRoles(ctx, seedRoleNames(policy)...); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metrics *observability.Metrics
	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, func() bool {
			return be.ready() && denyReady()
		})
		auth.RegisterMetrics(obsServer.Registry())
		metrics = obsServer.Metrics()

		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	router := api.NewRouter(engine, api.RouterConfig{
		BasePath: cfg.HTTP.BasePath,
		Logger:   logger,
		Metrics:  metrics,
	})
	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, router,
		api.WithTimeouts(cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout),
		api.WithLogger(logger),
	)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopObservability(obsServer)
		return oops.Code("API_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Warden started")
	logger.Info("warden ready", "http_addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	stopObservability(obsServer)

	logger.Info("shutdown complete")
	return nil
}

func stopObservability(s ObservabilityServer) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error arrives, the channel closes, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
