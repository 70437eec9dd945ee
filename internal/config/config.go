// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the process configuration.
//
// Settings come from, in increasing precedence: built-in defaults, a YAML
// file, and command-line flags that were explicitly set. Secrets are never
// read from the file; they come from the environment, optionally seeded
// from a .env file.
package config

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/warden/internal/auth"
)

// Environment variables holding secrets.
const (
	EnvSigningKey  = "WARDEN_SIGNING_KEY"
	EnvDatabaseURL = "DATABASE_URL"
	EnvRedisURL    = "REDIS_URL"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Revocation backends.
const (
	RevocationNone   = "none"
	RevocationMemory = "memory"
	RevocationRedis  = "redis"
)

// Config is the validated process configuration. Treat it as read-only
// after Load returns.
type Config struct {
	HTTP       HTTPConfig       `koanf:"http"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Log        LogConfig        `koanf:"log"`
	Store      StoreConfig      `koanf:"store"`
	Token      TokenConfig      `koanf:"token"`
	Password   PasswordConfig   `koanf:"password"`
	Lockout    LockoutConfig    `koanf:"lockout"`
	Revocation RevocationConfig `koanf:"revocation"`
	Redis      RedisConfig      `koanf:"redis"`
	Policy     PolicyConfig     `koanf:"policy"`

	// Secrets, populated from the environment only.
	SigningKey  []byte `koanf:"-"`
	DatabaseURL string `koanf:"-"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr         string        `koanf:"addr"`
	BasePath     string        `koanf:"base_path"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures the default logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// StoreConfig selects the credential store.
type StoreConfig struct {
	Backend        string `koanf:"backend"`
	ConnectRetries uint64 `koanf:"connect_retries"`
}

// TokenConfig configures access tokens.
type TokenConfig struct {
	Issuer   string        `koanf:"issuer"`
	Audience string        `koanf:"audience"`
	TTL      time.Duration `koanf:"ttl"`
}

// PasswordConfig mirrors auth.PasswordPolicy.
type PasswordConfig struct {
	MinLength           int  `koanf:"min_length"`
	RequireDigit        bool `koanf:"require_digit"`
	RequireLower        bool `koanf:"require_lower"`
	RequireUpper        bool `koanf:"require_upper"`
	RequireSymbol       bool `koanf:"require_symbol"`
	RequiredUniqueChars int  `koanf:"required_unique_chars"`
}

// LockoutConfig mirrors auth.LockoutPolicy.
type LockoutConfig struct {
	Threshold int           `koanf:"threshold"`
	Duration  time.Duration `koanf:"duration"`
}

// RevocationConfig selects the token deny-list.
type RevocationConfig struct {
	Backend string `koanf:"backend"`
}

// RedisConfig locates the Redis server. REDIS_URL overrides Addr.
type RedisConfig struct {
	Addr string `koanf:"addr"`
	DB   int    `koanf:"db"`
}

// PolicyConfig locates the access policy file. Empty means built-in roles.
type PolicyConfig struct {
	File string `koanf:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	pw := auth.DefaultPasswordPolicy()
	lockout := auth.DefaultLockoutPolicy()
	return Config{
		HTTP: HTTPConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Store: StoreConfig{
			Backend:        BackendMemory,
			ConnectRetries: 5,
		},
		Token: TokenConfig{
			Issuer:   "warden",
			Audience: "warden-clients",
			TTL:      auth.DefaultTokenTTL,
		},
		Password: PasswordConfig{
			MinLength:           pw.MinLength,
			RequireDigit:        pw.RequireDigit,
			RequireLower:        pw.RequireLower,
			RequireUpper:        pw.RequireUpper,
			RequireSymbol:       pw.RequireSymbol,
			RequiredUniqueChars: pw.RequiredUniqueChars,
		},
		Lockout: LockoutConfig{
			Threshold: lockout.Threshold,
			Duration:  lockout.Duration,
		},
		Revocation: RevocationConfig{Backend: RevocationMemory},
		Redis:      RedisConfig{Addr: "127.0.0.1:6379"},
	}
}

// Validate checks the configuration. All problems are reported together.
func (c *Config) Validate() error {
	var problems []string
	add := func(p string) { problems = append(problems, p) }

	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}
	if c.HTTP.BasePath != "" && (!strings.HasPrefix(c.HTTP.BasePath, "/") || strings.HasSuffix(c.HTTP.BasePath, "/")) {
		add("http.base_path must start with '/' and not end with '/'")
	}
	if c.HTTP.ReadTimeout < 0 || c.HTTP.WriteTimeout < 0 {
		add("http timeouts cannot be negative")
	}
	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		add("log.format must be 'json' or 'text'")
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		add("log.level must be one of debug, info, warn, error")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			add(EnvDatabaseURL + " is required for the postgres store")
		}
	default:
		add("store.backend must be 'memory' or 'postgres'")
	}
	if c.Token.Issuer == "" {
		add("token.issuer is required")
	}
	if c.Token.Audience == "" {
		add("token.audience is required")
	}
	if c.Token.TTL <= 0 {
		add("token.ttl must be positive")
	}
	if len(c.SigningKey) < auth.MinSigningKeyLength {
		add(EnvSigningKey + " must be at least 32 bytes")
	}
	if c.Password.MinLength < 1 || c.Password.MinLength > auth.MaxPasswordLength {
		add("password.min_length out of range")
	}
	if c.Password.RequiredUniqueChars < 0 {
		add("password.required_unique_chars cannot be negative")
	}
	if c.Lockout.Threshold < 0 {
		add("lockout.threshold cannot be negative")
	}
	if c.Lockout.Threshold > 0 && c.Lockout.Duration <= 0 {
		add("lockout.duration must be positive when lockout is enabled")
	}
	switch c.Revocation.Backend {
	case RevocationNone, RevocationMemory:
	case RevocationRedis:
		if c.Redis.Addr == "" {
			add("redis.addr is required for the redis deny-list")
		}
	default:
		add("revocation.backend must be 'none', 'memory' or 'redis'")
	}

	if len(problems) > 0 {
		return oops.Code("CONFIG_INVALID").
			With("problems", problems).
			Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// PasswordPolicy converts the password section.
func (c *Config) PasswordPolicy() auth.PasswordPolicy {
	return auth.PasswordPolicy{
		MinLength:           c.Password.MinLength,
		RequireUpper:        c.Password.RequireUpper,
		RequireLower:        c.Password.RequireLower,
		RequireDigit:        c.Password.RequireDigit,
		RequireSymbol:       c.Password.RequireSymbol,
		RequiredUniqueChars: c.Password.RequiredUniqueChars,
	}
}

// LockoutPolicy converts the lockout section.
func (c *Config) LockoutPolicy() auth.LockoutPolicy {
	return auth.LockoutPolicy{Threshold: c.Lockout.Threshold, Duration: c.Lockout.Duration}
}

// TokenIssuerConfig combines the token section with the signing key.
func (c *Config) TokenIssuerConfig() auth.TokenConfig {
	return auth.TokenConfig{
		SigningKey: c.SigningKey,
		Issuer:     c.Token.Issuer,
		Audience:   c.Token.Audience,
		TTL:        c.Token.TTL,
	}
}
