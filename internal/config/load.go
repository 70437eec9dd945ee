// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"http-addr":       "http.addr",
	"base-path":       "http.base_path",
	"metrics-addr":    "metrics.addr",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"store":           "store.backend",
	"connect-retries": "store.connect_retries",
	"revocation":      "revocation.backend",
	"redis-addr":      "redis.addr",
	"policy":          "policy.file",
	"token-ttl":       "token.ttl",
}

// RegisterFlags adds the overridable settings to fs. Flag defaults match
// Default().
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.String("base-path", d.HTTP.BasePath, "path prefix for every API route (e.g. /api)")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("store", d.Store.Backend, "credential store backend (memory or postgres)")
	fs.Uint64("connect-retries", d.Store.ConnectRetries, "database connection attempts at startup")
	fs.String("revocation", d.Revocation.Backend, "token deny-list backend (none, memory or redis)")
	fs.String("redis-addr", d.Redis.Addr, "redis address for the redis deny-list")
	fs.String("policy", d.Policy.File, "access policy file (empty = built-in roles)")
	fs.Duration("token-ttl", d.Token.TTL, "access token lifetime")
}

// Options controls where Load reads from.
type Options struct {
	// File is the YAML config path. If empty, DefaultFile is tried and a
	// missing file is not an error.
	File string

	// EnvFile is an optional .env file loaded into the process environment.
	// Variables already set are not overridden.
	EnvFile string

	// Flags are the parsed command-line flags, if any.
	Flags *pflag.FlagSet

	// Getenv reads secrets. Defaults to os.Getenv.
	Getenv func(string) string

	// DefaultFile returns the fallback config path.
	DefaultFile func() (string, error)
}

// Load builds and validates a Config.
func Load(opts Options) (*Config, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_ENV_FILE_FAILED").With("path", opts.EnvFile).Wrap(err)
		}
	}

	k := koanf.New(".")

	path, explicit := opts.File, opts.File != ""
	if !explicit && opts.DefaultFile != nil {
		p, err := opts.DefaultFile()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
			}
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}

	cfg.SigningKey = []byte(opts.Getenv(EnvSigningKey))
	cfg.DatabaseURL = opts.Getenv(EnvDatabaseURL)
	if url := opts.Getenv(EnvRedisURL); url != "" {
		cfg.Redis.Addr = url
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
