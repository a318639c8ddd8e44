// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SmallLogin Contributors

// Package config loads the service configuration from defaults, an optional
// YAML file, the environment and command-line flags, in that order.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/smalllogin/smalllogin/internal/credential"
	"github.com/smalllogin/smalllogin/internal/password"
)

// Backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

// Default values.
const (
	DefaultAddr              = ":8080"
	DefaultMetricsAddr       = "127.0.0.1:9100"
	DefaultLandingPath       = "/"
	DefaultSessionCookieName = "smalllogin_session"
	DefaultRememberCookie    = "username"
	DefaultSessionLifetime   = 24 * time.Hour
	DefaultRememberLifetime  = 7 * 24 * time.Hour
	DefaultRedisAddr         = "127.0.0.1:6379"
	DefaultLogFormat         = "json"
	DefaultLogLevel          = "info"
)

// DatabaseURLEnv overrides database.url when set.
const DatabaseURLEnv = "DATABASE_URL"

// Config is the complete service configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server" json:"server,omitempty" jsonschema:"description=HTTP listener settings"`
	Session      SessionConfig      `koanf:"session" json:"session,omitempty"`
	Registration RegistrationConfig `koanf:"registration" json:"registration,omitempty"`
	Password     PasswordConfig     `koanf:"password" json:"password,omitempty"`
	Store        StoreConfig        `koanf:"store" json:"store,omitempty"`
	Database     DatabaseConfig     `koanf:"database" json:"database,omitempty"`
	Redis        RedisConfig        `koanf:"redis" json:"redis,omitempty"`
	Log          LogConfig          `koanf:"log" json:"log,omitempty"`
	Metrics      MetricsConfig      `koanf:"metrics" json:"metrics,omitempty"`
	// Debug adds raw error text to fatal responses. Never enable in production.
	Debug bool `koanf:"debug" json:"debug,omitempty" jsonschema:"description=Expose raw error text on fatal responses"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr        string `koanf:"addr" json:"addr,omitempty" jsonschema:"description=Listen address in host:port form"`
	LandingPath string `koanf:"landing_path" json:"landing_path,omitempty" jsonschema:"description=Redirect target after logout"`
	TLSCert     string `koanf:"tls_cert" json:"tls_cert,omitempty"`
	TLSKey      string `koanf:"tls_key" json:"tls_key,omitempty"`
	// SecureCookies forces the Secure cookie attribute behind a TLS-terminating proxy.
	SecureCookies bool `koanf:"secure_cookies" json:"secure_cookies,omitempty"`
}

// SessionConfig configures session and remember-me cookies.
type SessionConfig struct {
	Backend          string        `koanf:"backend" json:"backend,omitempty" jsonschema:"enum=postgres,enum=redis,enum=memory"`
	CookieName       string        `koanf:"cookie_name" json:"cookie_name,omitempty"`
	RememberCookie   string        `koanf:"remember_cookie" json:"remember_cookie,omitempty"`
	Lifetime         time.Duration `koanf:"lifetime" json:"lifetime,omitempty" jsonschema:"type=string,description=Session lifetime such as 24h"`
	RememberLifetime time.Duration `koanf:"remember_lifetime" json:"remember_lifetime,omitempty" jsonschema:"type=string,description=Remember-me lifetime such as 168h"`
	// Remember enables remember-me cookies.
	Remember bool `koanf:"remember" json:"remember,omitempty"`
}

// RegistrationConfig configures the registration form.
type RegistrationConfig struct {
	Fields []string `koanf:"fields" json:"fields,omitempty" jsonschema:"description=Registration fields; must match the user table columns"`
}

// PasswordConfig configures hashing and the strength policy.
type PasswordConfig struct {
	EnforcePolicy bool   `koanf:"enforce_policy" json:"enforce_policy,omitempty" jsonschema:"description=Reject registrations whose password fails the strength policy"`
	Algorithm     string `koanf:"algorithm" json:"algorithm,omitempty" jsonschema:"enum=argon2id,enum=bcrypt"`
}

// StoreConfig selects the user store.
type StoreConfig struct {
	Backend string `koanf:"backend" json:"backend,omitempty" jsonschema:"enum=postgres,enum=memory"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL         string        `koanf:"url" json:"url,omitempty"`
	MaxConns    int32         `koanf:"max_conns" json:"max_conns,omitempty" jsonschema:"minimum=0"`
	MaxIdleTime time.Duration `koanf:"max_idle_time" json:"max_idle_time,omitempty" jsonschema:"type=string"`
	// AutoMigrate applies pending session table migrations when serving.
	AutoMigrate bool `koanf:"auto_migrate" json:"auto_migrate,omitempty"`
}

// RedisConfig configures the redis session backend.
type RedisConfig struct {
	Addr     string `koanf:"addr" json:"addr,omitempty"`
	Password string `koanf:"password" json:"password,omitempty"`
	DB       int    `koanf:"db" json:"db,omitempty" jsonschema:"minimum=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// MetricsConfig configures the observability listener.
type MetricsConfig struct {
	// Addr is the metrics and health listener; empty disables it.
	Addr string `koanf:"addr" json:"addr,omitempty"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        DefaultAddr,
			LandingPath: DefaultLandingPath,
		},
		Session: SessionConfig{
			Backend:          BackendPostgres,
			CookieName:       DefaultSessionCookieName,
			RememberCookie:   DefaultRememberCookie,
			Lifetime:         DefaultSessionLifetime,
			RememberLifetime: DefaultRememberLifetime,
			Remember:         true,
		},
		Registration: RegistrationConfig{
			Fields: slices.Clone(credential.DefaultFields),
		},
		Password: PasswordConfig{
			EnforcePolicy: false,
			Algorithm:     password.AlgorithmArgon2id,
		},
		Store: StoreConfig{
			Backend: BackendPostgres,
		},
		Database: DatabaseConfig{
			AutoMigrate: true,
		},
		Redis: RedisConfig{
			Addr: DefaultRedisAddr,
		},
		Log: LogConfig{
			Format: DefaultLogFormat,
			Level:  DefaultLogLevel,
		},
		Metrics: MetricsConfig{
			Addr: DefaultMetricsAddr,
		},
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if !strings.HasPrefix(c.Server.LandingPath, "/") {
		return fmt.Errorf("server.landing_path must start with '/', got %q", c.Server.LandingPath)
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.Session.Remember && c.Session.RememberCookie == "" {
		return fmt.Errorf("session.remember_cookie is required when remember-me is enabled")
	}
	if c.Session.CookieName == c.Session.RememberCookie {
		return fmt.Errorf("session.cookie_name and session.remember_cookie must differ")
	}
	if c.Session.Lifetime <= 0 {
		return fmt.Errorf("session.lifetime must be positive, got %s", c.Session.Lifetime)
	}
	if c.Session.RememberLifetime <= 0 {
		return fmt.Errorf("session.remember_lifetime must be positive, got %s", c.Session.RememberLifetime)
	}
	switch c.Session.Backend {
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("session.backend must be 'postgres', 'redis' or 'memory', got %q", c.Session.Backend)
	}
	switch c.Store.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("store.backend must be 'postgres' or 'memory', got %q", c.Store.Backend)
	}
	if c.Session.Backend == BackendPostgres && c.Store.Backend != BackendPostgres {
		return fmt.Errorf("session.backend 'postgres' requires store.backend 'postgres'")
	}
	if c.Session.Backend == BackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when session.backend is 'redis'")
	}
	if c.Store.Backend == BackendPostgres && c.Database.URL == "" {
		return fmt.Errorf("database.url (or %s) is required when store.backend is 'postgres'", DatabaseURLEnv)
	}
	if !slices.Contains(c.Registration.Fields, credential.FieldUsername) ||
		!slices.Contains(c.Registration.Fields, credential.FieldPassword) {
		return fmt.Errorf("registration.fields must include %q and %q", credential.FieldUsername, credential.FieldPassword)
	}
	switch c.Password.Algorithm {
	case password.AlgorithmArgon2id, password.AlgorithmBcrypt:
	default:
		return fmt.Errorf("password.algorithm must be 'argon2id' or 'bcrypt', got %q", c.Password.Algorithm)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	return nil
}

// Load builds a Config from the defaults, the YAML file at path (skipped when
// empty), DATABASE_URL and every flag in flags that was set explicitly.
// flagKeys maps flag names to configuration keys; unmapped flags are ignored.
func Load(path string, flags *pflag.FlagSet, flagKeys map[string]string) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is an operator-supplied config file
		if err != nil {
			return Config{}, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return Config{}, oops.Code("CONFIG_SCHEMA_INVALID").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if url := os.Getenv(DatabaseURLEnv); url != "" && !flagChanged(flags, flagKeys, "database.url") {
		cfg.Database.URL = url
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return cfg, nil
}

// flagChanged reports whether the flag mapped to key was set explicitly.
func flagChanged(flags *pflag.FlagSet, flagKeys map[string]string, key string) bool {
	if flags == nil {
		return false
	}
	for name, k := range flagKeys {
		if k != key {
			continue
		}
		if f := flags.Lookup(name); f != nil && f.Changed {
			return true
		}
	}
	return false
}
