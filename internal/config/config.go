package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	SessionStoreCookie = "cookie"
	SessionStoreRedis  = "redis"
)

var (
	ErrUnknownEnv          = errors.New("unknown env")
	ErrUnknownSessionStore = errors.New("unknown session store")
)

type Config struct {
	Environment string `toml:"-"`

	Host           string        `toml:"host" env:"HOST, overwrite"`
	Port           int           `toml:"port" env:"PORT, overwrite"`
	RequestTimeout time.Duration `toml:"request_timeout" env:"REQUEST_TIMEOUT, overwrite"`
	IdleTimeout    time.Duration `toml:"idle_timeout" env:"IDLE_TIMEOUT, overwrite"`

	// logging
	LogLevel      string `toml:"log_level" env:"LOG_LEVEL, overwrite"`
	LogsPath      string `toml:"logs_path" env:"LOGS_PATH, overwrite"`
	LogToStdout   bool   `toml:"log_to_stdout" env:"LOG_TO_STDOUT, overwrite"`
	LogFormatJSON bool   `toml:"log_format_json" env:"LOG_FORMAT_JSON, overwrite"`
	SentryEnabled bool   `toml:"sentry_enabled" env:"SENTRY_ENABLED, overwrite"`

	// telemetry
	PrometheusMetricsHost string `toml:"prometheus_metrics_host" env:"METRICS_HOST, overwrite"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port" env:"METRICS_PORT, overwrite"`
	TracingEnabled        bool   `toml:"tracing_enabled" env:"HONEYCOMB_ENABLED, overwrite"`

	// members database
	DBHost           string        `toml:"db_host" env:"DB_HOST, overwrite"`
	DBPort           string        `toml:"db_port" env:"DB_PORT, overwrite"`
	DBUser           string        `toml:"db_user" env:"DB_USER, overwrite"`
	DBName           string        `toml:"db_name" env:"DB_NAME, overwrite"`
	DBConnectTimeout time.Duration `toml:"db_connect_timeout" env:"DB_CONNECT_TIMEOUT, overwrite"`

	// sessions
	SessionStore        string        `toml:"session_store" env:"SESSION_STORE, overwrite"`
	SessionCookieName   string        `toml:"session_cookie_name" env:"SESSION_COOKIE_NAME, overwrite"`
	SessionCookieSecure bool          `toml:"session_cookie_secure" env:"SESSION_COOKIE_SECURE, overwrite"`
	SessionTTL          time.Duration `toml:"session_ttl" env:"SESSION_TTL, overwrite"`
	RedisHost           string        `toml:"redis_host" env:"REDIS_HOST, overwrite"`
	RedisPort           string        `toml:"redis_port" env:"REDIS_PORT, overwrite"`
}

// Secrets are read only from the environment, never from the config file.
type Secrets struct {
	DBPassword    string `env:"DB_PASSWORD"`
	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	SecretKey     string `env:"SECRET_KEY"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	SentryDSN     string `env:"SENTRY_DSN"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	var cfg *Config
	switch NormalizeEnv(env) {
	case EnvDevelopment:
		cfg = t.Development
	case EnvProduction:
		cfg = t.Production
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEnv, env)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	return cfg, nil
}

// NormalizeEnv maps env aliases (dev, prod) to their full names.
func NormalizeEnv(env string) string {
	switch strings.ToLower(env) {
	case "dev", EnvDevelopment:
		return EnvDevelopment
	case "prod", EnvProduction:
		return EnvProduction
	default:
		return env
	}
}

// Load reads the TOML config for the given env, applies env var overrides on top,
// and fills in defaults. A missing config file is not an error.
func Load(ctx context.Context, env, configPath string) (*Config, error) {
	return load(ctx, env, configPath, envconfig.OsLookuper())
}

func load(ctx context.Context, env, configPath string, lookuper envconfig.Lookuper) (*Config, error) {
	tomlCfg := &Toml{}
	if configPath != "" {
		if _, err := toml.DecodeFile(configPath, tomlCfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("decode config file [%s]: %w", configPath, err)
		}
	}

	cfg, err := tomlCfg.Get(env)
	if err != nil {
		return nil, err
	}
	cfg.Environment = NormalizeEnv(env)

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("process env vars: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadSecrets reads the secrets from the environment.
func LoadSecrets(ctx context.Context) (*Secrets, error) {
	return loadSecrets(ctx, envconfig.OsLookuper())
}

func loadSecrets(ctx context.Context, lookuper envconfig.Lookuper) (*Secrets, error) {
	secrets := &Secrets{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   secrets,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("process secrets: %w", err)
	}
	return secrets, nil
}

func (c *Config) applyDefaults() {
	setIfEmpty(&c.Host, "0.0.0.0")
	if c.Port == 0 {
		c.Port = 5000
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Second
	}
	setIfEmpty(&c.LogLevel, "info")
	setIfEmpty(&c.PrometheusMetricsHost, "localhost")
	setIfEmpty(&c.PrometheusMetricsPort, "9091")
	setIfEmpty(&c.DBHost, "localhost")
	setIfEmpty(&c.DBPort, "5432")
	if c.DBConnectTimeout == 0 {
		c.DBConnectTimeout = 5 * time.Second
	}
	setIfEmpty(&c.SessionStore, SessionStoreCookie)
	setIfEmpty(&c.SessionCookieName, "session")
	if c.SessionTTL == 0 {
		c.SessionTTL = 7 * 24 * time.Hour
	}
	setIfEmpty(&c.RedisHost, "localhost")
	setIfEmpty(&c.RedisPort, "6379")
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	switch c.SessionStore {
	case SessionStoreCookie, SessionStoreRedis:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSessionStore, c.SessionStore)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("invalid session ttl: %s", c.SessionTTL)
	}
	return nil
}

func setIfEmpty(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
