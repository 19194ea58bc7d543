// Package config loads server settings from defaults, an optional YAML file,
// an optional .env file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	minSecretLen = 32
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type AuthConfig struct {
	Secret                string        `yaml:"secret"`
	BasePath              string        `yaml:"base_path"`
	LoginPath             string        `yaml:"login_path"`
	SessionMaxAge         time.Duration `yaml:"session_max_age"`
	AccessTokenTTL        time.Duration `yaml:"access_token_ttl"`
	ProfileTimeout        time.Duration `yaml:"profile_timeout"`
	ClearProfileOnRecheck bool          `yaml:"clear_profile_on_recheck"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
}

// RedisConfig is optional. With a URL, sessions are cached and auth events
// are shared through Redis instead of in process.
type RedisConfig struct {
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			BasePath:       "/api/auth",
			LoginPath:      "/auth",
			SessionMaxAge:  24 * time.Hour,
			AccessTokenTTL: 15 * time.Minute,
			ProfileTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{Driver: StorageMemory},
		Redis:   RedisConfig{CacheTTL: 5 * time.Minute},
		Log:     LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

type loadOptions struct {
	envFile string
	lookup  func(string) (string, bool)
}

type Option func(*loadOptions)

// WithEnvFile reads name instead of ".env". A missing file is not an error.
func WithEnvFile(name string) Option {
	return func(o *loadOptions) { o.envFile = name }
}

// WithLookup replaces os.LookupEnv.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(o *loadOptions) { o.lookup = fn }
}

// Load builds the configuration. path may be empty to skip the YAML file.
// Values from the process environment win over the .env file.
func Load(path string, opts ...Option) (*Config, error) {
	o := loadOptions{envFile: ".env", lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	dotenv := map[string]string{}
	if o.envFile != "" {
		m, err := godotenv.Read(o.envFile)
		switch {
		case err == nil:
			dotenv = m
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read env file: %w", err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := o.lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("RAICES_ADDRESS", &cfg.Server.Address)
	dur("RAICES_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	if v, ok := lookup("RAICES_CORS_ORIGINS"); ok {
		cfg.Server.CORSOrigins = splitList(v)
	}

	str("RAICES_SECRET", &cfg.Auth.Secret)
	str("RAICES_BASE_PATH", &cfg.Auth.BasePath)
	str("RAICES_LOGIN_PATH", &cfg.Auth.LoginPath)
	dur("RAICES_SESSION_MAX_AGE", &cfg.Auth.SessionMaxAge)
	dur("RAICES_ACCESS_TOKEN_TTL", &cfg.Auth.AccessTokenTTL)
	dur("RAICES_PROFILE_TIMEOUT", &cfg.Auth.ProfileTimeout)
	boolean("RAICES_CLEAR_PROFILE_ON_RECHECK", &cfg.Auth.ClearProfileOnRecheck)

	str("RAICES_STORAGE", &cfg.Storage.Driver)
	str("DATABASE_URL", &cfg.Storage.DatabaseURL)

	str("REDIS_URL", &cfg.Redis.URL)
	dur("RAICES_CACHE_TTL", &cfg.Redis.CacheTTL)

	str("RAICES_LOG_LEVEL", &cfg.Log.Level)
	str("RAICES_LOG_FORMAT", &cfg.Log.Format)
	boolean("RAICES_METRICS", &cfg.Metrics.Enabled)

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error
	switch {
	case c.Auth.Secret == "":
		errs = append(errs, errors.New("auth.secret is required"))
	case len(c.Auth.Secret) < minSecretLen:
		errs = append(errs, fmt.Errorf("auth.secret must be at least %d characters", minSecretLen))
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of memory, postgres", c.Storage.Driver))
	}
	if c.Auth.ProfileTimeout <= 0 {
		errs = append(errs, errors.New("auth.profile_timeout must be positive"))
	}
	if c.Auth.SessionMaxAge <= 0 {
		errs = append(errs, errors.New("auth.session_max_age must be positive"))
	}
	if !strings.HasPrefix(c.Auth.LoginPath, "/") {
		errs = append(errs, errors.New("auth.login_path must start with /"))
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
