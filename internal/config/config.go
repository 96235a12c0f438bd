// Package config loads server settings from AUTHGATE_* environment
// variables. Command-line flags may override them.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvProduction turns on Secure cookies and the production logger.
const EnvProduction = "production"

// Config is the full server configuration.
type Config struct {
	Env             string        `env:"AUTHGATE_ENV"              envDefault:"development"`
	HTTPAddr        string        `env:"AUTHGATE_HTTP_ADDR"        envDefault:":8080"`
	GRPCAddr        string        `env:"AUTHGATE_GRPC_ADDR"        envDefault:":9090"`
	DSN             string        `env:"AUTHGATE_DSN"`
	ShutdownTimeout time.Duration `env:"AUTHGATE_SHUTDOWN_TIMEOUT" envDefault:"5s"`

	JWTSecret  string        `env:"AUTHGATE_JWT_SECRET"`
	JWTIssuer  string        `env:"AUTHGATE_JWT_ISSUER"  envDefault:"authgate"`
	AccessTTL  time.Duration `env:"AUTHGATE_ACCESS_TTL"  envDefault:"5m"`
	RefreshTTL time.Duration `env:"AUTHGATE_REFRESH_TTL" envDefault:"720h"`

	HashIterations uint32 `env:"AUTHGATE_HASH_ITERATIONS" envDefault:"3"`
	CacheSize      int    `env:"AUTHGATE_CACHE_SIZE"      envDefault:"10000"`

	LimiterWindow   time.Duration `env:"AUTHGATE_LIMITER_WINDOW"    envDefault:"15m"`
	LimiterMaxFails int           `env:"AUTHGATE_LIMITER_MAX_FAILS" envDefault:"5"`
	LimiterBlockFor time.Duration `env:"AUTHGATE_LIMITER_BLOCK_FOR" envDefault:"15m"`

	Google OAuthClient `envPrefix:"AUTHGATE_GOOGLE_"`
	Yandex OAuthClient `envPrefix:"AUTHGATE_YANDEX_"`
}

// OAuthClient holds the credentials of one identity provider. A provider
// with no client id only accepts tokens obtained elsewhere.
type OAuthClient struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

// Load parses the environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// BindFlags registers flags that override the loaded values.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Env, "env", c.Env, "environment: development or production")
	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "HTTP listen address")
	fs.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "gRPC listen address (empty disables)")
	fs.StringVar(&c.DSN, "dsn", c.DSN, "PostgreSQL DSN (empty uses the in-memory store)")
	fs.StringVar(&c.JWTSecret, "jwt-key", c.JWTSecret, "HS256 signing key (required)")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "access token TTL")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "refresh token TTL")
}

// Production reports whether the server runs in production mode.
func (c Config) Production() bool { return c.Env == EnvProduction }

// Validate checks values that have no usable default.
func (c Config) Validate() error {
	var errList []error
	if c.JWTSecret == "" {
		errList = append(errList, errors.New("missing jwt signing key (AUTHGATE_JWT_SECRET or -jwt-key)"))
	}
	if c.AccessTTL <= 0 {
		errList = append(errList, errors.New("access ttl must be positive"))
	}
	if c.RefreshTTL <= 0 {
		errList = append(errList, errors.New("refresh ttl must be positive"))
	}
	if c.HTTPAddr == "" {
		errList = append(errList, errors.New("http address is required"))
	}
	return errors.Join(errList...)
}
