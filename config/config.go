// Package config loads the auth server's settings from the environment, with
// an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/panyam/lmsauth/stores/pg"
)

// Store backends
const (
	StorePostgres  = "postgres"
	StoreGorm      = "gorm"
	StoreDatastore = "datastore"
	StoreFS        = "fs"
)

// Session backends
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// MinSecretLength is the shortest JWT_SECRET accepted outside development.
const MinSecretLength = 32

var (
	ErrParsingConfig = errors.New("failed to parse config")
	ErrInvalidConfig = errors.New("invalid config")
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":3000"`
	GRPCAddr string `env:"GRPC_ADDR"`

	JWTSecret       string        `env:"JWT_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"lmsauth"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	BcryptCost      int           `env:"BCRYPT_SALT_ROUNDS" envDefault:"10"`

	ClientURL          string `env:"CLIENT_URL" envDefault:"http://localhost:5173"`
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL" envDefault:"http://localhost:3000/auth/google/callback"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `env:"GITHUB_CALLBACK_URL" envDefault:"http://localhost:3000/auth/github/callback"`

	// CookieSecure defaults to true in production; see parse.
	CookieSecure    bool          `env:"COOKIE_SECURE"`
	CookieDomain    string        `env:"COOKIE_DOMAIN"`
	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"24h"`
	SessionBackend  string        `env:"SESSION_BACKEND" envDefault:"memory"`
	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`

	StoreBackend       string `env:"STORE_BACKEND" envDefault:"fs"`
	Postgres           pg.Config
	FSStoragePath      string `env:"FS_STORAGE_PATH" envDefault:"./data"`
	DatastoreProjectID string `env:"DATASTORE_PROJECT_ID"`
	DatastoreNamespace string `env:"DATASTORE_NAMESPACE"`

	ValidationCollectAll bool   `env:"VALIDATION_COLLECT_ALL"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat            string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads the given .env files (".env" when none are named), then the
// process environment. Missing .env files are not an error; variables already
// set in the environment win over the files.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return parse(env.Options{})
}

// FromMap parses cfg from vars alone, ignoring the process environment.
func FromMap(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if cfg.IsProduction() && !isSet(opts, "COOKIE_SECURE") {
		cfg.CookieSecure = true
	}
	return cfg, cfg.Validate()
}

// isSet reports whether key has a non-empty value in the environment parse
// reads from.
func isSet(opts env.Options, key string) bool {
	if opts.Environment != nil {
		return opts.Environment[key] != ""
	}
	v, ok := os.LookupEnv(key)
	return ok && v != ""
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch {
	case c.JWTSecret == "":
		bad("JWT_SECRET is required")
	case c.IsProduction() && len(c.JWTSecret) < MinSecretLength:
		bad("JWT_SECRET must be at least %d characters in production", MinSecretLength)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		bad("token lifetimes must be positive")
	} else if c.RefreshTokenTTL < c.AccessTokenTTL {
		bad("REFRESH_TOKEN_TTL must not be shorter than ACCESS_TOKEN_TTL")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		bad("BCRYPT_SALT_ROUNDS must be between 4 and 31, got %d", c.BcryptCost)
	}

	switch c.StoreBackend {
	case StorePostgres, StoreGorm:
		if c.Postgres.ConnectionString == "" {
			bad("DATABASE_URL is required for the %s store", c.StoreBackend)
		}
	case StoreDatastore:
		if c.DatastoreProjectID == "" {
			bad("DATASTORE_PROJECT_ID is required for the datastore store")
		}
	case StoreFS:
		if c.FSStoragePath == "" {
			bad("FS_STORAGE_PATH is required for the fs store")
		}
	default:
		bad("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.SessionBackend {
	case SessionMemory:
	case SessionRedis:
		if c.RedisAddr == "" {
			bad("REDIS_ADDR is required for redis sessions")
		}
	default:
		bad("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	if c.SessionLifetime <= 0 {
		bad("SESSION_LIFETIME must be positive")
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		bad("unknown LOG_FORMAT %q", c.LogFormat)
	}
	return errors.Join(errs...)
}
