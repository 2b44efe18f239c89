package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromMap(map[string]string{"JWT_SECRET": "dev-secret"})
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, StoreFS, cfg.StoreBackend)
	assert.Equal(t, SessionMemory, cfg.SessionBackend)
	assert.Equal(t, int32(10), cfg.Postgres.MaxOpenConns)
	assert.False(t, cfg.GoogleEnabled())
	assert.False(t, cfg.GitHubEnabled())
	assert.Equal(t, "http://localhost:3000/auth/github/callback", cfg.GitHubCallbackURL)
	assert.False(t, cfg.IsProduction())
}

func TestOverrides(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"JWT_SECRET":           "dev-secret",
		"ACCESS_TOKEN_TTL":     "15m",
		"BCRYPT_SALT_ROUNDS":   "12",
		"STORE_BACKEND":        "postgres",
		"DATABASE_URL":         "postgres://localhost/lms",
		"PG_MAX_OPEN_CONNS":    "25",
		"GOOGLE_CLIENT_ID":     "id",
		"GOOGLE_CLIENT_SECRET": "secret",
		"COOKIE_SECURE":        "true",
		"GITHUB_CLIENT_ID":     "gh-id",
	})
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, "postgres://localhost/lms", cfg.Postgres.ConnectionString)
	assert.Equal(t, int32(25), cfg.Postgres.MaxOpenConns)
	assert.True(t, cfg.GoogleEnabled())
	assert.False(t, cfg.GitHubEnabled(), "github needs a secret too")
	assert.True(t, cfg.CookieSecure)
}

func TestCookieSecureDefault(t *testing.T) {
	prodSecret := strings.Repeat("s", MinSecretLength)
	tests := []struct {
		name string
		vars map[string]string
		want bool
	}{
		{"development", map[string]string{"JWT_SECRET": "dev-secret"}, false},
		{"development opt in", map[string]string{"JWT_SECRET": "dev-secret", "COOKIE_SECURE": "true"}, true},
		{"production", map[string]string{"APP_ENV": "production", "JWT_SECRET": prodSecret}, true},
		{"production mixed case", map[string]string{"APP_ENV": "Production", "JWT_SECRET": prodSecret}, true},
		{"production opt out", map[string]string{"APP_ENV": "production", "JWT_SECRET": prodSecret, "COOKIE_SECURE": "false"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromMap(tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.CookieSecure)
		})
	}
}

func TestCookieSecureFromProcessEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", strings.Repeat("s", MinSecretLength))
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.True(t, cfg.CookieSecure)

	t.Setenv("COOKIE_SECURE", "false")
	cfg, err = Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.False(t, cfg.CookieSecure)
}

func TestValidateRejects(t *testing.T) {
	base := map[string]string{"JWT_SECRET": "dev-secret"}
	with := func(kv ...string) map[string]string {
		m := map[string]string{}
		for k, v := range base {
			m[k] = v
		}
		for i := 0; i < len(kv); i += 2 {
			m[kv[i]] = kv[i+1]
		}
		return m
	}

	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"missing secret", map[string]string{}, "JWT_SECRET is required"},
		{"short secret in production", with("APP_ENV", "production"), "at least 32"},
		{"unknown store", with("STORE_BACKEND", "mongo"), `unknown STORE_BACKEND "mongo"`},
		{"postgres without url", with("STORE_BACKEND", "postgres"), "DATABASE_URL is required"},
		{"gorm without url", with("STORE_BACKEND", "gorm"), "DATABASE_URL is required"},
		{"datastore without project", with("STORE_BACKEND", "datastore"), "DATASTORE_PROJECT_ID"},
		{"unknown session backend", with("SESSION_BACKEND", "memcached"), "unknown SESSION_BACKEND"},
		{"bcrypt cost too low", with("BCRYPT_SALT_ROUNDS", "2"), "BCRYPT_SALT_ROUNDS"},
		{"refresh shorter than access", with("ACCESS_TOKEN_TTL", "2h", "REFRESH_TOKEN_TTL", "1h"), "REFRESH_TOKEN_TTL"},
		{"bad log format", with("LOG_FORMAT", "xml"), "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.vars)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	_, err := FromMap(map[string]string{"STORE_BACKEND": "mongo", "SESSION_BACKEND": "memcached"})
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "JWT_SECRET")
	assert.Contains(t, msg, "STORE_BACKEND")
	assert.Contains(t, msg, "SESSION_BACKEND")
}

func TestParseErrors(t *testing.T) {
	_, err := FromMap(map[string]string{"JWT_SECRET": "x", "ACCESS_TOKEN_TTL": "forever"})
	assert.ErrorIs(t, err, ErrParsingConfig)
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := strings.Join([]string{
		"JWT_SECRET=from-file-secret",
		"HTTP_ADDR=:4000",
		"STORE_BACKEND=fs",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	// godotenv.Load never overrides variables that are already set
	t.Setenv("HTTP_ADDR", ":5000")
	t.Cleanup(func() { os.Unsetenv("JWT_SECRET"); os.Unsetenv("STORE_BACKEND") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file-secret", cfg.JWTSecret)
	assert.Equal(t, ":5000", cfg.HTTPAddr)
}

func TestLoadMissingEnvFileIsFine(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.JWTSecret)
}
