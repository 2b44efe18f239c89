package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	oa "github.com/panyam/lmsauth"
	"github.com/panyam/lmsauth/config"
	authgrpc "github.com/panyam/lmsauth/grpc"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.FromMap(map[string]string{
		"JWT_SECRET":         "authserver-test-secret",
		"STORE_BACKEND":      "fs",
		"FS_STORAGE_PATH":    t.TempDir(),
		"BCRYPT_SALT_ROUNDS": "4",
		"LOG_FORMAT":         "text",
	})
	require.NoError(t, err)
	return cfg
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "warn")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "lmsauth", line["service"])

	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestServiceFromConfig(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	logger := newLogger(&bytes.Buffer{}, cfg.LogFormat, cfg.LogLevel)

	store, closeStore, err := openStore(ctx, cfg, logger)
	require.NoError(t, err)
	defer closeStore()
	sessions, closeSessions, err := newSessionManager(ctx, cfg)
	require.NoError(t, err)
	defer closeSessions()
	assert.Equal(t, "session_id", sessions.Cookie.Name)

	svc := buildService(cfg, store, sessions, logger)
	server := httptest.NewServer(oa.NewRouter(svc))
	defer server.Close()

	body := `{"name":"Grace Hopper","email":"grace@example.com","password":"Cobol1959!","confirm_password":"Cobol1959!","role":"instructor"}`
	resp, err := http.Post(server.URL+"/auth/register", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	claims, err := svc.Tokens.VerifyAccess(out.Token)
	require.NoError(t, err)
	assert.Equal(t, oa.RoleInstructor, claims.Role)
	assert.Equal(t, cfg.JWTIssuer, claims.Issuer)
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreBackend = "mongo"
	_, _, err := openStore(context.Background(), cfg, slog.Default())
	assert.Error(t, err)
}

func TestOAuthLogins(t *testing.T) {
	cfg := testConfig(t)
	assert.Empty(t, oauthLogins(cfg, slog.Default()))

	cfg.GoogleClientID, cfg.GoogleClientSecret = "g-id", "g-secret"
	cfg.GitHubClientID, cfg.GitHubClientSecret = "gh-id", "gh-secret"
	logins := oauthLogins(cfg, slog.Default())
	require.Len(t, logins, 2)
	assert.Equal(t, "google", logins[0].Provider.Name())
	assert.Equal(t, "github", logins[1].Provider.Name())
	assert.Equal(t, cfg.ClientURL, logins[1].ClientURL)

	// each provider gets its own begin route
	svc := oa.NewAuthService(nil, oa.NewBcryptHasher(4), oa.NewTokenIssuer("authserver-test-secret", "lmsauth"), nil)
	server := httptest.NewServer(oa.NewRouter(svc, logins...))
	defer server.Close()
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	for _, path := range []string{"/auth/google", "/auth/github"} {
		resp, err := client.Get(server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusFound, resp.StatusCode, path)
	}
}

func dialBufconn(t *testing.T, srv *grpc.Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGRPCHealthIsPublic(t *testing.T) {
	tokens := oa.NewTokenIssuer("authserver-test-secret", "lmsauth")
	conn := dialBufconn(t, newGRPCServer(tokens))

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	// a bad token on a public method is ignored rather than rejected
	ctx := authgrpc.TokenToOutgoingContext(context.Background(), "garbage")
	_, err = healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
}
