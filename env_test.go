package lmsauth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	oa "github.com/panyam/lmsauth"
	"github.com/panyam/lmsauth/stores/fs"
)

const (
	testSecret   = "lmsauth-test-secret-0123456789abcdef"
	testIssuer   = "lmsauth-test"
	testPassword = "Secure@123"
)

type testEnv struct {
	svc    *oa.AuthService
	store  *fs.Store
	server *httptest.Server
}

func newTestEnv(t *testing.T, logins ...*oa.OAuthLogin) *testEnv {
	t.Helper()
	store := fs.NewStore(t.TempDir())
	svc := oa.NewAuthService(store, oa.NewBcryptHasher(4), oa.NewTokenIssuer(testSecret, testIssuer), scs.New())
	server := httptest.NewServer(oa.NewRouter(svc, logins...))
	t.Cleanup(server.Close)
	return &testEnv{svc: svc, store: store, server: server}
}

func (e *testEnv) url(path string) string {
	return e.server.URL + path
}

// call sends body as JSON (nil for no body) and decodes the JSON reply.
func (e *testEnv) call(t *testing.T, method, path string, body any, opts ...func(*http.Request)) (*http.Response, map[string]any) {
	t.Helper()
	rd := bytes.NewReader(nil)
	if body != nil {
		rd = jsonBody(t, body)
	}
	req, err := http.NewRequest(method, e.url(path), rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	return e.do(t, req)
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.url(path), strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(t, req)
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookies(cookies ...*http.Cookie) func(*http.Request) {
	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	}
}

func registerBody(name, email string) map[string]any {
	return map[string]any{
		"name":             name,
		"email":            email,
		"password":         testPassword,
		"confirm_password": testPassword,
	}
}

// register creates a local account over HTTP and returns its access token.
func (e *testEnv) register(t *testing.T, name, email string) (string, map[string]any) {
	t.Helper()
	resp, out := e.call(t, http.MethodPost, "/auth/register", registerBody(name, email))
	require.Equal(t, http.StatusCreated, resp.StatusCode, "register: %v", out)
	return out["token"].(string), out["user"].(map[string]any)
}

// seedUser writes a user straight into the store, bypassing registration.
func (e *testEnv) seedUser(t *testing.T, u oa.User, password string) *oa.User {
	t.Helper()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = oa.RoleStudent
	}
	u.Email = oa.NormalizeEmail(u.Email)
	if password != "" {
		hash, err := e.svc.Hasher.Hash(password)
		require.NoError(t, err)
		u.PasswordHash = hash
	}
	u.CreatedAt = time.Now().UTC()
	require.NoError(t, e.store.CreateUser(context.Background(), &u))
	return &u
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}
