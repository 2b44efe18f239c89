package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshThreshold is the remaining access token lifetime below which
// GetToken refreshes ahead of use.
const RefreshThreshold = 5 * time.Minute

const refreshCookie = "refreshToken"

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Field      string   `json:"field"`
	Details    []string `json:"details"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// RegisterParams is the body of POST /auth/register.
type RegisterParams struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role,omitempty"`
}

// AuthClient talks to one lmsauth server and keeps its credential in a
// CredentialStore. Credentials are keyed by the server origin, so any path
// given to NewAuthClient is dropped.
type AuthClient struct {
	origin string
	prefix string
	store  CredentialStore

	// base makes the token calls; authed wraps its transport with bearer
	// auth and refresh-on-401.
	base   *http.Client
	authed *http.Client

	mu sync.Mutex
}

type ClientOption func(*AuthClient)

// WithPathPrefix sets where the auth routes are mounted. Defaults to "/auth".
func WithPathPrefix(prefix string) ClientOption {
	return func(c *AuthClient) {
		c.prefix = strings.TrimSuffix(prefix, "/")
	}
}

// WithHTTPClient uses a copy of hc for all requests. Its transport, if any,
// ends up underneath the auth handling.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *AuthClient) {
		if hc == nil {
			return
		}
		base := *hc
		if base.Transport == nil {
			base.Transport = http.DefaultTransport
		}
		c.base = &base
	}
}

func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.base.Transport = rt
	}
}

func NewAuthClient(serverURL string, store CredentialStore, opts ...ClientOption) *AuthClient {
	c := &AuthClient{
		origin: originOf(serverURL),
		prefix: "/auth",
		store:  store,
		base:   &http.Client{Transport: http.DefaultTransport},
	}
	for _, opt := range opts {
		opt(c)
	}
	authed := *c.base
	authed.Transport = &refreshTransport{client: c, base: c.base.Transport}
	c.authed = &authed
	return c
}

func originOf(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return serverURL
	}
	return u.Scheme + "://" + u.Host
}

// HTTPClient sends the stored access token on every request and retries
// once with a refreshed token when the server answers 401. Use it for other
// APIs that accept lmsauth tokens.
func (c *AuthClient) HTTPClient() *http.Client {
	return c.authed
}

func (c *AuthClient) ServerURL() string {
	return c.origin
}

func (c *AuthClient) GetCredential() (*ServerCredential, error) {
	return c.store.GetCredential(c.origin)
}

// IsLoggedIn reports whether an unexpired access token is stored. It does
// not contact the server.
func (c *AuthClient) IsLoggedIn() bool {
	cred, err := c.store.GetCredential(c.origin)
	return err == nil && cred != nil && !cred.IsExpired()
}

// GetToken returns the access token to send, or "" when there is none.
// A token close to expiry is refreshed first if a refresh token is stored;
// if that fails the old token is still returned while it lasts.
func (c *AuthClient) GetToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.origin)
	if err != nil || cred == nil {
		return "", err
	}
	if cred.HasRefreshToken() && cred.IsExpiringSoon(RefreshThreshold) {
		fresh, err := c.refreshLocked(ctx, cred)
		switch {
		case err == nil:
			cred = fresh
		case cred.IsExpired():
			return "", fmt.Errorf("access token expired and refresh failed: %w", err)
		}
	}
	if cred.IsExpired() {
		return "", nil
	}
	return cred.AccessToken, nil
}

func (c *AuthClient) Register(ctx context.Context, params RegisterParams) (*User, error) {
	return c.signIn(ctx, "/register", params)
}

func (c *AuthClient) Login(ctx context.Context, email, password string) (*User, error) {
	return c.signIn(ctx, "/login", map[string]string{"email": email, "password": password})
}

// signIn posts to a route that answers with a token and user, and stores
// the result along with the refresh cookie.
func (c *AuthClient) signIn(ctx context.Context, path string, body any) (*User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out struct {
		Token string `json:"token"`
		User  *User  `json:"user"`
	}
	resp, err := c.call(ctx, c.base, http.MethodPost, path, body, &out)
	if err != nil {
		return nil, err
	}

	cred := &ServerCredential{
		AccessToken: out.Token,
		ExpiresAt:   tokenExpiry(out.Token),
		CreatedAt:   time.Now(),
	}
	if ck := findCookie(resp, refreshCookie); ck != nil {
		cred.RefreshToken = ck.Value
	}
	if u := out.User; u != nil {
		cred.UserID, cred.UserEmail, cred.Role = u.ID, u.Email, u.Role
	}
	if err := c.persistLocked(cred); err != nil {
		return nil, err
	}
	return out.User, nil
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, ck := range resp.Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func (c *AuthClient) Me(ctx context.Context) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}
	if _, err := c.call(ctx, c.authed, http.MethodGet, "/me", nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// ChangePassword leaves the stored tokens in place; the server keeps them
// valid.
func (c *AuthClient) ChangePassword(ctx context.Context, current, next, confirm string) error {
	_, err := c.call(ctx, c.authed, http.MethodPost, "/change-password", map[string]string{
		"currentPassword":    current,
		"newPassword":        next,
		"confirmNewPassword": confirm,
	}, nil)
	return err
}

// Logout ends the server session and forgets the local credential. The
// credential is dropped even when the server call fails.
func (c *AuthClient) Logout(ctx context.Context) error {
	_, callErr := c.call(ctx, c.authed, http.MethodPost, "/logout", nil, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.RemoveCredential(c.origin); err != nil {
		return err
	}
	return errors.Join(c.store.Save(), callErr)
}

// Refresh trades the stored refresh token for a new access token.
func (c *AuthClient) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.origin)
	if err != nil {
		return err
	}
	if cred == nil || !cred.HasRefreshToken() {
		return fmt.Errorf("no refresh token for %s", c.origin)
	}
	_, err = c.refreshLocked(ctx, cred)
	return err
}

// renewAfterReject is called when the server refused rejected. It returns
// the token to retry with, or "" if there is none. A concurrent request may
// already have refreshed, in which case its token is reused.
func (c *AuthClient) renewAfterReject(ctx context.Context, rejected string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.origin)
	if err != nil || cred == nil || !cred.HasRefreshToken() {
		return ""
	}
	if cred.AccessToken != rejected && !cred.IsExpired() {
		return cred.AccessToken
	}
	fresh, err := c.refreshLocked(ctx, cred)
	if err != nil {
		return ""
	}
	return fresh.AccessToken
}

// refreshLocked requires c.mu.
func (c *AuthClient) refreshLocked(ctx context.Context, cred *ServerCredential) (*ServerCredential, error) {
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	body := map[string]string{"refreshToken": cred.RefreshToken}
	if _, err := c.call(ctx, c.base, http.MethodPost, "/refresh", body, &out); err != nil {
		return nil, err
	}
	fresh := *cred
	fresh.AccessToken = out.AccessToken
	fresh.ExpiresAt = tokenExpiry(out.AccessToken)
	if err := c.persistLocked(&fresh); err != nil {
		return nil, err
	}
	return &fresh, nil
}

func (c *AuthClient) persistLocked(cred *ServerCredential) error {
	if err := c.store.SetCredential(c.origin, cred); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}

// call sends in as JSON to an auth route and decodes the reply into out.
// Non-2xx replies come back as *APIError along with the response.
func (c *AuthClient) call(ctx context.Context, hc *http.Client, method, path string, in, out any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.origin+c.prefix+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return resp, apiErr
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp, fmt.Errorf("decoding %s response: %w", path, err)
		}
	}
	return resp, nil
}

// tokenExpiry reads exp without checking the signature; only the server can
// verify. Tokens without a readable exp are treated as nearly expired.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Now().Add(RefreshThreshold)
	}
	return claims.ExpiresAt.Time
}
