package client

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServer = "http://localhost:3000"

// mockCredentialStore keeps credentials in a map.
type mockCredentialStore struct {
	creds map[string]*ServerCredential
	saves int
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{creds: map[string]*ServerCredential{}}
}

func (m *mockCredentialStore) GetCredential(u string) (*ServerCredential, error) {
	return m.creds[u], nil
}

func (m *mockCredentialStore) SetCredential(u string, c *ServerCredential) error {
	m.creds[u] = c
	return nil
}

func (m *mockCredentialStore) RemoveCredential(u string) error {
	delete(m.creds, u)
	return nil
}

func (m *mockCredentialStore) ListServers() ([]string, error) {
	out := make([]string, 0, len(m.creds))
	for u := range m.creds {
		out = append(out, u)
	}
	return out, nil
}

func (m *mockCredentialStore) Save() error {
	m.saves++
	return nil
}

func TestCredentialLifetime(t *testing.T) {
	tests := []struct {
		name         string
		expiresIn    time.Duration
		expired      bool
		expiringSoon bool
	}{
		{"an hour left", time.Hour, false, false},
		{"two minutes left", 2 * time.Minute, false, true},
		{"just expired", -time.Second, true, true},
		{"long expired", -time.Hour, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &ServerCredential{AccessToken: "tok", ExpiresAt: time.Now().Add(tt.expiresIn)}
			assert.Equal(t, tt.expired, c.IsExpired())
			assert.Equal(t, tt.expiringSoon, c.IsExpiringSoon(RefreshThreshold))
		})
	}

	assert.False(t, (&ServerCredential{}).HasRefreshToken())
	assert.True(t, (&ServerCredential{RefreshToken: "r"}).HasRefreshToken())
}

func TestGetTokenWithoutRefresh(t *testing.T) {
	tests := []struct {
		name string
		cred *ServerCredential
		want string
	}{
		{"no credential", nil, ""},
		{"valid", &ServerCredential{AccessToken: "valid-token", ExpiresAt: time.Now().Add(time.Hour)}, "valid-token"},
		// nothing to refresh with, so an expired token is simply dropped
		{"expired", &ServerCredential{AccessToken: "expired-token", ExpiresAt: time.Now().Add(-time.Hour)}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockCredentialStore()
			if tt.cred != nil {
				store.creds[testServer] = tt.cred
			}
			token, err := NewAuthClient(testServer, store).GetToken(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}

func TestIsLoggedIn(t *testing.T) {
	store := newMockCredentialStore()
	c := NewAuthClient(testServer, store)
	assert.False(t, c.IsLoggedIn())

	store.creds[testServer] = &ServerCredential{AccessToken: "token", ExpiresAt: time.Now().Add(time.Hour)}
	assert.True(t, c.IsLoggedIn())

	store.creds[testServer].ExpiresAt = time.Now().Add(-time.Hour)
	assert.False(t, c.IsLoggedIn())
}

func TestCredentialsKeyedByOrigin(t *testing.T) {
	store := newMockCredentialStore()
	store.creds[testServer] = &ServerCredential{AccessToken: "token", ExpiresAt: time.Now().Add(time.Hour)}

	c := NewAuthClient(testServer+"/api/v1", store)
	assert.Equal(t, testServer, c.ServerURL())
	assert.True(t, c.IsLoggedIn(), "a path on the same origin shares the credential")
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("whatever"))
	require.NoError(t, err)
	assert.True(t, tokenExpiry(token).Equal(exp))

	// opaque tokens get a short lifetime so they are refreshed early
	assert.False(t, tokenExpiry("not-a-jwt").After(time.Now().Add(RefreshThreshold+time.Second)))
}

func TestAPIError(t *testing.T) {
	assert.EqualError(t, &APIError{StatusCode: 401, Message: "Invalid credentials"}, "HTTP 401: Invalid credentials")
	assert.EqualError(t, &APIError{StatusCode: 500}, "HTTP 500")
}
