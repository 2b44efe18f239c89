// Package client is a Go client for the lmsauth HTTP API. It logs in,
// keeps the issued tokens in a CredentialStore and refreshes the access
// token when it is about to expire or the server rejects it.
package client

import (
	"time"
)

// ServerCredential is what a login against one server leaves behind.
// RefreshToken is empty when the server did not set the refresh cookie.
type ServerCredential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	UserEmail    string    `json:"user_email,omitempty"`
	Role         string    `json:"role,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c *ServerCredential) IsExpired() bool {
	return !time.Now().Before(c.ExpiresAt)
}

// IsExpiringSoon is true once fewer than within remain on the access token.
func (c *ServerCredential) IsExpiringSoon(within time.Duration) bool {
	return time.Until(c.ExpiresAt) < within
}

func (c *ServerCredential) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// CredentialStore keeps one ServerCredential per server base URL.
// GetCredential returns nil, nil for unknown servers.
type CredentialStore interface {
	GetCredential(serverURL string) (*ServerCredential, error)
	SetCredential(serverURL string, cred *ServerCredential) error
	RemoveCredential(serverURL string) error
	ListServers() ([]string, error)

	// Save flushes pending changes for stores that buffer writes.
	Save() error
}

// User mirrors the server's public user record.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Avatar    string     `json:"avatar,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}
