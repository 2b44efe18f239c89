package lmsauth

import (
	"context"
	"strings"
	"time"
)

// User is an account on the platform. PasswordHash is empty for accounts that
// only ever signed in through an identity provider.
type User struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Role          Role       `json:"role"`
	OAuthProvider string     `json:"oauthProvider,omitempty"`
	OAuthID       string     `json:"-"`
	Avatar        string     `json:"avatar,omitempty"`
	IsActive      bool       `json:"isActive"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
}

// HasPassword reports whether the account can use local login.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// PublicUser is the client-facing view of a User.
type PublicUser struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	Avatar    string     `json:"avatar,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

// NormalizeEmail is the canonical form emails are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Store persists users. Implementations must make CreateUser atomic with
// respect to email uniqueness and return ErrNotFound (wrapped or bare) when a
// lookup matches nothing.
type Store interface {
	// CreateUser inserts u. Returns ErrConflict if the email or the provider
	// identity is already taken. Never overwrites.
	CreateUser(ctx context.Context, u *User) error

	// FindUserByEmail returns the user including its password hash.
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	// FindUserByID returns the user without its password hash.
	FindUserByID(ctx context.Context, id string) (*User, error)

	// FindUserByOAuthID returns the user linked to a provider identity,
	// without its password hash.
	FindUserByOAuthID(ctx context.Context, provider, oauthID string) (*User, error)

	// GetPasswordHash returns only the stored hash ("" for OAuth-only users).
	GetPasswordHash(ctx context.Context, id string) (string, error)

	UpdatePassword(ctx context.Context, id, hash string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// LinkOAuthID attaches a provider identity to an existing account.
	LinkOAuthID(ctx context.Context, id, provider, oauthID, avatar string) error
}
