package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	oa "github.com/panyam/lmsauth"
)

// UserEntity is the Datastore entity for users, keyed by user id.
type UserEntity struct {
	Key           *datastore.Key `datastore:"__key__"`
	Name          string         `datastore:"name,noindex"`
	Email         string         `datastore:"email"`
	PasswordHash  string         `datastore:"password_hash,noindex"`
	Role          string         `datastore:"role"`
	OAuthProvider string         `datastore:"oauth_provider"`
	OAuthID       string         `datastore:"oauth_id"`
	Avatar        string         `datastore:"avatar,noindex"`
	IsActive      bool           `datastore:"is_active"`
	CreatedAt     time.Time      `datastore:"created_at"`
	UpdatedAt     time.Time      `datastore:"updated_at"`
	LastLogin     time.Time      `datastore:"last_login,omitempty"`
	Version       int            `datastore:"version"`
}

// IndexEntity maps a unique value (an email, or provider:id) to a user.
// Writing it in the same transaction as the user is what makes the value
// unique.
type IndexEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

func (e *UserEntity) ToUser(withHash bool) *oa.User {
	u := &oa.User{
		ID:            e.Key.Name,
		Name:          e.Name,
		Email:         e.Email,
		Role:          oa.Role(e.Role),
		OAuthProvider: e.OAuthProvider,
		OAuthID:       e.OAuthID,
		Avatar:        e.Avatar,
		IsActive:      e.IsActive,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if !e.LastLogin.IsZero() {
		t := e.LastLogin
		u.LastLogin = &t
	}
	if withHash {
		u.PasswordHash = e.PasswordHash
	}
	return u
}

func UserToEntity(u *oa.User, key *datastore.Key) *UserEntity {
	e := &UserEntity{
		Key:           key,
		Name:          u.Name,
		Email:         oa.NormalizeEmail(u.Email),
		PasswordHash:  u.PasswordHash,
		Role:          string(u.Role),
		OAuthProvider: u.OAuthProvider,
		OAuthID:       u.OAuthID,
		Avatar:        u.Avatar,
		IsActive:      u.IsActive,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
	if u.LastLogin != nil {
		e.LastLogin = *u.LastLogin
	}
	return e
}
