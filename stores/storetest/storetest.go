// Package storetest is a conformance suite every lmsauth.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oa "github.com/panyam/lmsauth"
)

// NewStoreFunc returns an empty store for one subtest.
type NewStoreFunc func(t *testing.T) oa.Store

// NewUser returns a valid, not yet stored, local user.
func NewUser(email string) *oa.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &oa.User{
		ID:           uuid.NewString(),
		Name:         "Test User",
		Email:        email,
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuuQ8Jq1xW3nC5mK9vH2bT6yR0pL4sD7eG",
		Role:         oa.RoleStudent,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Run exercises the Store contract.
func Run(t *testing.T, newStore NewStoreFunc) {
	ctx := context.Background()

	t.Run("create and find by email includes hash", func(t *testing.T) {
		s := newStore(t)
		u := NewUser("alice@example.com")
		require.NoError(t, s.CreateUser(ctx, u))

		got, err := s.FindUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, u.Name, got.Name)
		assert.Equal(t, u.PasswordHash, got.PasswordHash)
		assert.Equal(t, oa.RoleStudent, got.Role)
		assert.True(t, got.IsActive)
		assert.Nil(t, got.LastLogin)
	})

	t.Run("email lookup is case insensitive", func(t *testing.T) {
		s := newStore(t)
		u := NewUser("Mixed.Case@Example.com")
		require.NoError(t, s.CreateUser(ctx, u))

		got, err := s.FindUserByEmail(ctx, "mixed.case@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("find by id omits hash", func(t *testing.T) {
		s := newStore(t)
		u := NewUser("bob@example.com")
		require.NoError(t, s.CreateUser(ctx, u))

		got, err := s.FindUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "bob@example.com", got.Email)
		assert.Empty(t, got.PasswordHash)

		hash, err := s.GetPasswordHash(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.PasswordHash, hash)
	})

	t.Run("misses return ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		missing := uuid.NewString()

		_, err := s.FindUserByEmail(ctx, "nobody@example.com")
		assert.True(t, errors.Is(err, oa.ErrNotFound), "FindUserByEmail: %v", err)
		_, err = s.FindUserByID(ctx, missing)
		assert.True(t, errors.Is(err, oa.ErrNotFound), "FindUserByID: %v", err)
		_, err = s.FindUserByOAuthID(ctx, "google", "nope")
		assert.True(t, errors.Is(err, oa.ErrNotFound), "FindUserByOAuthID: %v", err)
		_, err = s.GetPasswordHash(ctx, missing)
		assert.True(t, errors.Is(err, oa.ErrNotFound), "GetPasswordHash: %v", err)
		err = s.UpdatePassword(ctx, missing, "x")
		assert.True(t, errors.Is(err, oa.ErrNotFound), "UpdatePassword: %v", err)
	})

	t.Run("duplicate email conflicts and does not overwrite", func(t *testing.T) {
		s := newStore(t)
		first := NewUser("dup@example.com")
		require.NoError(t, s.CreateUser(ctx, first))

		second := NewUser("DUP@example.com")
		second.Name = "Someone Else"
		err := s.CreateUser(ctx, second)
		assert.True(t, errors.Is(err, oa.ErrConflict), "expected ErrConflict, got %v", err)

		got, err := s.FindUserByEmail(ctx, "dup@example.com")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, "Test User", got.Name)
	})

	t.Run("concurrent creates with same email admit exactly one", func(t *testing.T) {
		s := newStore(t)
		const n = 8
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = s.CreateUser(ctx, NewUser("race@example.com"))
			}(i)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
			} else {
				assert.True(t, errors.Is(err, oa.ErrConflict), "unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
	})

	t.Run("update password", func(t *testing.T) {
		s := newStore(t)
		u := NewUser("carol@example.com")
		require.NoError(t, s.CreateUser(ctx, u))

		require.NoError(t, s.UpdatePassword(ctx, u.ID, "new-hash"))
		hash, err := s.GetPasswordHash(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", hash)
	})

	t.Run("update last login", func(t *testing.T) {
		s := newStore(t)
		u := NewUser("dave@example.com")
		require.NoError(t, s.CreateUser(ctx, u))

		at := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, s.UpdateLastLogin(ctx, u.ID, at))
		got, err := s.FindUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastLogin)
		assert.True(t, at.Equal(got.LastLogin.UTC()), "last login %v != %v", got.LastLogin, at)
	})

	t.Run("oauth-only user has no hash", func(t *testing.T) {
		s := newStore(t)
		u := NewUser("gina@example.com")
		u.PasswordHash = ""
		u.OAuthProvider, u.OAuthID = "google", "g-123"
		u.Avatar = "https://example.com/a.png"
		require.NoError(t, s.CreateUser(ctx, u))

		got, err := s.FindUserByOAuthID(ctx, "google", "g-123")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "https://example.com/a.png", got.Avatar)

		byEmail, err := s.FindUserByEmail(ctx, "gina@example.com")
		require.NoError(t, err)
		assert.False(t, byEmail.HasPassword())

		hash, err := s.GetPasswordHash(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, hash)
	})

	t.Run("duplicate oauth identity conflicts", func(t *testing.T) {
		s := newStore(t)
		a := NewUser("a@example.com")
		a.OAuthProvider, a.OAuthID = "google", "same"
		require.NoError(t, s.CreateUser(ctx, a))

		b := NewUser("b@example.com")
		b.OAuthProvider, b.OAuthID = "google", "same"
		err := s.CreateUser(ctx, b)
		assert.True(t, errors.Is(err, oa.ErrConflict), "expected ErrConflict, got %v", err)
	})

	t.Run("link oauth id makes hybrid account", func(t *testing.T) {
		s := newStore(t)
		u := NewUser("hybrid@example.com")
		require.NoError(t, s.CreateUser(ctx, u))

		require.NoError(t, s.LinkOAuthID(ctx, u.ID, "google", "g-999", "https://example.com/h.png"))

		got, err := s.FindUserByOAuthID(ctx, "google", "g-999")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "https://example.com/h.png", got.Avatar)

		hash, err := s.GetPasswordHash(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.PasswordHash, hash, "linking must keep the password")
	})
	t.Run("relink replaces previous identity", func(t *testing.T) {
		s := newStore(t)
		u := NewUser("relink@example.com")
		u.OAuthProvider, u.OAuthID = "google", "g-1"
		require.NoError(t, s.CreateUser(ctx, u))

		require.NoError(t, s.LinkOAuthID(ctx, u.ID, "github", "gh-9", ""))

		got, err := s.FindUserByOAuthID(ctx, "github", "gh-9")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		_, err = s.FindUserByOAuthID(ctx, "google", "g-1")
		assert.ErrorIs(t, err, oa.ErrNotFound, "old identity must not resolve")

		// the released identity is free for another account
		other := NewUser("other@example.com")
		require.NoError(t, s.CreateUser(ctx, other))
		require.NoError(t, s.LinkOAuthID(ctx, other.ID, "google", "g-1", ""))
		got, err = s.FindUserByOAuthID(ctx, "google", "g-1")
		require.NoError(t, err)
		assert.Equal(t, other.ID, got.ID)
	})

	t.Run("relinking the same identity is a no-op", func(t *testing.T) {
		s := newStore(t)
		u := NewUser("same@example.com")
		u.OAuthProvider, u.OAuthID = "google", "g-2"
		require.NoError(t, s.CreateUser(ctx, u))

		require.NoError(t, s.LinkOAuthID(ctx, u.ID, "google", "g-2", ""))
		got, err := s.FindUserByOAuthID(ctx, "google", "g-2")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("link identity held by another account conflicts", func(t *testing.T) {
		s := newStore(t)
		a := NewUser("holder@example.com")
		a.OAuthProvider, a.OAuthID = "github", "gh-1"
		require.NoError(t, s.CreateUser(ctx, a))
		b := NewUser("taker@example.com")
		require.NoError(t, s.CreateUser(ctx, b))

		err := s.LinkOAuthID(ctx, b.ID, "github", "gh-1", "")
		assert.ErrorIs(t, err, oa.ErrConflict)
		got, err := s.FindUserByOAuthID(ctx, "github", "gh-1")
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
	})
}
