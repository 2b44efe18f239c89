// Package fs stores users as JSON files on local disk. It is meant for
// development and tests; a single process owns the directory.
//
// Layout under StoragePath:
//
//	users/<id>.json          the user record
//	emails/<sha256>.json     email -> user id index
//	oauth/<sha256>.json      provider:id -> user id index
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	oa "github.com/panyam/lmsauth"
)

type userRecord struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"password_hash,omitempty"`
	Role          oa.Role    `json:"role"`
	OAuthProvider string     `json:"oauth_provider,omitempty"`
	OAuthID       string     `json:"oauth_id,omitempty"`
	Avatar        string     `json:"avatar,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
}

func recordFromUser(u *oa.User) *userRecord {
	return &userRecord{
		ID:            u.ID,
		Name:          u.Name,
		Email:         oa.NormalizeEmail(u.Email),
		PasswordHash:  u.PasswordHash,
		Role:          u.Role,
		OAuthProvider: u.OAuthProvider,
		OAuthID:       u.OAuthID,
		Avatar:        u.Avatar,
		IsActive:      u.IsActive,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
		LastLogin:     u.LastLogin,
	}
}

func (r *userRecord) toUser(withHash bool) *oa.User {
	u := &oa.User{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		Role:          r.Role,
		OAuthProvider: r.OAuthProvider,
		OAuthID:       r.OAuthID,
		Avatar:        r.Avatar,
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		LastLogin:     r.LastLogin,
	}
	if withHash {
		u.PasswordHash = r.PasswordHash
	}
	return u
}

type indexEntry struct {
	UserID string `json:"user_id"`
}

// Store implements lmsauth.Store on the local filesystem.
type Store struct {
	StoragePath string

	mu sync.RWMutex
}

func NewStore(storagePath string) *Store {
	return &Store{StoragePath: storagePath}
}

func (s *Store) userPath(id string) string {
	return filepath.Join(s.StoragePath, "users", safeName(id)+".json")
}

func (s *Store) emailPath(email string) string {
	return filepath.Join(s.StoragePath, "emails", safeName(oa.NormalizeEmail(email))+".json")
}

func (s *Store) oauthPath(provider, oauthID string) string {
	return filepath.Join(s.StoragePath, "oauth", safeName(provider+":"+oauthID)+".json")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Store) CreateUser(ctx context.Context, u *oa.User) error {
	if u.ID == "" || u.Email == "" {
		return fmt.Errorf("user id and email are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if exists(s.userPath(u.ID)) {
		return fmt.Errorf("user %s: %w", u.ID, oa.ErrConflict)
	}
	if exists(s.emailPath(u.Email)) {
		return fmt.Errorf("email already registered: %w", oa.ErrConflict)
	}
	if u.OAuthProvider != "" && u.OAuthID != "" && exists(s.oauthPath(u.OAuthProvider, u.OAuthID)) {
		return fmt.Errorf("%s identity already linked: %w", u.OAuthProvider, oa.ErrConflict)
	}

	rec := recordFromUser(u)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if err := writeJSONFile(s.userPath(rec.ID), rec); err != nil {
		return err
	}
	if err := writeJSONFile(s.emailPath(rec.Email), indexEntry{UserID: rec.ID}); err != nil {
		return err
	}
	if rec.OAuthProvider != "" && rec.OAuthID != "" {
		if err := writeJSONFile(s.oauthPath(rec.OAuthProvider, rec.OAuthID), indexEntry{UserID: rec.ID}); err != nil {
			return err
		}
	}
	u.Email = rec.Email
	u.CreatedAt, u.UpdatedAt = rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (s *Store) readUser(id string) (*userRecord, error) {
	var rec userRecord
	if err := readJSONFile(s.userPath(id), &rec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("user %s: %w", id, oa.ErrNotFound)
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) readIndex(path string) (*userRecord, error) {
	var entry indexEntry
	if err := readJSONFile(path, &entry); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, oa.ErrNotFound
		}
		return nil, err
	}
	return s.readUser(entry.UserID)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*oa.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.readIndex(s.emailPath(email))
	if err != nil {
		return nil, err
	}
	return rec.toUser(true), nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*oa.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.readUser(id)
	if err != nil {
		return nil, err
	}
	return rec.toUser(false), nil
}

func (s *Store) FindUserByOAuthID(ctx context.Context, provider, oauthID string) (*oa.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.readIndex(s.oauthPath(provider, oauthID))
	if err != nil {
		return nil, err
	}
	return rec.toUser(false), nil
}

func (s *Store) GetPasswordHash(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.readUser(id)
	if err != nil {
		return "", err
	}
	return rec.PasswordHash, nil
}

// update applies fn to the stored record under the write lock.
func (s *Store) update(id string, fn func(*userRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.readUser(id)
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		return err
	}
	return writeJSONFile(s.userPath(id), rec)
}

func (s *Store) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.update(id, func(rec *userRecord) error {
		rec.PasswordHash = hash
		rec.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (s *Store) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(rec *userRecord) error {
		at := at.UTC()
		rec.LastLogin = &at
		return nil
	})
}

func (s *Store) LinkOAuthID(ctx context.Context, id, provider, oauthID, avatar string) error {
	return s.update(id, func(rec *userRecord) error {
		idxPath := s.oauthPath(provider, oauthID)
		var entry indexEntry
		if err := readJSONFile(idxPath, &entry); err == nil && entry.UserID != id {
			return fmt.Errorf("%s identity linked to another account: %w", provider, oa.ErrConflict)
		}
		if err := writeJSONFile(idxPath, indexEntry{UserID: id}); err != nil {
			return err
		}
		if rec.OAuthProvider != "" && (rec.OAuthProvider != provider || rec.OAuthID != oauthID) {
			// the record holds one identity; the old one stops resolving
			err := os.Remove(s.oauthPath(rec.OAuthProvider, rec.OAuthID))
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
		rec.OAuthProvider, rec.OAuthID = provider, oauthID
		if rec.Avatar == "" {
			rec.Avatar = avatar
		}
		rec.UpdatedAt = time.Now().UTC()
		return nil
	})
}
