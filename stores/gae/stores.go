package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"

	oa "github.com/panyam/lmsauth"
)

// Kind constants for Datastore entities
const (
	KindUser      = "User"
	KindUserEmail = "UserEmail"
	KindUserOAuth = "UserOAuth"
)

// Store implements lmsauth.Store using Google Cloud Datastore.
type Store struct {
	client    *datastore.Client
	namespace string
}

// NewStore creates a Datastore-backed store. An empty namespace uses the
// default one.
func NewStore(client *datastore.Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace}
}

func (s *Store) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *Store) userKey(id string) *datastore.Key {
	return s.namespacedKey(KindUser, id)
}

func (s *Store) emailKey(email string) *datastore.Key {
	return s.namespacedKey(KindUserEmail, oa.NormalizeEmail(email))
}

func (s *Store) oauthKey(provider, oauthID string) *datastore.Key {
	return s.namespacedKey(KindUserOAuth, provider+":"+oauthID)
}

// ensureAbsent fails with ErrConflict if key already exists inside tx.
func ensureAbsent(tx *datastore.Transaction, key *datastore.Key, dst any) error {
	err := tx.Get(key, dst)
	if err == nil {
		return fmt.Errorf("%s %q: %w", key.Kind, key.Name, oa.ErrConflict)
	}
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil
	}
	return err
}

func (s *Store) CreateUser(ctx context.Context, u *oa.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	u.Email = oa.NormalizeEmail(u.Email)

	userKey := s.userKey(u.ID)
	emailKey := s.emailKey(u.Email)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		if err := ensureAbsent(tx, userKey, &UserEntity{}); err != nil {
			return err
		}
		if err := ensureAbsent(tx, emailKey, &IndexEntity{}); err != nil {
			return err
		}
		keys := []*datastore.Key{userKey, emailKey}
		entities := []any{UserToEntity(u, userKey), &IndexEntity{Key: emailKey, UserID: u.ID, CreatedAt: now}}

		if u.OAuthProvider != "" && u.OAuthID != "" {
			oauthKey := s.oauthKey(u.OAuthProvider, u.OAuthID)
			if err := ensureAbsent(tx, oauthKey, &IndexEntity{}); err != nil {
				return err
			}
			keys = append(keys, oauthKey)
			entities = append(entities, &IndexEntity{Key: oauthKey, UserID: u.ID, CreatedAt: now})
		}
		_, err := tx.PutMulti(keys, entities)
		return err
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, id string) (*UserEntity, error) {
	var entity UserEntity
	if err := s.client.Get(ctx, s.userKey(id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, fmt.Errorf("user %s: %w", id, oa.ErrNotFound)
		}
		return nil, err
	}
	return &entity, nil
}

func (s *Store) getByIndex(ctx context.Context, key *datastore.Key) (*UserEntity, error) {
	var idx IndexEntity
	if err := s.client.Get(ctx, key, &idx); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, oa.ErrNotFound
		}
		return nil, err
	}
	return s.getUser(ctx, idx.UserID)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*oa.User, error) {
	entity, err := s.getByIndex(ctx, s.emailKey(email))
	if err != nil {
		return nil, err
	}
	return entity.ToUser(true), nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*oa.User, error) {
	entity, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return entity.ToUser(false), nil
}

func (s *Store) FindUserByOAuthID(ctx context.Context, provider, oauthID string) (*oa.User, error) {
	entity, err := s.getByIndex(ctx, s.oauthKey(provider, oauthID))
	if err != nil {
		return nil, err
	}
	return entity.ToUser(false), nil
}

func (s *Store) GetPasswordHash(ctx context.Context, id string) (string, error) {
	entity, err := s.getUser(ctx, id)
	if err != nil {
		return "", err
	}
	return entity.PasswordHash, nil
}

// mutate loads, modifies and writes back a user in one transaction.
func (s *Store) mutate(ctx context.Context, id string, fn func(tx *datastore.Transaction, e *UserEntity) error) error {
	key := s.userKey(id)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity UserEntity
		if err := tx.Get(key, &entity); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return fmt.Errorf("user %s: %w", id, oa.ErrNotFound)
			}
			return err
		}
		if err := fn(tx, &entity); err != nil {
			return err
		}
		entity.Version++
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

func (s *Store) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.mutate(ctx, id, func(_ *datastore.Transaction, e *UserEntity) error {
		e.PasswordHash = hash
		e.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (s *Store) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.mutate(ctx, id, func(_ *datastore.Transaction, e *UserEntity) error {
		e.LastLogin = at.UTC()
		return nil
	})
}

func (s *Store) LinkOAuthID(ctx context.Context, id, provider, oauthID, avatar string) error {
	oauthKey := s.oauthKey(provider, oauthID)
	return s.mutate(ctx, id, func(tx *datastore.Transaction, e *UserEntity) error {
		var idx IndexEntity
		err := tx.Get(oauthKey, &idx)
		switch {
		case err == nil && idx.UserID != id:
			return fmt.Errorf("%s identity linked to another account: %w", provider, oa.ErrConflict)
		case err != nil && !errors.Is(err, datastore.ErrNoSuchEntity):
			return err
		}
		if _, err := tx.Put(oauthKey, &IndexEntity{Key: oauthKey, UserID: id, CreatedAt: time.Now().UTC()}); err != nil {
			return err
		}
		if e.OAuthProvider != "" && (e.OAuthProvider != provider || e.OAuthID != oauthID) {
			if err := tx.Delete(s.oauthKey(e.OAuthProvider, e.OAuthID)); err != nil {
				return err
			}
		}
		e.OAuthProvider, e.OAuthID = provider, oauthID
		if e.Avatar == "" {
			e.Avatar = avatar
		}
		e.UpdatedAt = time.Now().UTC()
		return nil
	})
}
