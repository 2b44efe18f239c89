// Package sessionstore provides a Redis-backed store for scs session
// managers, so sessions survive restarts and are shared across replicas.
package sessionstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is prepended to every session token used as a Redis key.
const DefaultPrefix = "lmsauth:session:"

// RedisStore implements scs.Store and scs.CtxStore on top of go-redis.
// Expiry is delegated to Redis key TTLs.
type RedisStore struct {
	client redis.UniversalClient
	Prefix string
}

// NewRedisStore wraps an existing client. The caller owns the client and
// is responsible for closing it.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, Prefix: DefaultPrefix}
}

func (s *RedisStore) key(token string) string {
	return s.Prefix + token
}

func (s *RedisStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return s.DeleteCtx(ctx, token)
	}
	return s.client.Set(ctx, s.key(token), b, ttl).Err()
}

func (s *RedisStore) DeleteCtx(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

func (s *RedisStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

func (s *RedisStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

func (s *RedisStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}

// Ping reports whether the backing Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
