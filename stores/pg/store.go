package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	oa "github.com/panyam/lmsauth"
)

const userColumns = `id::text, name, email, role, oauth_provider, oauth_id, avatar, is_active, created_at, updated_at, last_login`

// Store implements lmsauth.Store with parameterized SQL over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// scanUser reads userColumns, optionally followed by password_hash.
func scanUser(row pgx.Row, withHash bool) (*oa.User, error) {
	var (
		u                         oa.User
		role                      string
		provider, oauthID, avatar *string
		hash                      *string
	)
	dest := []any{&u.ID, &u.Name, &u.Email, &role, &provider, &oauthID, &avatar, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin}
	if withHash {
		dest = append(dest, &hash)
	}
	if err := row.Scan(dest...); err != nil {
		if isNotFound(err) {
			return nil, oa.ErrNotFound
		}
		return nil, err
	}
	u.Role = oa.Role(role)
	u.OAuthProvider, u.OAuthID, u.Avatar = deref(provider), deref(oauthID), deref(avatar)
	u.PasswordHash = deref(hash)
	return &u, nil
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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, oauth_provider, oauth_id, avatar, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Name, u.Email, nullable(u.PasswordHash), string(u.Role),
		nullable(u.OAuthProvider), nullable(u.OAuthID), nullable(u.Avatar),
		u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("create user: %w", oa.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*oa.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE LOWER(email) = LOWER($1)`,
		oa.NormalizeEmail(email))
	return scanUser(row, true)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*oa.User, error) {
	// compared as text so a malformed id misses instead of failing the cast
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id::text = $1`, id)
	return scanUser(row, false)
}

func (s *Store) FindUserByOAuthID(ctx context.Context, provider, oauthID string) (*oa.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE oauth_provider = $1 AND oauth_id = $2`,
		provider, oauthID)
	return scanUser(row, false)
}

func (s *Store) GetPasswordHash(ctx context.Context, id string) (string, error) {
	var hash *string
	err := s.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id::text = $1`, id).Scan(&hash)
	if err != nil {
		if isNotFound(err) {
			return "", oa.ErrNotFound
		}
		return "", err
	}
	return deref(hash), nil
}

// execOne runs an UPDATE and maps "no rows touched" to ErrNotFound.
func (s *Store) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		if isDuplicateKey(err) {
			return oa.ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return oa.ErrNotFound
	}
	return nil
}

func (s *Store) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.execOne(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id::text = $2`,
		hash, id)
}

func (s *Store) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx,
		`UPDATE users SET last_login = $1 WHERE id::text = $2`,
		at.UTC(), id)
}

func (s *Store) LinkOAuthID(ctx context.Context, id, provider, oauthID, avatar string) error {
	return s.execOne(ctx, `
		UPDATE users
		SET oauth_provider = $1, oauth_id = $2, avatar = COALESCE(avatar, $3), updated_at = NOW()
		WHERE id::text = $4`,
		provider, oauthID, nullable(avatar), id)
}
