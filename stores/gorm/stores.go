package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	oa "github.com/panyam/lmsauth"
)

// AutoMigrate creates or updates the users table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserModel{})
}

// Store implements lmsauth.Store using GORM. Open the *gorm.DB with
// TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return oa.ErrNotFound
	}
	return err
}

func (s *Store) CreateUser(ctx context.Context, u *oa.User) error {
	model := UserToModel(u)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("create user: %w", oa.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	u.Email = model.Email
	u.CreatedAt, u.UpdatedAt = model.CreatedAt, model.UpdatedAt
	return nil
}

func (s *Store) first(ctx context.Context, withHash bool, query string, args ...any) (*oa.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where(query, args...).First(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToUser(withHash), nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*oa.User, error) {
	return s.first(ctx, true, "email = ?", oa.NormalizeEmail(email))
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*oa.User, error) {
	return s.first(ctx, false, "id = ?", id)
}

func (s *Store) FindUserByOAuthID(ctx context.Context, provider, oauthID string) (*oa.User, error) {
	return s.first(ctx, false, "oauth_provider = ? AND oauth_id = ?", provider, oauthID)
}

func (s *Store) GetPasswordHash(ctx context.Context, id string) (string, error) {
	var model UserModel
	err := s.db.WithContext(ctx).Select("id", "password_hash").Where("id = ?", id).First(&model).Error
	if err != nil {
		return "", notFound(err)
	}
	return strVal(model.PasswordHash), nil
}

func (s *Store) updateColumns(ctx context.Context, id string, values map[string]any) error {
	res := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", id).UpdateColumns(values)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return oa.ErrConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return oa.ErrNotFound
	}
	return nil
}

func (s *Store) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.updateColumns(ctx, id, map[string]any{
		"password_hash": hash,
		"updated_at":    time.Now().UTC(),
	})
}

func (s *Store) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.updateColumns(ctx, id, map[string]any{"last_login": at.UTC()})
}

func (s *Store) LinkOAuthID(ctx context.Context, id, provider, oauthID, avatar string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model UserModel
		if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
			return notFound(err)
		}
		values := map[string]any{
			"oauth_provider": provider,
			"oauth_id":       oauthID,
			"updated_at":     time.Now().UTC(),
		}
		if strVal(model.Avatar) == "" && avatar != "" {
			values["avatar"] = avatar
		}
		if err := tx.Model(&model).UpdateColumns(values).Error; err != nil {
			if isDuplicate(err) {
				return oa.ErrConflict
			}
			return err
		}
		return nil
	})
}
