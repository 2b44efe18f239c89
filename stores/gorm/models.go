package gorm

import (
	"time"

	oa "github.com/panyam/lmsauth"
)

// UserModel is the GORM model for users. Emails are stored normalized, so a
// plain unique index gives case-insensitive uniqueness.
type UserModel struct {
	ID            string     `gorm:"primaryKey;size:64"`
	Name          string     `gorm:"size:255;not null"`
	Email         string     `gorm:"size:255;not null;uniqueIndex:idx_users_email"`
	PasswordHash  *string    `gorm:"column:password_hash"`
	Role          string     `gorm:"size:20;not null"`
	OAuthProvider *string    `gorm:"column:oauth_provider;size:32;uniqueIndex:idx_users_oauth_identity"`
	OAuthID       *string    `gorm:"column:oauth_id;size:255;uniqueIndex:idx_users_oauth_identity"`
	Avatar        *string    `gorm:"column:avatar"`
	IsActive      bool       `gorm:"column:is_active;not null"`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`
	LastLogin     *time.Time `gorm:"column:last_login"`
}

func (UserModel) TableName() string {
	return "users"
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ToUser converts the model, dropping the hash unless withHash is set.
func (m *UserModel) ToUser(withHash bool) *oa.User {
	u := &oa.User{
		ID:            m.ID,
		Name:          m.Name,
		Email:         m.Email,
		Role:          oa.Role(m.Role),
		OAuthProvider: strVal(m.OAuthProvider),
		OAuthID:       strVal(m.OAuthID),
		Avatar:        strVal(m.Avatar),
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		LastLogin:     m.LastLogin,
	}
	if withHash {
		u.PasswordHash = strVal(m.PasswordHash)
	}
	return u
}

func UserToModel(u *oa.User) *UserModel {
	return &UserModel{
		ID:            u.ID,
		Name:          u.Name,
		Email:         oa.NormalizeEmail(u.Email),
		PasswordHash:  strPtr(u.PasswordHash),
		Role:          string(u.Role),
		OAuthProvider: strPtr(u.OAuthProvider),
		OAuthID:       strPtr(u.OAuthID),
		Avatar:        strPtr(u.Avatar),
		IsActive:      u.IsActive,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
		LastLogin:     u.LastLogin,
	}
}
