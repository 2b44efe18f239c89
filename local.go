package lmsauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
)

// AuthService wires the store, hasher, token issuer and validator into the
// register/login/change-password/refresh operations. Each operation is usable
// without HTTP; the Handle* methods are thin adapters.
type AuthService struct {
	Store     Store
	Hasher    PasswordHasher
	Tokens    *TokenIssuer
	Validator *Validator

	// Sessions is optional. Without it only bearer tokens authenticate.
	Sessions *scs.SessionManager
	Cookies  CookieConfig
	Logger   *slog.Logger

	Now func() time.Time
}

// AuthResult is the outcome of a successful register or login.
type AuthResult struct {
	User   *User
	Tokens TokenPair
}

func NewAuthService(store Store, hasher PasswordHasher, tokens *TokenIssuer, sessions *scs.SessionManager) *AuthService {
	return (&AuthService{
		Store:    store,
		Hasher:   hasher,
		Tokens:   tokens,
		Sessions: sessions,
	}).EnsureDefaults()
}

func (s *AuthService) EnsureDefaults() *AuthService {
	if s.Hasher == nil {
		s.Hasher = NewBcryptHasher(DefaultBcryptCost)
	}
	if s.Validator == nil {
		s.Validator = NewValidator(false)
	}
	if s.Logger == nil {
		s.Logger = discardLogger
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	s.Cookies.EnsureDefaults()
	return s
}

// Authenticator returns the identity checker sharing this service's tokens
// and sessions.
func (s *AuthService) Authenticator() *Authenticator {
	return &Authenticator{Tokens: s.Tokens, Sessions: s.Sessions, Logger: s.Logger}
}

func invalidCredentials() *Error {
	return AuthenticationError(ErrCodeInvalidCreds, "Invalid credentials")
}

// Register creates a local account and logs it in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.Validator.Validate(&req); err != nil {
		return nil, err
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		return nil, ValidationError("", err.Error(), "role")
	}
	email := NormalizeEmail(req.Email)

	if _, err := s.Store.FindUserByEmail(ctx, email); err == nil {
		return nil, emailInUse()
	} else if !errors.Is(err, ErrNotFound) {
		return nil, InternalError(err)
	}

	hash, err := s.Hasher.Hash(req.Password)
	if err != nil {
		return nil, InternalError(err)
	}

	now := s.Now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			// lost a race with a concurrent registration
			return nil, emailInUse()
		}
		return nil, InternalError(err)
	}
	user.PasswordHash = ""

	pair, err := s.Tokens.IssuePair(ClaimsFor(user))
	if err != nil {
		return nil, InternalError(err)
	}
	s.Logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return &AuthResult{User: user, Tokens: pair}, nil
}

func emailInUse() *Error {
	return ConflictError(ErrCodeEmailExists, "Email already in use", "email")
}

// Login verifies an email/password pair. Unknown email, wrong password,
// passwordless and inactive accounts all fail the same way.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.Validator.Validate(&req); err != nil {
		return nil, err
	}

	user, err := s.Store.FindUserByEmail(ctx, NormalizeEmail(req.Email))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, InternalError(err)
		}
		s.Hasher.VerifyAbsent(req.Password)
		s.Logger.Info("login failed", "reason", "unknown_email")
		return nil, invalidCredentials()
	}
	if !user.HasPassword() {
		s.Hasher.VerifyAbsent(req.Password)
		s.Logger.Info("login failed", "reason", "no_password", "user_id", user.ID)
		return nil, invalidCredentials()
	}
	if !s.Hasher.Verify(req.Password, user.PasswordHash) {
		s.Logger.Info("login failed", "reason", "wrong_password", "user_id", user.ID)
		return nil, invalidCredentials()
	}
	if !user.IsActive {
		s.Logger.Info("login failed", "reason", "inactive", "user_id", user.ID)
		return nil, invalidCredentials()
	}
	user.PasswordHash = ""

	s.touchLastLogin(ctx, user)

	pair, err := s.Tokens.IssuePair(ClaimsFor(user))
	if err != nil {
		return nil, InternalError(err)
	}
	return &AuthResult{User: user, Tokens: pair}, nil
}

// touchLastLogin is best effort: failures are logged, never returned.
func (s *AuthService) touchLastLogin(ctx context.Context, user *User) {
	now := s.Now().UTC()
	if err := s.Store.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.Logger.Warn("failed to update last login", "user_id", user.ID, "error", err)
		return
	}
	user.LastLogin = &now
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, id Identity, req ChangePasswordRequest) error {
	if id.UserID == "" {
		return AuthenticationError(ErrCodeNotAuthed, "User not authenticated")
	}
	if err := s.Validator.Validate(&req); err != nil {
		return err
	}

	hash, err := s.Store.GetPasswordHash(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return NotFoundError(ErrCodeUserNotFound, "User not found")
		}
		return InternalError(err)
	}
	if !s.Hasher.Verify(req.CurrentPassword, hash) {
		return AuthenticationError(ErrCodeWrongPassword, "Current password is incorrect")
	}

	newHash, err := s.Hasher.Hash(req.NewPassword)
	if err != nil {
		return InternalError(err)
	}
	if err := s.Store.UpdatePassword(ctx, id.UserID, newHash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return NotFoundError(ErrCodeUserNotFound, "User not found")
		}
		return InternalError(err)
	}
	s.Logger.Info("password changed", "user_id", id.UserID)
	return nil
}

// CurrentUser loads the caller's account without its password hash.
func (s *AuthService) CurrentUser(ctx context.Context, id Identity) (*User, error) {
	if id.UserID == "" {
		return nil, AuthenticationError(ErrCodeNotAuthed, "User not authenticated")
	}
	user, err := s.Store.FindUserByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFoundError(ErrCodeUserNotFound, "User not found")
		}
		return nil, InternalError(err)
	}
	user.PasswordHash = ""
	return user, nil
}

// Refresh trades a refresh token for a new access token. The account must
// still exist and be active.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	if refreshToken == "" {
		return "", time.Time{}, AuthenticationError(ErrCodeMissingToken, "Refresh token required")
	}
	claims, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.Logger.Debug("refresh token rejected", "error", err)
		return "", time.Time{}, invalidRefreshToken()
	}
	user, err := s.Store.FindUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, invalidRefreshToken()
		}
		return "", time.Time{}, InternalError(err)
	}
	if !user.IsActive {
		return "", time.Time{}, invalidRefreshToken()
	}
	token, exp, err := s.Tokens.IssueAccessToken(ClaimsFor(user), 0)
	if err != nil {
		return "", time.Time{}, InternalError(err)
	}
	return token, exp, nil
}

func invalidRefreshToken() *Error {
	return AuthorizationError(ErrCodeInvalidToken, "Invalid refresh token")
}

// HandleRegister serves POST /auth/register.
func (s *AuthService) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	res, err := s.Register(r.Context(), req)
	if err != nil {
		if IsKind(err, KindConflict) {
			s.Logger.Info("registration rejected", "reason", "email_exists")
		}
		writeError(w, s.Logger, err)
		return
	}
	if err := s.establish(w, r, res.User, res.Tokens); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "User registered successfully",
		"token":   res.Tokens.AccessToken,
		"user":    res.User.Public(),
	})
}

// HandleLogin serves POST /auth/login.
func (s *AuthService) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	res, err := s.Login(r.Context(), req)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	if err := s.establish(w, r, res.User, res.Tokens); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful",
		"token":   res.Tokens.AccessToken,
		"user":    res.User.Public(),
	})
}

// HandleLogout serves POST /auth/logout. It always succeeds.
func (s *AuthService) HandleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearCredentials(w, r)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

// HandleChangePassword serves POST|PUT /auth/change-password.
func (s *AuthService) HandleChangePassword(w http.ResponseWriter, r *http.Request, id Identity) {
	var req ChangePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	if err := s.ChangePassword(r.Context(), id, req); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password updated successfully",
	})
}

// HandleMe serves GET /auth/me.
func (s *AuthService) HandleMe(w http.ResponseWriter, r *http.Request, id Identity) {
	user, err := s.CurrentUser(r.Context(), id)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user.Public(),
	})
}

// HandleRefresh serves POST /auth/refresh. The refresh token cookie wins
// over the body.
func (s *AuthService) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		var req RefreshRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, s.Logger, err)
			return
		}
		token = req.RefreshToken
	}
	access, exp, err := s.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	s.Cookies.set(w, AccessTokenCookie, access, exp.Sub(s.Now()))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Token refreshed successfully",
		"accessToken": access,
	})
}
