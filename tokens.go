package lmsauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType separates short-lived access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Default token lifetimes
const (
	DefaultAccessTokenTTL  = 24 * time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenType      = errors.New("unexpected token type")
)

// Claims is the payload of every token we sign. It never carries secrets.
type Claims struct {
	UserID string    `json:"id"`
	Email  string    `json:"email,omitempty"`
	Role   Role      `json:"role,omitempty"`
	Type   TokenType `json:"type"`
	jwt.RegisteredClaims
}

// ClaimsFor builds the identity portion of a token for u.
func ClaimsFor(u *User) Claims {
	return Claims{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// TokenPair is what a successful login hands back.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenIssuer signs and verifies HS256 tokens with one shared secret.
type TokenIssuer struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	secret []byte
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string) *TokenIssuer {
	return (&TokenIssuer{secret: []byte(secret), Issuer: issuer}).EnsureDefaults()
}

func (t *TokenIssuer) EnsureDefaults() *TokenIssuer {
	if t.Issuer == "" {
		t.Issuer = "lmsauth"
	}
	if t.AccessTTL <= 0 {
		t.AccessTTL = DefaultAccessTokenTTL
	}
	if t.RefreshTTL <= 0 {
		t.RefreshTTL = DefaultRefreshTokenTTL
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// WithClock replaces the issuer's time source.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	t.now = now
	return t
}

// IssueAccessToken signs an access token. A zero ttl uses AccessTTL.
func (t *TokenIssuer) IssueAccessToken(c Claims, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = t.AccessTTL
	}
	c.Type = TokenTypeAccess
	return t.sign(c, ttl)
}

// IssueRefreshToken signs a refresh token. A zero ttl uses RefreshTTL.
func (t *TokenIssuer) IssueRefreshToken(c Claims, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = t.RefreshTTL
	}
	c.Type = TokenTypeRefresh
	return t.sign(c, ttl)
}

// IssuePair issues an access and a refresh token with the default lifetimes.
func (t *TokenIssuer) IssuePair(c Claims) (TokenPair, error) {
	var pair TokenPair
	var err error
	if pair.AccessToken, pair.AccessExpiresAt, err = t.IssueAccessToken(c, 0); err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken, pair.RefreshExpiresAt, err = t.IssueRefreshToken(c, 0); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (t *TokenIssuer) sign(c Claims, ttl time.Duration) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(ttl)
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   c.UserID,
		Issuer:    t.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, issuer and expiry. All failures wrap
// ErrInvalidToken together with the specific reason.
func (t *TokenIssuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenExpired)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenSignature)
		default:
			return nil, fmt.Errorf("%w: %w: %v", ErrInvalidToken, ErrTokenMalformed, err)
		}
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenMalformed)
	}
	return claims, nil
}

// VerifyAccess is Verify plus a check that the token is an access token.
func (t *TokenIssuer) VerifyAccess(token string) (*Claims, error) {
	return t.verifyType(token, TokenTypeAccess)
}

// VerifyRefresh is Verify plus a check that the token is a refresh token.
func (t *TokenIssuer) VerifyRefresh(token string) (*Claims, error) {
	return t.verifyType(token, TokenTypeRefresh)
}

func (t *TokenIssuer) verifyType(token string, want TokenType) (*Claims, error) {
	claims, err := t.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: %w: got %q", ErrInvalidToken, ErrTokenType, claims.Type)
	}
	return claims, nil
}
