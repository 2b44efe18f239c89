package lmsauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
)

// Names of the cookies and session keys shared by every login path.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"

	SessionKeyUserID        = "userId"
	SessionKeyEmail         = "email"
	SessionKeyRole          = "role"
	SessionKeyAuthenticated = "authenticated"
)

// AuthMethod records which credential established an Identity.
type AuthMethod string

const (
	AuthMethodBearer  AuthMethod = "bearer"
	AuthMethodCookie  AuthMethod = "cookie"
	AuthMethodSession AuthMethod = "session"
)

// Identity is the authenticated caller, passed by value to handlers that
// need one.
type Identity struct {
	UserID string
	Email  string
	Role   Role
	Method AuthMethod
}

func identityFromClaims(c *Claims, m AuthMethod) Identity {
	return Identity{UserID: c.UserID, Email: c.Email, Role: c.Role, Method: m}
}

type identityKey struct{}

// ContextWithIdentity stores id in ctx.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by ContextWithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// AuthedHandlerFunc is a handler that only runs for authenticated callers.
type AuthedHandlerFunc func(w http.ResponseWriter, r *http.Request, id Identity)

var errNoCredentials = errors.New("no credentials presented")

// Authenticator answers "who is calling" from either a bearer token or a
// server-side session. Either one is enough.
type Authenticator struct {
	Tokens *TokenIssuer

	// Sessions is optional. When set, requests must pass through its
	// LoadAndSave middleware before reaching the authenticator.
	Sessions *scs.SessionManager

	Logger *slog.Logger
}

func (a *Authenticator) logger() *slog.Logger {
	if a.Logger == nil {
		return discardLogger
	}
	return a.Logger
}

// BearerIdentity checks the Authorization header, then the access token
// cookie. It returns errNoCredentials when neither is present.
func (a *Authenticator) BearerIdentity(r *http.Request) (Identity, error) {
	var lastErr error = errNoCredentials
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		claims, err := a.Tokens.VerifyAccess(token)
		if err == nil {
			return identityFromClaims(claims, AuthMethodBearer), nil
		}
		a.logger().Debug("bearer token rejected", "error", err)
		lastErr = err
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		claims, err := a.Tokens.VerifyAccess(c.Value)
		if err == nil {
			return identityFromClaims(claims, AuthMethodCookie), nil
		}
		a.logger().Debug("access token cookie rejected", "error", err)
		lastErr = err
	}
	return Identity{}, lastErr
}

// bearerToken returns the credentials of an Authorization header using the
// Bearer scheme, matched case-insensitively, or "".
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SessionIdentity reads the identity written at login.
func (a *Authenticator) SessionIdentity(r *http.Request) (Identity, bool) {
	if a.Sessions == nil {
		return Identity{}, false
	}
	ctx := r.Context()
	userID := a.Sessions.GetString(ctx, SessionKeyUserID)
	if userID == "" {
		return Identity{}, false
	}
	return Identity{
		UserID: userID,
		Email:  a.Sessions.GetString(ctx, SessionKeyEmail),
		Role:   Role(a.Sessions.GetString(ctx, SessionKeyRole)),
		Method: AuthMethodSession,
	}, true
}

// Authenticate returns the caller's identity or an authentication *Error.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	id, bearerErr := a.BearerIdentity(r)
	if bearerErr == nil {
		return id, nil
	}
	if id, ok := a.SessionIdentity(r); ok {
		return id, nil
	}
	if errors.Is(bearerErr, ErrInvalidToken) {
		return Identity{}, AuthenticationError(ErrCodeInvalidToken, "Invalid or expired token")
	}
	return Identity{}, AuthenticationError(ErrCodeNotAuthed, "Not authenticated")
}

// Require runs next only for authenticated callers and responds 401 otherwise.
func (a *Authenticator) Require(next AuthedHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.Authenticate(r)
		if err != nil {
			writeError(w, a.logger(), err)
			return
		}
		next(w, r.WithContext(ContextWithIdentity(r.Context(), id)), id)
	})
}

// RequireRole is Require plus a minimum role; lower roles get 403.
func (a *Authenticator) RequireRole(role Role, next AuthedHandlerFunc) http.Handler {
	return a.Require(func(w http.ResponseWriter, r *http.Request, id Identity) {
		if !id.Role.AtLeast(role) {
			writeError(w, a.logger(), AuthorizationError("insufficient_role", "Insufficient permissions"))
			return
		}
		next(w, r, id)
	})
}
