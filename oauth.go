package lmsauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/panyam/lmsauth/oauth2"
)

// IdentityProvider is an external login provider such as Google.
type IdentityProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Profile, error)
}

// Opaque failure codes appended to the login redirect.
const (
	OAuthErrState    = "oauth_state"
	OAuthErrExchange = "oauth_error"
	OAuthErrResolve  = "oauth_failed"
	OAuthErrLogin    = "login_failed"
)

// OAuthLogin runs delegated login against one provider and lands the browser
// back on the client app.
type OAuthLogin struct {
	Provider IdentityProvider
	Service  *AuthService

	// ClientURL is the frontend origin, e.g. https://app.example.com
	ClientURL string
}

// HandleBegin serves GET /auth/<provider>.
func (o *OAuthLogin) HandleBegin(w http.ResponseWriter, r *http.Request) {
	state, err := oauth2.NewState()
	if err != nil {
		o.Service.Logger.Error("oauth begin failed", "provider", o.Provider.Name(), "error", err)
		o.redirectFailure(w, r, OAuthErrState)
		return
	}
	oauth2.SetStateCookie(w, state, o.Service.Cookies.Secure)
	http.Redirect(w, r, o.Provider.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback serves GET /auth/<provider>/callback.
func (o *OAuthLogin) HandleCallback(w http.ResponseWriter, r *http.Request) {
	logger := o.Service.Logger.With("provider", o.Provider.Name())
	ctx := r.Context()

	err := oauth2.CheckState(r)
	oauth2.ClearStateCookie(w)
	if err != nil {
		logger.Warn("oauth callback rejected", "error", err)
		o.redirectFailure(w, r, OAuthErrState)
		return
	}
	if reason := r.URL.Query().Get("error"); reason != "" {
		logger.Info("oauth consent not granted", "error", oauth2.ErrProviderDenied, "reason", reason)
		o.redirectFailure(w, r, OAuthErrExchange)
		return
	}

	profile, err := o.Provider.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		logger.Warn("oauth exchange failed", "error", err)
		o.redirectFailure(w, r, OAuthErrExchange)
		return
	}

	user, err := o.Service.ResolveOAuthUser(ctx, o.Provider.Name(), profile)
	if err != nil {
		logger.Warn("oauth user resolution failed", "error", err)
		o.redirectFailure(w, r, OAuthErrResolve)
		return
	}

	o.Service.touchLastLogin(ctx, user)
	pair, err := o.Service.Tokens.IssuePair(ClaimsFor(user))
	if err == nil {
		err = o.Service.establish(w, r, user, pair)
	}
	if err != nil {
		logger.Error("oauth login failed", "user_id", user.ID, "error", err)
		o.redirectFailure(w, r, OAuthErrLogin)
		return
	}
	logger.Info("oauth login", "user_id", user.ID)
	http.Redirect(w, r, o.clientURL("/dashboard", url.Values{"login": {"success"}}), http.StatusFound)
}

func (o *OAuthLogin) redirectFailure(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, o.clientURL("/login", url.Values{"error": {code}}), http.StatusFound)
}

func (o *OAuthLogin) clientURL(path string, q url.Values) string {
	return strings.TrimSuffix(o.ClientURL, "/") + path + "?" + q.Encode()
}

// ResolveOAuthUser maps a provider profile to a local account: an existing
// link wins, then an account with the same verified email is linked, and
// otherwise a passwordless student account is created.
func (s *AuthService) ResolveOAuthUser(ctx context.Context, provider string, p *oauth2.Profile) (*User, error) {
	if p == nil || p.ProviderID == "" {
		return nil, fmt.Errorf("%w: missing provider id", oauth2.ErrIncompleteProfile)
	}

	user, err := s.Store.FindUserByOAuthID(ctx, provider, p.ProviderID)
	if err == nil {
		return activeOAuthUser(user)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	email := NormalizeEmail(p.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: missing email", oauth2.ErrIncompleteProfile)
	}

	existing, err := s.Store.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !p.EmailVerified {
			return nil, fmt.Errorf("refusing to link unverified email to account %s", existing.ID)
		}
		if err := s.Store.LinkOAuthID(ctx, existing.ID, provider, p.ProviderID, p.Avatar); err != nil {
			return nil, fmt.Errorf("failed to link %s identity: %w", provider, err)
		}
		existing.PasswordHash = ""
		existing.OAuthProvider, existing.OAuthID = provider, p.ProviderID
		if existing.Avatar == "" {
			existing.Avatar = p.Avatar
		}
		s.Logger.Info("linked oauth identity", "provider", provider, "user_id", existing.ID)
		return activeOAuthUser(existing)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	now := s.Now().UTC()
	user = &User{
		ID:            uuid.NewString(),
		Name:          displayName(p),
		Email:         email,
		Role:          DefaultRole,
		OAuthProvider: provider,
		OAuthID:       p.ProviderID,
		Avatar:        p.Avatar,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			// a concurrent callback for the same identity got there first
			if again, ferr := s.Store.FindUserByOAuthID(ctx, provider, p.ProviderID); ferr == nil {
				return activeOAuthUser(again)
			}
		}
		return nil, fmt.Errorf("failed to create oauth user: %w", err)
	}
	s.Logger.Info("user registered", "user_id", user.ID, "provider", provider)
	return user, nil
}

func activeOAuthUser(u *User) (*User, error) {
	if !u.IsActive {
		return nil, fmt.Errorf("account %s is inactive", u.ID)
	}
	u.PasswordHash = ""
	return u, nil
}

func displayName(p *oauth2.Profile) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(p.Email, "@")
	return local
}
