package lmsauth

import (
	"net/http"
	"time"
)

// CookieConfig controls the token cookies set at login.
type CookieConfig struct {
	// Secure should be true whenever the app is served over https.
	Secure   bool
	Domain   string
	Path     string
	SameSite http.SameSite
}

func (c *CookieConfig) EnsureDefaults() {
	if c.Path == "" {
		c.Path = "/"
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteLaxMode
	}
}

func (c CookieConfig) set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   c.Domain,
		Path:     c.Path,
		MaxAge:   int(maxAge.Seconds()),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Domain:   c.Domain,
		Path:     c.Path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// establish is the common last step of every login path: token cookies plus
// a fresh server-side session for user.
func (s *AuthService) establish(w http.ResponseWriter, r *http.Request, user *User, pair TokenPair) error {
	now := s.Now()
	s.Cookies.set(w, AccessTokenCookie, pair.AccessToken, pair.AccessExpiresAt.Sub(now))
	s.Cookies.set(w, RefreshTokenCookie, pair.RefreshToken, pair.RefreshExpiresAt.Sub(now))

	if s.Sessions == nil {
		return nil
	}
	ctx := r.Context()
	if err := s.Sessions.RenewToken(ctx); err != nil {
		return InternalError(err)
	}
	s.Sessions.Put(ctx, SessionKeyUserID, user.ID)
	s.Sessions.Put(ctx, SessionKeyEmail, user.Email)
	s.Sessions.Put(ctx, SessionKeyRole, string(user.Role))
	s.Sessions.Put(ctx, SessionKeyAuthenticated, true)
	return nil
}

// clearCredentials destroys the session and expires the token cookies.
func (s *AuthService) clearCredentials(w http.ResponseWriter, r *http.Request) {
	if s.Sessions != nil {
		if err := s.Sessions.Destroy(r.Context()); err != nil {
			s.Logger.Warn("error destroying session", "error", err)
		}
	}
	s.Cookies.clear(w, AccessTokenCookie)
	s.Cookies.clear(w, RefreshTokenCookie)
}
