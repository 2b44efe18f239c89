package oauth2

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

// StateCookieName holds the anti-forgery state between redirect and callback.
const StateCookieName = "oauthstate"

// StateTTL bounds how long a login handshake may take.
const StateTTL = 10 * time.Minute

// NewState returns a random URL-safe state value.
func NewState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SetStateCookie stores state in a short-lived http-only cookie.
func SetStateCookie(w http.ResponseWriter, state string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(StateTTL),
		MaxAge:   int(StateTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearStateCookie expires the state cookie once it has been consumed.
func ClearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})
}

// CheckState compares the state query parameter with the state cookie.
func CheckState(r *http.Request) error {
	c, err := r.Cookie(StateCookieName)
	if err != nil || c.Value == "" {
		return ErrMissingState
	}
	got := r.URL.Query().Get("state")
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(c.Value)) != 1 {
		return ErrStateMismatch
	}
	return nil
}
