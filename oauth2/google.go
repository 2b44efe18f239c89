package oauth2

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleUserInfoURL is Google's userinfo endpoint.
const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleScopes are the scopes needed to read email and profile.
var GoogleScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// GoogleConfig configures a GoogleProvider. Endpoint, UserInfoURL and
// HTTPClient default to Google's production values.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	Endpoint    oauth2.Endpoint
	UserInfoURL string
	HTTPClient  *http.Client
}

// GoogleProvider performs the Google authorization code flow.
type GoogleProvider struct {
	config      oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = GoogleUserInfoURL
	}
	return &GoogleProvider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       GoogleScopes,
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
		httpClient:  cfg.HTTPClient,
	}
}

func (g *GoogleProvider) Name() string { return "google" }

// AuthCodeURL is where the browser is sent to consent.
func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state)
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Exchange trades the authorization code for a token and fetches the
// user's profile with it.
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	if g.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	var info googleUserInfo
	if err := fetchJSON(ctx, g.config.Client(ctx, token), g.userInfoURL, &info); err != nil {
		return nil, fmt.Errorf("failed getting user info: %w", err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%w: no id", ErrIncompleteProfile)
	}
	return &Profile{
		ProviderID:    info.ID,
		Email:         info.Email,
		Name:          info.Name,
		Avatar:        info.Picture,
		EmailVerified: info.VerifiedEmail,
	}, nil
}
