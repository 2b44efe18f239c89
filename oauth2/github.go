package oauth2

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// GitHubAPIURL is the base of GitHub's REST API.
const GitHubAPIURL = "https://api.github.com"

// GitHubScopes cover the profile and the private email list.
var GitHubScopes = []string{"read:user", "user:email"}

// GitHubConfig configures a GitHubProvider. Endpoint, APIURL and HTTPClient
// default to GitHub's production values.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	Endpoint   oauth2.Endpoint
	APIURL     string
	HTTPClient *http.Client
}

// GitHubProvider performs the GitHub authorization code flow.
type GitHubProvider struct {
	config     oauth2.Config
	apiURL     string
	httpClient *http.Client
}

func NewGitHubProvider(cfg GitHubConfig) *GitHubProvider {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = github.Endpoint
	}
	apiURL := strings.TrimSuffix(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = GitHubAPIURL
	}
	return &GitHubProvider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       GitHubScopes,
			Endpoint:     endpoint,
		},
		apiURL:     apiURL,
		httpClient: cfg.HTTPClient,
	}
}

func (g *GitHubProvider) Name() string { return "github" }

func (g *GitHubProvider) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state)
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange trades the code for a token, then reads /user and /user/emails.
// Only the primary address on the email list counts as verified; the public
// profile email is used unverified when the list is unavailable.
func (g *GitHubProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
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
	client := g.config.Client(ctx, token)

	var user githubUser
	if err := fetchJSON(ctx, client, g.apiURL+"/user", &user); err != nil {
		return nil, fmt.Errorf("failed getting user info: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("%w: no id", ErrIncompleteProfile)
	}

	profile := &Profile{
		ProviderID: strconv.FormatInt(user.ID, 10),
		Email:      user.Email,
		Name:       user.Name,
		Avatar:     user.AvatarURL,
	}
	if profile.Name == "" {
		profile.Name = user.Login
	}

	var emails []githubEmail
	if err := fetchJSON(ctx, client, g.apiURL+"/user/emails", &emails); err == nil {
		for _, e := range emails {
			if e.Primary && e.Verified {
				profile.Email, profile.EmailVerified = e.Email, true
				break
			}
		}
	}
	return profile, nil
}
