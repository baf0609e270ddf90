package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubUserURL = "https://api.github.com/user"

// GitHubUser is the part of GitHub's /user response we keep.
type GitHubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// GitHubProvider runs the OAuth authorization code flow against GitHub.
//
// The code-for-token exchange happens server to server with the client
// secret, so the GitHub access token never reaches the browser.
type GitHubProvider struct {
	config  *oauth2.Config
	userURL string
}

// NewGitHubProvider configures the flow. callbackURL must match the one
// registered with the GitHub OAuth app exactly.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		userURL: githubUserURL,
	}
}

// AuthURL is where the login handler redirects. state is echoed back on the
// callback and compared against a cookie to stop login CSRF.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for the GitHub profile.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}
	return p.fetchUser(ctx, p.config.Client(ctx, tok))
}

func (p *GitHubProvider) fetchUser(ctx context.Context, client *http.Client) (*GitHubUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building GitHub /user request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling GitHub /user API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: GitHub /user API returned status %d", resp.StatusCode)
	}

	var u GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("auth: decoding GitHub /user response: %w", err)
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}
	return &u, nil
}
