package oauth

import (
	"context"
	"crypto/subtle"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/storage"
	"github.com/dmitrijs2005/aivedhaguard/internal/common"
)

const (
	githubAuthorizeURL = "https://github.com/login/oauth/authorize"
	githubCallbackPath = "/auth/github/callback"
)

// GitHubRedirectURI is the callback registered for origin.
func GitHubRedirectURI(origin string) string {
	return strings.TrimRight(origin, "/") + githubCallbackPath
}

// GitHubAuthorizeURL builds the authorization-code redirect.
func GitHubAuthorizeURL(clientID, origin, state string) string {
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("redirect_uri", GitHubRedirectURI(origin))
	q.Set("scope", "read:user user:email")
	q.Set("state", state)
	return githubAuthorizeURL + "?" + q.Encode()
}

// NewGitHubState creates the anti-forgery state for one authorization round
// trip and keeps it in the volatile tier.
func NewGitHubState(ctx context.Context, volatile storage.KV) (string, error) {
	state, err := common.MakeRandHexString(16)
	if err != nil {
		return "", err
	}
	if err := volatile.Set(ctx, common.KeyGitHubOAuthState, []byte(state)); err != nil {
		return "", err
	}
	return state, nil
}

// ConsumeGitHubState checks the state returned to the callback against the
// stored one. The stored state is single use.
func ConsumeGitHubState(ctx context.Context, volatile storage.KV, state string) error {
	stored, err := volatile.Get(ctx, common.KeyGitHubOAuthState)
	if err != nil {
		return err
	}
	if err := volatile.Delete(ctx, common.KeyGitHubOAuthState); err != nil {
		return err
	}
	if stored == nil || state == "" || subtle.ConstantTimeCompare(stored, []byte(state)) != 1 {
		return ErrStateMismatch
	}
	return nil
}
