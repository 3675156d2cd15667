package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/client"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/oauth"
	"github.com/dmitrijs2005/aivedhaguard/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

var errGitHubNotConfigured = errors.New("github sign-in is not configured")

// Login prompts for email and password and signs in.
//
// The password is wiped before returning. A backend outage is reported as
// such; the stored session, if any, is left untouched.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	res, err := a.api.EmailLogin(ctx, email, string(password))
	if err != nil {
		if errors.Is(err, client.ErrUnavailable) {
			a.log.Warn(ctx, "sign-in service unavailable", "error", err)
		}
		return err
	}
	return a.establish(ctx, res, models.LoginEmail)
}

// GoogleLogin signs in with a Google Identity Services credential, given as
// the first argument or pasted at the prompt.
func (a *App) GoogleLogin(ctx context.Context, args []string) error {
	credential := ""
	if len(args) > 0 {
		credential = args[0]
	} else {
		var err error
		if credential, err = getSimpleText(a.reader, "Paste Google credential", a.out); err != nil {
			return err
		}
	}

	profile, err := oauth.DecodeGoogleCredential(credential)
	if err != nil {
		return err
	}
	a.printf("Signing in as %s <%s>\n", profile.Name, profile.Email)

	res, err := a.api.GoogleLogin(ctx, credential)
	if err != nil {
		return err
	}
	if res.User.Picture == "" {
		res.User.Picture = profile.Picture
	}
	return a.establish(ctx, res, models.LoginGoogle)
}

// GitHubLogin prints the authorization URL, then reads back the code and
// state GitHub redirected with. With two arguments they are taken as code
// and state directly, completing a flow started earlier.
func (a *App) GitHubLogin(ctx context.Context, args []string) error {
	var code, state string
	if len(args) >= 2 {
		code, state = args[0], args[1]
	} else {
		if a.githubClientID == "" {
			return errGitHubNotConfigured
		}
		st, err := oauth.NewGitHubState(ctx, a.volatile)
		if err != nil {
			return err
		}
		a.printf("Open this URL to authorize:\n%s\n", oauth.GitHubAuthorizeURL(a.githubClientID, a.origin, st))

		if code, err = getSimpleText(a.reader, "Paste the code parameter", a.out); err != nil {
			return err
		}
		if state, err = getSimpleText(a.reader, "Paste the state parameter", a.out); err != nil {
			return err
		}
	}

	if err := oauth.ConsumeGitHubState(ctx, a.volatile, state); err != nil {
		return err
	}
	res, err := a.api.GitHubLogin(ctx, code, oauth.GitHubRedirectURI(a.origin))
	if err != nil {
		return err
	}
	return a.establish(ctx, res, models.LoginGitHub)
}

// establish stores the session and pulls the subscription for the new user.
// A failed subscription fetch does not undo the sign-in.
func (a *App) establish(ctx context.Context, res *client.AuthResult, method models.LoginMethod) error {
	user := res.User
	if user.LoginMethod == "" {
		user.LoginMethod = method
	}
	if err := a.sessions.Login(ctx, &user, res.Token); err != nil {
		return err
	}
	a.api.SetAuthToken(res.Token)

	if err := a.subs.Refresh(ctx); err != nil {
		a.log.Warn(ctx, "subscription refresh after sign-in failed", "error", err)
	}
	a.printf("Signed in as %s\n", user.Email)
	a.onboard(ctx)
	return nil
}

// onboard prints the first steps once per session for each user.
func (a *App) onboard(ctx context.Context) {
	started, err := a.sessions.OnboardingStarted(ctx)
	if err != nil {
		a.log.Warn(ctx, "failed to read onboarding flag", "error", err)
		return
	}
	if started {
		return
	}
	a.printf("Get started: 'check <url>' validates a target, 'audit <url>' runs a scan.\n")
	if err := a.sessions.MarkOnboardingStarted(ctx); err != nil {
		a.log.Warn(ctx, "failed to set onboarding flag", "error", err)
	}
}

// Logout ends the session and forgets the bearer token.
func (a *App) Logout(ctx context.Context) error {
	if err := a.sessions.Logout(ctx); err != nil {
		return err
	}
	a.api.SetAuthToken("")
	if err := a.subs.Refresh(ctx); err != nil {
		a.log.Warn(ctx, "failed to reset subscription after sign-out", "error", err)
	}
	a.printf("Signed out\n")
	return nil
}
