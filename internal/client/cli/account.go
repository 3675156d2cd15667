package cli

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/session"
	"github.com/dmitrijs2005/aivedhaguard/internal/common"
)

var errUsage = errors.New("usage")

// Status prints the session state and, when signed in, the subscription.
func (a *App) Status(ctx context.Context) error {
	snap := a.sessions.Snapshot()
	if !snap.IsAuthenticated() {
		a.printf("Session: %s\n", snap.State)
		return nil
	}
	a.touch(ctx)

	a.printf("Session: %s as %s (%s)\n", snap.State, snap.User.Email, snap.User.LoginMethod)
	a.printf("Expires: %s\n", snap.ExpiresAt.Local().Format(time.DateTime))
	if snap.State == session.StateExpiringSoon {
		a.printf("Your session is about to expire. Type 'renew' to stay signed in.\n")
	}
	return a.printSubscription()
}

// Renew extends the session window. Activity alone does not renew a session
// that is already expiring.
func (a *App) Renew(ctx context.Context) error {
	if !a.isLoggedIn() {
		return common.ErrNotAuthenticated
	}
	if err := a.sessions.RefreshSession(ctx); err != nil {
		return err
	}
	snap := a.sessions.Snapshot()
	if !snap.IsAuthenticated() {
		a.printf("Session expired, sign in again\n")
		return common.ErrNotAuthenticated
	}
	a.printf("Session renewed until %s\n", snap.ExpiresAt.Local().Format(time.DateTime))
	return nil
}

// Credits prints the cached subscription without contacting the backend.
func (a *App) Credits(ctx context.Context) error {
	if !a.isLoggedIn() {
		return common.ErrNotAuthenticated
	}
	a.touch(ctx)
	return a.printSubscription()
}

// Refresh re-fetches the subscription. Backend failures keep the cached
// state and are not errors.
func (a *App) Refresh(ctx context.Context) error {
	if !a.isLoggedIn() {
		return common.ErrNotAuthenticated
	}
	a.touch(ctx)
	if err := a.subs.Refresh(ctx); err != nil {
		return err
	}
	return a.printSubscription()
}

// Activate confirms a completed checkout: activate <subscription-id>.
func (a *App) Activate(ctx context.Context, args []string) error {
	if len(args) != 1 {
		a.printf("Usage: activate <subscription-id>\n")
		return errUsage
	}
	if !a.isLoggedIn() {
		return common.ErrNotAuthenticated
	}
	a.touch(ctx)

	switch err := a.subs.Activate(ctx, args[0]); {
	case errors.Is(err, common.ErrAlreadyActivated):
		a.printf("Subscription %s is already active\n", args[0])
		return nil
	case errors.Is(err, common.ErrActivationLocked):
		a.printf("Activation of %s is already in progress, try again shortly\n", args[0])
		return nil
	case err != nil:
		return err
	}
	a.printf("Subscription %s activated\n", args[0])
	return a.printSubscription()
}

func (a *App) printSubscription() error {
	st := a.subs.State()
	if st.Loading {
		a.printf("Subscription: loading\n")
		return nil
	}
	a.printf("Plan: %s (%s)\n", st.PlanName, st.Status)
	a.printf("Credits: %d of %d\n", st.Credits, st.TotalCredits)
	if st.RenewalDate != nil {
		a.printf("Renews: %s\n", st.RenewalDate.Local().Format(time.DateOnly))
	}

	switch {
	case a.subs.IsOutOfCredits():
		a.printf("You are out of credits. Upgrade to run more audits.\n")
	case a.subs.IsCriticalCredits():
		a.printf("Credits are critically low.\n")
	case a.subs.IsLowCredits():
		a.printf("Credits are running low.\n")
	}
	return nil
}
