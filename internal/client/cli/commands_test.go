package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/session"
	"github.com/dmitrijs2005/aivedhaguard/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.app.Status(context.Background()))
	assert.Contains(t, h.out.String(), "Session: unauthenticated")
	assert.Zero(t, h.sessions.touches)

	h.out.Reset()
	h.signIn(t)
	require.NoError(t, h.app.Status(context.Background()))
	out := h.out.String()
	assert.Contains(t, out, "as u@x.io (email)")
	assert.Contains(t, out, "Plan: Starter (active)")
	assert.Contains(t, out, "Credits: 8 of 10")
	assert.Equal(t, 1, h.sessions.touches)
}

func TestCredits_Warnings(t *testing.T) {
	h := newHarness(t, "")
	h.signIn(t)

	h.subs.state.Credits = 2
	require.NoError(t, h.app.Credits(context.Background()))
	assert.Contains(t, h.out.String(), "running low")

	h.out.Reset()
	h.subs.state.Credits = 0
	require.NoError(t, h.app.Credits(context.Background()))
	assert.Contains(t, h.out.String(), "out of credits")
}

func TestCommandsRequireSession(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	require.ErrorIs(t, h.app.Credits(ctx), common.ErrNotAuthenticated)
	require.ErrorIs(t, h.app.Refresh(ctx), common.ErrNotAuthenticated)
	require.ErrorIs(t, h.app.Activate(ctx, []string{"I-1"}), common.ErrNotAuthenticated)
	require.ErrorIs(t, h.app.Audit(ctx, []string{"example.com"}), common.ErrNotAuthenticated)
}

func TestStatus_ExpiringSoonSuggestsRenew(t *testing.T) {
	h := newHarness(t, "")
	h.signIn(t)
	h.sessions.snap.State = session.StateExpiringSoon

	require.NoError(t, h.app.Status(context.Background()))
	assert.Contains(t, h.out.String(), "Type 'renew' to stay signed in")
}

func TestRenew(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	require.ErrorIs(t, h.app.Renew(ctx), common.ErrNotAuthenticated)

	h.signIn(t)
	h.sessions.snap.State = session.StateExpiringSoon
	require.NoError(t, h.app.Renew(ctx))

	assert.Equal(t, 1, h.sessions.renewals)
	assert.Equal(t, session.StateAuthenticated, h.sessions.snap.State)
	assert.Contains(t, h.out.String(), "Session renewed until")
}

func TestRenew_AlreadyExpired(t *testing.T) {
	h := newHarness(t, "")
	h.signIn(t)
	h.sessions.expired = true

	require.ErrorIs(t, h.app.Renew(context.Background()), common.ErrNotAuthenticated)
	assert.False(t, h.app.isLoggedIn())
	assert.Contains(t, h.out.String(), "sign in again")
}

func TestRefresh(t *testing.T) {
	h := newHarness(t, "")
	h.signIn(t)

	require.NoError(t, h.app.Refresh(context.Background()))
	assert.Equal(t, 1, h.subs.refreshes)
}

func TestActivate(t *testing.T) {
	h := newHarness(t, "")
	h.signIn(t)
	ctx := context.Background()

	require.ErrorIs(t, h.app.Activate(ctx, nil), errUsage)

	require.NoError(t, h.app.Activate(ctx, []string{"I-1"}))
	assert.Equal(t, []string{"I-1"}, h.subs.activated)
	assert.Contains(t, h.out.String(), "Subscription I-1 activated")

	h.subs.activateErr = common.ErrAlreadyActivated
	require.NoError(t, h.app.Activate(ctx, []string{"I-1"}))
	assert.Contains(t, h.out.String(), "already active")

	h.subs.activateErr = common.ErrActivationLocked
	require.NoError(t, h.app.Activate(ctx, []string{"I-1"}))
	assert.Contains(t, h.out.String(), "already in progress")

	h.subs.activateErr = errors.New("boom")
	require.Error(t, h.app.Activate(ctx, []string{"I-1"}))
}

func TestCheckURL(t *testing.T) {
	h := newHarness(t, "")

	require.NoError(t, h.app.CheckURL(context.Background(), []string{"example.com"}))
	out := h.out.String()
	assert.Contains(t, out, "Target: https://example.com")
	assert.Contains(t, out, "Region: United States")
	assert.Contains(t, out, "44.206.201.117")

	h.out.Reset()
	require.NoError(t, h.app.CheckURL(context.Background(), []string{"http://192.168.1.1"}))
	assert.Contains(t, h.out.String(), "error: ")
	assert.NotContains(t, h.out.String(), "Region:")
}

func TestAudit_ConfirmedStarts(t *testing.T) {
	h := newHarness(t, "y\n")
	h.signIn(t)

	require.NoError(t, h.app.Audit(context.Background(), []string{"example.com"}))
	require.Len(t, h.auditor.started, 1)
	assert.Equal(t, "https://example.com", h.auditor.started[0].Validation.NormalizedURL)
	assert.Contains(t, h.out.String(), "Audit started, report rep-1")
}

func TestAudit_Declined(t *testing.T) {
	h := newHarness(t, "n\n")
	h.signIn(t)

	require.NoError(t, h.app.Audit(context.Background(), []string{"example.com"}))
	assert.Empty(t, h.auditor.started)
	assert.Contains(t, h.out.String(), "Cancelled")
}

func TestAudit_InvalidTargetNeverPrompts(t *testing.T) {
	h := newHarness(t, "y\n")
	h.signIn(t)

	require.NoError(t, h.app.Audit(context.Background(), []string{"http://localhost"}))
	assert.Empty(t, h.auditor.started)
	assert.NotContains(t, h.out.String(), "[y/N]")
}

func TestAudit_OutOfCredits(t *testing.T) {
	h := newHarness(t, "y\n")
	h.signIn(t)
	h.auditor.credits = 0

	require.ErrorIs(t, h.app.Audit(context.Background(), []string{"example.com"}), common.ErrOutOfCredits)
	assert.Empty(t, h.auditor.started)
}
