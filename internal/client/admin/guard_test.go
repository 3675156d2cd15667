package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/dmitrijs2005/aivedhaguard/internal/broadcast"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/client"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/storage"
	"github.com/dmitrijs2005/aivedhaguard/internal/common"
	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
	"github.com/dmitrijs2005/aivedhaguard/internal/metrics"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	user      *models.AdminUser
	verifyErr error
	verified  []string

	session   *client.AdminSession
	loginErr  error
	logoutErr error
	loggedOut []string
}

func (f *fakeAPI) AdminVerify(_ context.Context, token string) (*models.AdminUser, error) {
	f.verified = append(f.verified, token)
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.user, nil
}

func (f *fakeAPI) AdminLogin(_ context.Context, _, _ string) (*client.AdminSession, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.session, nil
}

func (f *fakeAPI) AdminLogout(_ context.Context, token string) error {
	f.loggedOut = append(f.loggedOut, token)
	return f.logoutErr
}

type fixture struct {
	store   *storage.SecureStore
	api     *fakeAPI
	metrics *metrics.Metrics
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewSecureStore(storage.NewMemoryKV(), storage.NewMemoryKV(), broadcast.NewLocalBus(), logging.Discard(), nil)
	require.NoError(t, st.Init(context.Background()))
	return &fixture{
		store:   st,
		api:     &fakeAPI{user: &models.AdminUser{ID: "a1", Email: "ops@aivedha.ai", Role: RoleAdmin}},
		metrics: metrics.NewUnregistered(),
		now:     t0,
	}
}

func (f *fixture) guard(enforce bool) *Guard {
	return NewGuard(f.store, f.api, GuardOptions{
		AllowedHosts: []string{"admin.aivedha.ai"},
		EnforceHost:  enforce,
		Now:          func() time.Time { return f.now },
		Metrics:      f.metrics,
	})
}

func (f *fixture) seed(t *testing.T, token string, exp time.Time, cached *models.AdminUser) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SetItem(ctx, common.KeyAdminToken, token))
	require.NoError(t, f.store.SetItem(ctx, common.KeyAdminTokenExpiry, strconv.FormatInt(exp.UnixMilli(), 10)))
	if cached != nil {
		s, err := models.EncodeAdminUser(cached)
		require.NoError(t, err)
		require.NoError(t, f.store.SetItem(ctx, common.KeyAdminUser, s))
	}
}

func (f *fixture) assertCleared(t *testing.T) {
	t.Helper()
	for _, k := range common.AdminSessionKeys {
		_, ok, err := f.store.GetItem(context.Background(), k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
}

func TestGuard_Authenticated(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "tok", t0.Add(time.Hour), nil)

	d := f.guard(true).Check(context.Background(), "admin.aivedha.ai:443", nil)

	require.True(t, d.Allowed())
	assert.Equal(t, "ops@aivedha.ai", d.User.Email)
	assert.False(t, d.Offline)
	assert.Equal(t, []string{"tok"}, f.api.verified)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AdminDecisions.WithLabelValues("authenticated")))

	cached, ok, err := f.store.GetItem(context.Background(), common.KeyAdminUser)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, cached, "ops@aivedha.ai")
}

func TestGuard_WrongHostFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "tok", t0.Add(time.Hour), nil)

	d := f.guard(true).Check(context.Background(), "aivedha.ai", nil)

	assert.Equal(t, StateInvalidSubdomain, d.State)
	assert.Empty(t, f.api.verified)

	// the host check does not touch the stored session
	_, ok, _ := f.store.GetItem(context.Background(), common.KeyAdminToken)
	assert.True(t, ok)
}

func TestGuard_HostCheckBypassedWhenNotEnforced(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "tok", t0.Add(time.Hour), nil)

	d := f.guard(false).Check(context.Background(), "localhost:3000", nil)
	assert.Equal(t, StateAuthenticated, d.State)
}

func TestGuard_NoToken(t *testing.T) {
	f := newFixture(t)

	d := f.guard(true).Check(context.Background(), "admin.aivedha.ai", nil)

	assert.Equal(t, StateUnauthenticated, d.State)
	assert.Empty(t, f.api.verified)
}

func TestGuard_ExpiredTokenClearsSession(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "tok", t0, &models.AdminUser{Email: "ops@aivedha.ai", Role: RoleAdmin})

	d := f.guard(true).Check(context.Background(), "admin.aivedha.ai", nil)

	assert.Equal(t, StateUnauthenticated, d.State)
	assert.Empty(t, f.api.verified)
	f.assertCleared(t)
}

func TestGuard_RejectedTokenClearsSession(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "tok", t0.Add(time.Hour), nil)
	f.api.verifyErr = client.ErrUnauthorized

	d := f.guard(true).Check(context.Background(), "admin.aivedha.ai", nil)

	assert.Equal(t, StateUnauthenticated, d.State)
	f.assertCleared(t)
}

func TestGuard_NetworkFailureTrustsCachedUser(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "tok", t0.Add(time.Hour), &models.AdminUser{Email: "cached@aivedha.ai", Role: RoleSupport})
	f.api.verifyErr = fmt.Errorf("%w: connection refused", client.ErrUnavailable)

	d := f.guard(true).Check(context.Background(), "admin.aivedha.ai", nil)

	require.Equal(t, StateAuthenticated, d.State)
	assert.True(t, d.Offline)
	assert.Equal(t, "cached@aivedha.ai", d.User.Email)
}

func TestGuard_NetworkFailureWithoutCachedUser(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "tok", t0.Add(time.Hour), nil)
	f.api.verifyErr = client.ErrUnavailable

	d := f.guard(true).Check(context.Background(), "admin.aivedha.ai", nil)

	assert.Equal(t, StateUnauthenticated, d.State)
	f.assertCleared(t)
}

func TestGuard_ExpiredTokenAndNetworkFailureDenies(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "tok", t0.Add(-time.Minute), &models.AdminUser{Email: "cached@aivedha.ai", Role: RoleSuperAdmin})
	f.api.verifyErr = client.ErrUnavailable

	d := f.guard(true).Check(context.Background(), "admin.aivedha.ai", nil)

	assert.Equal(t, StateUnauthenticated, d.State)
	f.assertCleared(t)
}

func TestGuard_Roles(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		required []string
		want     State
	}{
		{"allowed role, no route roles", RoleAnalyst, nil, StateAuthenticated},
		{"unknown role", "viewer", nil, StateInvalidRole},
		{"route requires super admin", RoleAdmin, []string{RoleSuperAdmin}, StateInvalidRole},
		{"route role satisfied", RoleSuperAdmin, []string{RoleSuperAdmin}, StateAuthenticated},
		{"route roles cannot widen the allowed set", "viewer", []string{"viewer"}, StateInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "tok", t0.Add(time.Hour), nil)
			f.api.user = &models.AdminUser{Email: "ops@aivedha.ai", Role: tt.role}

			d := f.guard(true).Check(context.Background(), "admin.aivedha.ai", tt.required)
			assert.Equal(t, tt.want, d.State)
		})
	}
}

func TestGuard_ExpiryFromTokenClaim(t *testing.T) {
	f := newFixture(t)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	require.NoError(t, f.store.SetItem(context.Background(), common.KeyAdminToken, tok))

	g := f.guard(true)
	assert.Equal(t, StateAuthenticated, g.Check(context.Background(), "admin.aivedha.ai", nil).State)

	f.now = t0.Add(2 * time.Hour)
	assert.Equal(t, StateUnauthenticated, g.Check(context.Background(), "admin.aivedha.ai", nil).State)
}

func TestGuard_OpaqueTokenWithoutExpiryIsExpired(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetItem(context.Background(), common.KeyAdminToken, "opaque"))

	d := f.guard(true).Check(context.Background(), "admin.aivedha.ai", nil)
	assert.Equal(t, StateUnauthenticated, d.State)
}

func TestState_String(t *testing.T) {
	var zero Decision
	assert.Equal(t, "loading", zero.State.String())
	assert.Equal(t, "invalid_subdomain", StateInvalidSubdomain.String())
}

func TestNormalizeHost(t *testing.T) {
	assert.Equal(t, "admin.aivedha.ai", normalizeHost(" Admin.AiVedha.ai:8443 "))
	assert.Equal(t, "admin.aivedha.ai", normalizeHost("admin.aivedha.ai."))
	assert.Equal(t, "[::1]", normalizeHost("[::1]:8089"))
}

func TestAuthService_LoginStoresSession(t *testing.T) {
	f := newFixture(t)
	f.api.session = &client.AdminSession{
		Token:     "admintok",
		User:      models.AdminUser{ID: "a1", Email: "ops@aivedha.ai", Role: RoleSuperAdmin},
		ExpiresIn: 3600,
	}
	svc := NewAuthService(f.api, f.store, func() time.Time { return f.now }, nil)
	ctx := context.Background()

	u, err := svc.Login(ctx, "ops@aivedha.ai", "pw")
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, u.Role)

	exp, ok, err := f.store.GetItem(ctx, common.KeyAdminTokenExpiry)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, strconv.FormatInt(t0.Add(time.Hour).UnixMilli(), 10), exp)

	tok, _, _ := f.store.GetItem(ctx, common.KeyAdminToken)
	assert.Equal(t, "admintok", tok)

	f.api.user = &f.api.session.User
	d := f.guard(true).Check(ctx, "admin.aivedha.ai", []string{RoleSuperAdmin})
	assert.Equal(t, StateAuthenticated, d.State)
}

func TestAuthService_LoginFailureStoresNothing(t *testing.T) {
	f := newFixture(t)
	f.api.loginErr = client.ErrRejected
	svc := NewAuthService(f.api, f.store, nil, nil)

	_, err := svc.Login(context.Background(), "x@y.z", "bad")
	require.ErrorIs(t, err, client.ErrRejected)
	f.assertCleared(t)
}

func TestAuthService_LogoutBestEffort(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "tok", t0.Add(time.Hour), f.api.user)
	f.api.logoutErr = errors.New("boom")
	svc := NewAuthService(f.api, f.store, nil, nil)

	require.NoError(t, svc.Logout(context.Background()))
	assert.Equal(t, []string{"tok"}, f.api.loggedOut)
	f.assertCleared(t)
}
