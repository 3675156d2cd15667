package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/aivedhaguard/internal/broadcast"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/storage"
	"github.com/dmitrijs2005/aivedhaguard/internal/common"
	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
	"github.com/dmitrijs2005/aivedhaguard/internal/metrics"
	"github.com/dmitrijs2005/aivedhaguard/internal/timex"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeNav struct {
	path     string
	navigate []string
}

func (n *fakeNav) CurrentPath() string    { return n.path }
func (n *fakeNav) HardNavigate(p string) { n.navigate = append(n.navigate, p) }

type env struct {
	durable  *storage.MemoryKV
	volatile *storage.MemoryKV
	bus      *broadcast.LocalBus
	clock    *fakeClock
}

func newEnv() *env {
	return &env{
		durable:  storage.NewMemoryKV(),
		volatile: storage.NewMemoryKV(),
		bus:      broadcast.NewLocalBus(),
		clock:    newClock(),
	}
}

// tab builds a manager with its own store instance over the shared tiers,
// the way each browser tab has its own credential store module.
func (e *env) tab(t *testing.T, nav Navigator, m *metrics.Metrics) (*Manager, *storage.SecureStore) {
	t.Helper()
	st := storage.NewSecureStore(e.durable, e.volatile, e.bus, logging.Discard(), nil)
	require.NoError(t, st.Init(context.Background()))

	mgr := New(st, Options{
		Timeout:          60 * time.Minute,
		Warning:          5 * time.Minute,
		ActivityDebounce: 5 * time.Second,
		Navigator:        nav,
		Now:              e.clock.Now,
		Metrics:          m,
	})
	require.NoError(t, mgr.Init(context.Background()))
	t.Cleanup(mgr.Close)
	return mgr, st
}

func user(email string) *models.User {
	return &models.User{Email: email, Name: "Test", LoginMethod: models.LoginEmail, Credits: 3, Plan: "free"}
}

func TestInit_EmptyStoreIsUnauthenticated(t *testing.T) {
	e := newEnv()
	m, _ := e.tab(t, nil, nil)

	s := m.Snapshot()
	assert.Equal(t, StateUnauthenticated, s.State)
	assert.Nil(t, s.User)
	assert.False(t, m.IsAuthenticated())
}

func TestLogin_Authenticates(t *testing.T) {
	e := newEnv()
	reg := metrics.NewUnregistered()
	m, st := e.tab(t, nil, reg)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok"))

	assert.True(t, m.IsAuthenticated())
	require.NotNil(t, m.User())
	assert.Equal(t, "a@x.io", m.User().Email)
	assert.Equal(t, "tok", m.Token())
	assert.Equal(t, e.clock.Now().Add(60*time.Minute), m.Snapshot().ExpiresAt)

	raw, ok, err := st.GetItem(ctx, common.KeySessionExpiresAt)
	require.NoError(t, err)
	require.True(t, ok)
	exp, _ := timex.ParseMillis(raw)
	assert.True(t, exp.Equal(e.clock.Now().Add(60*time.Minute)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.SessionTransitions.WithLabelValues(string(StateAuthenticated))))
}

func TestLogin_Rejects(t *testing.T) {
	e := newEnv()
	m, _ := e.tab(t, nil, nil)
	ctx := context.Background()

	require.ErrorIs(t, m.Login(ctx, &models.User{}, "tok"), models.ErrMissingEmail)
	require.ErrorIs(t, m.Login(ctx, user("a@x.io"), ""), common.ErrInvalidToken)
	assert.False(t, m.IsAuthenticated())
}

func TestExpiry_AfterExactlyTimeoutWithoutActivity(t *testing.T) {
	e := newEnv()
	m, st := e.tab(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok"))

	e.clock.Advance(55 * time.Minute)
	require.NoError(t, m.Check(ctx))
	assert.Equal(t, StateExpiringSoon, m.Snapshot().State)
	assert.True(t, m.IsAuthenticated())

	e.clock.Advance(5 * time.Minute)
	require.NoError(t, m.Check(ctx))

	assert.False(t, m.IsAuthenticated())
	assert.Nil(t, m.User())
	_, ok, _ := st.GetItem(ctx, common.KeyAuthToken)
	assert.False(t, ok)
}

func TestActivity_RenewsBeforeOriginalExpiry(t *testing.T) {
	e := newEnv()
	m, _ := e.tab(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok"))
	original := m.Snapshot().ExpiresAt

	e.clock.Advance(59 * time.Minute)
	require.NoError(t, m.Touch(ctx))

	e.clock.Advance(time.Minute)
	require.NoError(t, m.Check(ctx))

	assert.True(t, m.IsAuthenticated())
	assert.True(t, m.Snapshot().ExpiresAt.After(original))
	assert.Equal(t, StateAuthenticated, m.Snapshot().State)
}

func TestActivity_IgnoredWhileExpiringSoon(t *testing.T) {
	e := newEnv()
	m, _ := e.tab(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok"))
	original := m.Snapshot().ExpiresAt

	e.clock.Advance(56 * time.Minute)
	require.NoError(t, m.Check(ctx))
	require.Equal(t, StateExpiringSoon, m.Snapshot().State)

	require.NoError(t, m.Touch(ctx))
	assert.Equal(t, original, m.Snapshot().ExpiresAt)

	require.NoError(t, m.RefreshSession(ctx))
	assert.Equal(t, StateAuthenticated, m.Snapshot().State)
	assert.Equal(t, e.clock.Now().Add(60*time.Minute), m.Snapshot().ExpiresAt)
}

func TestActivity_DebouncedTouchAppliedOnCheck(t *testing.T) {
	e := newEnv()
	m, _ := e.tab(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok"))
	loginExp := m.Snapshot().ExpiresAt

	e.clock.Advance(2 * time.Second)
	require.NoError(t, m.Touch(ctx))
	assert.Equal(t, loginExp, m.Snapshot().ExpiresAt, "touch inside the debounce interval is coalesced")

	activity := e.clock.Now()
	e.clock.Advance(time.Minute)
	require.NoError(t, m.Check(ctx))
	assert.Equal(t, activity.Add(60*time.Minute), m.Snapshot().ExpiresAt)
}

func TestRefreshSession_NoopWhenUnauthenticated(t *testing.T) {
	e := newEnv()
	m, st := e.tab(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.RefreshSession(ctx))
	_, ok, _ := st.GetItem(ctx, common.KeySessionExpiresAt)
	assert.False(t, ok)
}

func TestActivity_AfterMissedExpiryLogsOut(t *testing.T) {
	e := newEnv()
	nav := &fakeNav{path: "/dashboard"}
	m, st := e.tab(t, nav, nil)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok"))

	// no Check runs while the clock moves past the window
	e.clock.Advance(2 * time.Hour)
	require.NoError(t, m.Touch(ctx))

	assert.Equal(t, StateUnauthenticated, m.Snapshot().State)
	assert.Equal(t, []string{"/login"}, nav.navigate)
	keys, err := st.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, m.Check(ctx))
	assert.False(t, m.IsAuthenticated())
}

func TestRefreshSession_AfterMissedExpiryLogsOut(t *testing.T) {
	e := newEnv()
	m, st := e.tab(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok"))

	e.clock.Advance(60 * time.Minute)
	require.NoError(t, m.RefreshSession(ctx))

	assert.Equal(t, StateUnauthenticated, m.Snapshot().State)
	_, ok, _ := st.GetItem(ctx, common.KeySessionExpiresAt)
	assert.False(t, ok)
}

func TestUserSwitch_PurgesPreviousUserArtifacts(t *testing.T) {
	e := newEnv()
	m, st := e.tab(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok-a"))
	require.NoError(t, st.SetItem(ctx, common.PrefixPaymentActivated+"tx1", "true"))
	require.NoError(t, st.SetItem(ctx, common.KeyAuditInProgress, "true"))
	require.NoError(t, st.SetItem(ctx, common.PrefixAuditInProgress+"a@x.io", "true"))
	require.NoError(t, st.SetItem(ctx, common.KeyPendingPlan, "starter"))
	require.NoError(t, st.SetItem(ctx, "theme", "dark"))
	require.NoError(t, m.MarkOnboardingStarted(ctx))

	require.NoError(t, m.Login(ctx, user("b@x.io"), "tok-b"))

	keys, err := st.Keys(ctx)
	require.NoError(t, err)
	for _, k := range keys {
		assert.False(t, common.HasAnyPrefix(k, common.PerUserKeyPrefixes), "residual key %s", k)
		assert.NotEqual(t, common.KeyAuditInProgress, k)
		assert.NotEqual(t, common.KeyPendingPlan, k)
	}
	assert.Contains(t, keys, "theme")

	vkeys, err := e.volatile.Keys(ctx)
	require.NoError(t, err)
	for _, k := range vkeys {
		assert.False(t, common.HasAnyPrefix(k, common.PerUserKeyPrefixes), "residual volatile key %s", k)
	}
	assert.Equal(t, "b@x.io", m.User().Email)
}

func TestSameUserRelogin_KeepsArtifacts(t *testing.T) {
	e := newEnv()
	m, st := e.tab(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok"))
	require.NoError(t, st.SetItem(ctx, common.PrefixPaymentActivated+"tx1", "true"))
	require.NoError(t, m.Login(ctx, user("A@X.io"), "tok2"))

	_, ok, _ := st.GetItem(ctx, common.PrefixPaymentActivated+"tx1")
	assert.True(t, ok)
}

func TestLogout_ProtectedPathHardNavigates(t *testing.T) {
	e := newEnv()
	nav := &fakeNav{path: "/dashboard/overview"}
	m, st := e.tab(t, nav, nil)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok"))
	require.NoError(t, m.Logout(ctx))

	assert.False(t, m.IsAuthenticated())
	assert.Equal(t, []string{"/login"}, nav.navigate)
	keys, _ := st.Keys(ctx)
	assert.Empty(t, keys)
}

func TestLogout_PublicPathStays(t *testing.T) {
	e := newEnv()
	nav := &fakeNav{path: "/pricing"}
	m, _ := e.tab(t, nav, nil)
	ctx := context.Background()

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok"))
	require.NoError(t, m.Logout(ctx))
	assert.Empty(t, nav.navigate)
}

func TestCrossTab_LogoutPropagates(t *testing.T) {
	e := newEnv()
	nav := &fakeNav{path: "/settings"}
	tabA, _ := e.tab(t, nil, nil)
	tabB, _ := e.tab(t, nav, nil)
	ctx := context.Background()

	require.NoError(t, tabA.Login(ctx, user("a@x.io"), "tok"))
	assert.True(t, tabB.IsAuthenticated(), "login in one tab is visible in the other")
	assert.Equal(t, "a@x.io", tabB.User().Email)

	require.NoError(t, tabA.Logout(ctx))
	assert.False(t, tabB.IsAuthenticated())
	assert.Equal(t, []string{"/login"}, nav.navigate)
}

func TestCrossTab_RenewalAdoptedOnCheck(t *testing.T) {
	e := newEnv()
	tabA, _ := e.tab(t, nil, nil)
	tabB, _ := e.tab(t, nil, nil)
	ctx := context.Background()

	require.NoError(t, tabA.Login(ctx, user("a@x.io"), "tok"))
	e.clock.Advance(30 * time.Minute)
	require.NoError(t, tabA.Touch(ctx))

	e.clock.Advance(31 * time.Minute)
	require.NoError(t, tabB.Check(ctx))
	assert.True(t, tabB.IsAuthenticated())
	assert.True(t, tabA.Snapshot().ExpiresAt.Equal(tabB.Snapshot().ExpiresAt))
}

func TestInit_ExpiredStoredSessionIsCleared(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	first, _ := e.tab(t, nil, nil)
	require.NoError(t, first.Login(ctx, user("a@x.io"), "tok"))
	first.Close()

	e.clock.Advance(2 * time.Hour)
	m, st := e.tab(t, nil, nil)

	assert.False(t, m.IsAuthenticated())
	_, ok, _ := st.GetItem(ctx, common.KeyCurrentUser)
	assert.False(t, ok)
}

func TestInit_MissingExpiryIsTreatedAsExpired(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	st := storage.NewSecureStore(e.durable, e.volatile, nil, logging.Discard(), nil)
	require.NoError(t, st.Init(ctx))
	enc, _ := models.EncodeUser(user("a@x.io"))
	require.NoError(t, st.SetItem(ctx, common.KeyCurrentUser, enc))
	require.NoError(t, st.SetItem(ctx, common.KeyAuthToken, "tok"))

	m, _ := e.tab(t, nil, nil)
	assert.False(t, m.IsAuthenticated())
}

func TestUpdateUser(t *testing.T) {
	e := newEnv()
	m, st := e.tab(t, nil, nil)
	ctx := context.Background()

	require.ErrorIs(t, m.UpdateUser(ctx, func(u *models.User) {}), common.ErrNotAuthenticated)

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok"))
	require.NoError(t, m.UpdateUser(ctx, func(u *models.User) { u.Credits = 9 }))

	assert.Equal(t, 9, m.User().Credits)
	raw, _, _ := st.GetItem(ctx, common.KeyCurrentUser)
	stored, err := models.DecodeUser(raw)
	require.NoError(t, err)
	assert.Equal(t, 9, stored.Credits)
}

func TestOnboardingFlag(t *testing.T) {
	e := newEnv()
	m, _ := e.tab(t, nil, nil)
	ctx := context.Background()

	require.ErrorIs(t, m.MarkOnboardingStarted(ctx), common.ErrNotAuthenticated)

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok"))
	started, err := m.OnboardingStarted(ctx)
	require.NoError(t, err)
	assert.False(t, started)

	require.NoError(t, m.MarkOnboardingStarted(ctx))
	started, err = m.OnboardingStarted(ctx)
	require.NoError(t, err)
	assert.True(t, started)
}

func TestOnChange_ReceivesTransitions(t *testing.T) {
	e := newEnv()
	m, _ := e.tab(t, nil, nil)
	ctx := context.Background()

	var states []State
	m.OnChange(func(s Snapshot) { states = append(states, s.State) })

	require.NoError(t, m.Login(ctx, user("a@x.io"), "tok"))
	e.clock.Advance(57 * time.Minute)
	require.NoError(t, m.Check(ctx))
	require.NoError(t, m.Logout(ctx))

	assert.Equal(t, []State{StateAuthenticated, StateExpiringSoon, StateUnauthenticated}, states)
}

func TestRun_StopsOnCancel(t *testing.T) {
	e := newEnv()
	st := storage.NewSecureStore(e.durable, e.volatile, nil, logging.Discard(), nil)
	m := New(st, Options{CheckInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestIsProtected(t *testing.T) {
	assert.True(t, isProtected("/dashboard", DefaultProtectedPaths))
	assert.True(t, isProtected("/audit-results/abc", DefaultProtectedPaths))
	assert.False(t, isProtected("/dashboards", DefaultProtectedPaths))
	assert.False(t, isProtected("/", DefaultProtectedPaths))
}
