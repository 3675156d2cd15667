package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/aivedhaguard/internal/broadcast"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/storage"
	"github.com/dmitrijs2005/aivedhaguard/internal/common"
	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
	"github.com/dmitrijs2005/aivedhaguard/internal/metrics"
	"github.com/dmitrijs2005/aivedhaguard/internal/timex"
)

type State string

const (
	StateUninitialized   State = "uninitialized"
	StateAuthenticated   State = "authenticated"
	StateExpiringSoon    State = "expiring_soon"
	StateUnauthenticated State = "unauthenticated"
)

// DefaultProtectedPaths are the routes that force a full navigation to the
// login page on logout.
var DefaultProtectedPaths = []string{
	"/dashboard",
	"/profile",
	"/security-audit",
	"/audit-results",
	"/settings",
	"/purchase",
	"/referral",
}

// Store is the slice of the credential store the manager needs.
type Store interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Volatile() storage.KV
	Subscribe(handler func(broadcast.Event)) func()
}

// Navigator performs full navigations, discarding all in-memory client state.
type Navigator interface {
	CurrentPath() string
	HardNavigate(path string)
}

type Options struct {
	Timeout          time.Duration
	Warning          time.Duration
	CheckInterval    time.Duration
	ActivityDebounce time.Duration
	LoginPath        string
	ProtectedPaths   []string
	Navigator        Navigator
	Now              func() time.Time
	Logger           logging.Logger
	Metrics          *metrics.Metrics
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Minute
	}
	if o.Warning <= 0 {
		o.Warning = 5 * time.Minute
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = time.Minute
	}
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}
	if o.ProtectedPaths == nil {
		o.ProtectedPaths = DefaultProtectedPaths
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewUnregistered()
	}
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	State     State
	User      *models.User
	ExpiresAt time.Time
}

func (s Snapshot) IsAuthenticated() bool {
	return s.State == StateAuthenticated || s.State == StateExpiringSoon
}

type Manager struct {
	store Store
	opts  Options
	log   logging.Logger

	mu          sync.Mutex
	state       State
	user        *models.User
	token       string
	expiresAt   time.Time
	lastRenewal time.Time
	pending     time.Time
	listeners   []func(Snapshot)
	unsubscribe func()
}

func New(store Store, opts Options) *Manager {
	opts.applyDefaults()
	return &Manager{
		store: store,
		opts:  opts,
		log:   opts.Logger.With("component", "session"),
		state: StateUninitialized,
	}
}

// OnChange registers fn to be called after every state transition.
func (m *Manager) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{State: m.state, ExpiresAt: m.expiresAt}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	return s
}

func (m *Manager) IsAuthenticated() bool { return m.Snapshot().IsAuthenticated() }

// User returns a copy of the current user, or nil.
func (m *Manager) User() *models.User { return m.Snapshot().User }

// Token returns the bearer token, or "" when unauthenticated.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Init derives the state from the store and starts following changes made
// by other clients. It may be called again; the subscription is made once.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.unsubscribe == nil {
		m.unsubscribe = m.store.Subscribe(m.handleEvent)
	}
	m.mu.Unlock()

	return m.reload(ctx, true)
}

func (m *Manager) handleEvent(ev broadcast.Event) {
	switch ev.Key {
	case common.KeyCurrentUser, common.KeyAuthToken, common.KeySessionExpiresAt:
	default:
		return
	}
	ctx := context.Background()
	if err := m.reload(ctx, false); err != nil {
		m.log.Warn(ctx, "reload after external change failed", "key", ev.Key, "error", err)
	}
}

func (m *Manager) reload(ctx context.Context, destructive bool) error {
	m.mu.Lock()
	prev := m.snapshotLocked()
	err := m.reloadLocked(ctx, destructive)
	next := m.snapshotLocked()
	m.mu.Unlock()

	m.after(ctx, prev, next)
	return err
}

// reloadLocked re-derives the session from the store. When destructive is
// set, a stored session found unusable or expired is also removed from the
// store; change events only update memory, since the writer may still be
// half way through its writes.
func (m *Manager) reloadLocked(ctx context.Context, destructive bool) error {
	rawUser, hasUser, err := m.store.GetItem(ctx, common.KeyCurrentUser)
	if err != nil {
		return err
	}
	token, hasToken, err := m.store.GetItem(ctx, common.KeyAuthToken)
	if err != nil {
		return err
	}
	rawExp, _, err := m.store.GetItem(ctx, common.KeySessionExpiresAt)
	if err != nil {
		return err
	}

	if !hasUser || !hasToken || token == "" {
		m.clearLocked()
		return nil
	}

	user, err := models.DecodeUser(rawUser)
	if err != nil {
		m.log.Warn(ctx, "stored user unreadable", "error", err)
		return m.dropLocked(ctx, destructive)
	}

	exp, ok := timex.ParseMillis(rawExp)
	if !ok || !m.opts.Now().Before(exp) {
		return m.dropLocked(ctx, destructive)
	}

	m.user = user
	m.token = token
	if exp.After(m.expiresAt) || m.state == StateUninitialized || m.state == StateUnauthenticated {
		m.expiresAt = exp
		m.lastRenewal = exp.Add(-m.opts.Timeout)
	}
	m.state = m.classifyLocked()
	return nil
}

// classifyLocked is the state implied by the expiry for a live session.
func (m *Manager) classifyLocked() State {
	if m.expiresAt.Sub(m.opts.Now()) <= m.opts.Warning {
		return StateExpiringSoon
	}
	return StateAuthenticated
}

// Login starts a session for user. A different user previously stored on the
// profile has every per-user artifact purged first.
func (m *Manager) Login(ctx context.Context, user *models.User, token string) error {
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return models.ErrMissingEmail
	}
	if token == "" {
		return common.ErrInvalidToken
	}

	encoded, err := models.EncodeUser(user)
	if err != nil {
		return err
	}

	m.mu.Lock()
	prev := m.snapshotLocked()

	previous := m.user
	if raw, ok, err := m.store.GetItem(ctx, common.KeyCurrentUser); err == nil && ok {
		if stored, err := models.DecodeUser(raw); err == nil {
			previous = stored
		}
	}
	if previous != nil && !previous.SameIdentity(user) {
		if err := m.purgeUserArtifactsLocked(ctx, previous); err != nil {
			m.mu.Unlock()
			return err
		}
		m.log.Info(ctx, "identity switched, purged previous user's data")
	}

	now := m.opts.Now()
	exp := now.Add(m.opts.Timeout)

	// Expiry first: a reader that sees the new user also sees a live expiry.
	for _, kv := range [][2]string{
		{common.KeySessionExpiresAt, timex.FormatMillis(exp)},
		{common.KeyAuthToken, token},
		{common.KeyCurrentUser, encoded},
	} {
		if err := m.store.SetItem(ctx, kv[0], kv[1]); err != nil {
			m.mu.Unlock()
			return err
		}
	}

	u := *user
	m.user = &u
	m.token = token
	m.expiresAt = exp
	m.lastRenewal = now
	m.pending = time.Time{}
	m.state = StateAuthenticated
	next := m.snapshotLocked()
	m.mu.Unlock()

	m.after(ctx, prev, next)
	return nil
}

// purgeUserArtifactsLocked removes every per-user key from both tiers.
func (m *Manager) purgeUserArtifactsLocked(ctx context.Context, previous *models.User) error {
	keys, err := m.store.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if isPerUserKey(k) {
			if err := m.store.RemoveItem(ctx, k); err != nil {
				return err
			}
		}
	}

	vol := m.store.Volatile()
	vkeys, err := vol.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range vkeys {
		if isPerUserKey(k) {
			if err := vol.Delete(ctx, k); err != nil {
				return err
			}
		}
	}
	return nil
}

func isPerUserKey(k string) bool {
	return slices.Contains(common.PerUserKeys, k) || common.HasAnyPrefix(k, common.PerUserKeyPrefixes)
}

// Logout ends the session. On a protected route the navigator performs a
// full navigation to the login page.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	prev := m.snapshotLocked()
	err := m.removeSessionKeysLocked(ctx)
	m.clearLocked()
	next := m.snapshotLocked()
	m.mu.Unlock()

	m.after(ctx, prev, next)
	return err
}

func (m *Manager) dropLocked(ctx context.Context, removeKeys bool) error {
	var err error
	if removeKeys {
		err = m.removeSessionKeysLocked(ctx)
	}
	m.clearLocked()
	return err
}

func (m *Manager) removeSessionKeysLocked(ctx context.Context) error {
	var errs []error
	for _, k := range []string{common.KeyCurrentUser, common.KeyAuthToken, common.KeySessionExpiresAt} {
		if err := m.store.RemoveItem(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) clearLocked() {
	m.user = nil
	m.token = ""
	m.expiresAt = time.Time{}
	m.lastRenewal = time.Time{}
	m.pending = time.Time{}
	m.state = StateUnauthenticated
}

// RefreshSession renews the window to now + timeout. It is the explicit
// action that also lifts an expiring-soon session back to authenticated.
// It is a no-op when not authenticated.
func (m *Manager) RefreshSession(ctx context.Context) error {
	m.mu.Lock()
	prev := m.snapshotLocked()
	if !prev.IsAuthenticated() {
		m.mu.Unlock()
		return nil
	}
	now := m.opts.Now()
	var err error
	expired := m.expiredLocked(now)
	if expired {
		err = m.dropLocked(ctx, true)
	} else {
		err = m.renewLocked(ctx, now)
	}
	next := m.snapshotLocked()
	m.mu.Unlock()

	if expired {
		m.log.Info(ctx, "session expired")
	}
	m.after(ctx, prev, next)
	return err
}

// expiredLocked reports whether the stored window has already closed, even if
// no Check has observed it yet.
func (m *Manager) expiredLocked(now time.Time) bool {
	return !m.expiresAt.IsZero() && !now.Before(m.expiresAt)
}

func (m *Manager) renewLocked(ctx context.Context, at time.Time) error {
	exp := at.Add(m.opts.Timeout)
	if err := m.store.SetItem(ctx, common.KeySessionExpiresAt, timex.FormatMillis(exp)); err != nil {
		return err
	}
	m.expiresAt = exp
	m.lastRenewal = at
	m.pending = time.Time{}
	m.state = m.classifyLocked()
	return nil
}

// Touch records user activity. Touches within the debounce interval of the
// last renewal are coalesced and applied on the next Check. Activity never
// renews an expiring-soon session.
func (m *Manager) Touch(ctx context.Context) error {
	m.mu.Lock()
	prev := m.snapshotLocked()
	if m.state != StateAuthenticated {
		m.mu.Unlock()
		return nil
	}

	now := m.opts.Now()
	var err error
	switch {
	case m.expiredLocked(now):
		err = m.dropLocked(ctx, true)
	case now.Sub(m.lastRenewal) < m.opts.ActivityDebounce:
		m.pending = now
	default:
		err = m.renewLocked(ctx, now)
	}
	next := m.snapshotLocked()
	m.mu.Unlock()

	if prev.IsAuthenticated() && !next.IsAuthenticated() {
		m.log.Info(ctx, "session expired")
	}
	m.after(ctx, prev, next)
	return err
}

// Check is the periodic expiry tick. It applies coalesced activity, adopts a
// later expiry written by another client, logs out an expired session and
// flags one inside the warning window.
func (m *Manager) Check(ctx context.Context) error {
	m.mu.Lock()
	prev := m.snapshotLocked()
	if !prev.IsAuthenticated() {
		m.mu.Unlock()
		return nil
	}

	var err error
	if !m.pending.IsZero() && m.state == StateAuthenticated {
		err = m.renewLocked(ctx, m.pending)
	}
	if err == nil {
		err = m.reloadLocked(ctx, true)
	}
	next := m.snapshotLocked()
	m.mu.Unlock()

	if prev.IsAuthenticated() && !next.IsAuthenticated() {
		m.log.Info(ctx, "session expired")
	}
	m.after(ctx, prev, next)
	return err
}

// UpdateUser applies fn to a copy of the current user and persists it.
func (m *Manager) UpdateUser(ctx context.Context, fn func(u *models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.user == nil {
		return common.ErrNotAuthenticated
	}
	u := *m.user
	fn(&u)

	encoded, err := models.EncodeUser(&u)
	if err != nil {
		return err
	}
	if err := m.store.SetItem(ctx, common.KeyCurrentUser, encoded); err != nil {
		return err
	}
	m.user = &u
	return nil
}

// Run ticks Check every CheckInterval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Check(ctx); err != nil {
				m.log.Warn(ctx, "session check failed", "error", err)
			}
		}
	}
}

// Close stops following external changes.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// MarkOnboardingStarted sets the per-user onboarding flag for the session.
func (m *Manager) MarkOnboardingStarted(ctx context.Context) error {
	u := m.User()
	if u == nil {
		return common.ErrNotAuthenticated
	}
	return m.store.Volatile().Set(ctx, onboardingKey(u), []byte("true"))
}

// OnboardingStarted reports whether onboarding began in this session.
func (m *Manager) OnboardingStarted(ctx context.Context) (bool, error) {
	u := m.User()
	if u == nil {
		return false, nil
	}
	v, err := m.store.Volatile().Get(ctx, onboardingKey(u))
	if err != nil {
		return false, err
	}
	return string(v) == "true", nil
}

func onboardingKey(u *models.User) string {
	return common.PrefixOnboardingStarted + strings.ToLower(strings.TrimSpace(u.Email))
}

// after records a transition, fires listeners and performs the navigation a
// lost session requires. It runs without the lock held.
func (m *Manager) after(ctx context.Context, prev, next Snapshot) {
	if prev.State == next.State {
		return
	}
	m.opts.Metrics.SessionTransitions.WithLabelValues(string(next.State)).Inc()
	m.log.Debug(ctx, "session state changed", "from", prev.State, "to", next.State)

	m.mu.Lock()
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(next)
	}

	if prev.IsAuthenticated() && next.State == StateUnauthenticated {
		m.navigateIfProtected()
	}
}

func (m *Manager) navigateIfProtected() {
	nav := m.opts.Navigator
	if nav == nil {
		return
	}
	if isProtected(nav.CurrentPath(), m.opts.ProtectedPaths) {
		nav.HardNavigate(m.opts.LoginPath)
	}
}

func isProtected(path string, protected []string) bool {
	for _, p := range protected {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
