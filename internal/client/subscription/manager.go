// Package subscription owns the user's plan, credit balance and billing
// status. A server snapshot is authoritative; local credit deductions are
// kept as a pending delta until a snapshot requested after them arrives.
package subscription

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/aivedhaguard/internal/broadcast"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/client"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
	"github.com/dmitrijs2005/aivedhaguard/internal/common"
	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
	"github.com/dmitrijs2005/aivedhaguard/internal/metrics"
	"github.com/dmitrijs2005/aivedhaguard/internal/timex"
)

type Store interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	Subscribe(handler func(broadcast.Event)) func()
}

type API interface {
	CurrentSubscription(ctx context.Context, userID string) (*client.SubscriptionPayload, error)
	ActivateSubscription(ctx context.Context, subscriptionID, userID string) error
}

type Options struct {
	// Timeout bounds a subscription fetch. A timeout is a soft failure.
	Timeout time.Duration
	// LockTTL is the age after which an activation lock is considered stale.
	LockTTL time.Duration
	Now     func() time.Time
	Logger  logging.Logger
	Metrics *metrics.Metrics
}

// State is what the UI renders: the effective subscription plus load flags.
type State struct {
	models.Subscription
	Loading       bool
	Authenticated bool
}

type Manager struct {
	store Store
	api   API
	opts  Options
	log   logging.Logger

	mu            sync.Mutex
	base          models.Subscription
	hydrated      bool
	loading       bool
	authenticated bool
	owner         string
	syncedAt      time.Time
	pending       []time.Time
	unsubscribe   func()
	refreshing    sync.WaitGroup
}

func New(store Store, api API, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	return &Manager{
		store:   store,
		api:     api,
		opts:    opts,
		log:     opts.Logger.With("component", "subscription"),
		loading: true,
	}
}

// Init shows the cached balance immediately, then reconciles with the
// server. Later changes to the user record by other clients trigger a
// refresh in the background.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.unsubscribe == nil {
		m.unsubscribe = m.store.Subscribe(m.handleEvent)
	}
	m.mu.Unlock()

	if err := m.hydrate(ctx); err != nil {
		return err
	}
	return m.Refresh(ctx)
}

func (m *Manager) handleEvent(ev broadcast.Event) {
	if ev.Key != common.KeyCurrentUser {
		return
	}
	m.refreshing.Add(1)
	go func() {
		defer m.refreshing.Done()
		ctx := context.Background()
		if err := m.Refresh(ctx); err != nil {
			m.log.Warn(ctx, "refresh after external change failed", "error", err)
		}
	}()
}

// Wait blocks until background refreshes started by change events finish.
func (m *Manager) Wait() { m.refreshing.Wait() }

func (m *Manager) Close() {
	m.mu.Lock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.mu.Unlock()
	m.Wait()
}

func (m *Manager) cachedUser(ctx context.Context) (*models.User, error) {
	raw, ok, err := m.store.GetItem(ctx, common.KeyCurrentUser)
	if err != nil || !ok {
		return nil, err
	}
	u, err := models.DecodeUser(raw)
	if err != nil {
		m.log.Warn(ctx, "cached user unreadable", "error", err)
		return nil, nil
	}
	return u, nil
}

func (m *Manager) hydrate(ctx context.Context) error {
	u, err := m.cachedUser(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if u == nil {
		m.resetLocked()
		return nil
	}
	m.applyCacheLocked(u)
	return nil
}

func (m *Manager) applyCacheLocked(u *models.User) {
	code := NormalizePlan(u.Plan)
	if code == "" {
		code = "free"
	}
	total, ok := PlanCredits(code)
	if !ok {
		total = u.Credits
	}
	m.base = models.Subscription{
		PlanCode:     code,
		PlanName:     PlanName(code),
		Credits:      u.Credits,
		TotalCredits: total,
		Status:       NormalizeStatus("", code),
	}
	m.pending = nil
	m.owner = strings.ToLower(u.Email)
	m.hydrated = true
	m.authenticated = true
}

func (m *Manager) resetLocked() {
	m.base = models.Subscription{}
	m.pending = nil
	m.owner = ""
	m.hydrated = false
	m.authenticated = false
	m.loading = false
	m.syncedAt = time.Time{}
}

// Refresh reconciles with the server. Failures of any kind fall back to the
// last known state and are not returned; only store errors are.
func (m *Manager) Refresh(ctx context.Context) error {
	u, err := m.cachedUser(ctx)
	if err != nil {
		return err
	}
	if u == nil {
		m.mu.Lock()
		m.resetLocked()
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	if m.owner != strings.ToLower(u.Email) {
		m.applyCacheLocked(u)
		m.syncedAt = time.Time{}
	}
	m.loading = true
	m.mu.Unlock()

	started := m.opts.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	payload, err := m.api.CurrentSubscription(fetchCtx, u.Email)
	cancel()

	if err != nil {
		outcome := "fallback"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		m.opts.Metrics.SubscriptionSyncs.WithLabelValues(outcome).Inc()
		m.log.Warn(ctx, "subscription fetch failed, using cached state", "error", err)

		m.mu.Lock()
		if !m.hydrated {
			m.applyCacheLocked(u)
		}
		m.loading = false
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	if started.Before(m.syncedAt) || m.owner != strings.ToLower(u.Email) {
		// An answer to an older request, or for a user no longer signed in.
		m.loading = false
		m.mu.Unlock()
		m.opts.Metrics.SubscriptionSyncs.WithLabelValues("stale").Inc()
		return nil
	}

	sub := fromPayload(payload, u)
	kept := m.pending[:0]
	for _, at := range m.pending {
		if !at.Before(started) {
			kept = append(kept, at)
		}
	}
	m.pending = kept
	m.base = sub
	m.syncedAt = started
	m.hydrated = true
	m.authenticated = true
	m.loading = false
	effective := m.creditsLocked()
	m.mu.Unlock()

	m.opts.Metrics.SubscriptionSyncs.WithLabelValues("success").Inc()
	return m.mirror(ctx, u.Email, func(cu *models.User) {
		cu.Credits = effective
		cu.Plan = sub.PlanCode
	})
}

func fromPayload(p *client.SubscriptionPayload, u *models.User) models.Subscription {
	code := NormalizePlan(p.PlanCode)
	if code == "" {
		code = NormalizePlan(u.Plan)
	}
	if code == "" {
		code = "free"
	}

	credits := u.Credits
	if p.HasCredits {
		credits = p.Credits
	}
	if credits < 0 {
		credits = 0
	}

	total, ok := PlanCredits(code)
	if !ok {
		total = credits
	}

	name := p.PlanName
	if name == "" {
		name = PlanName(code)
	}

	return models.Subscription{
		PlanCode:       code,
		PlanName:       name,
		Credits:        credits,
		TotalCredits:   total,
		Status:         NormalizeStatus(p.Status, code),
		RenewalDate:    p.PeriodEnd,
		AutoRenew:      p.AutoRenew,
		SubscriptionID: p.SubscriptionID,
	}
}

// mirror applies fn to the cached user record if it still belongs to email.
func (m *Manager) mirror(ctx context.Context, email string, fn func(u *models.User)) error {
	u, err := m.cachedUser(ctx)
	if err != nil || u == nil || !strings.EqualFold(u.Email, email) {
		return err
	}
	before := *u
	fn(u)
	if *u == before {
		return nil
	}
	enc, err := models.EncodeUser(u)
	if err != nil {
		return err
	}
	return m.store.SetItem(ctx, common.KeyCurrentUser, enc)
}

func (m *Manager) creditsLocked() int {
	c := m.base.Credits - len(m.pending)
	if c < 0 {
		return 0
	}
	return c
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := m.base
	sub.Credits = m.creditsLocked()
	return State{Subscription: sub, Loading: m.loading, Authenticated: m.authenticated}
}

func (m *Manager) Credits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditsLocked()
}

// DeductCredit optimistically spends one credit. It returns false when none
// is left. The backend is not called; the next Refresh reconciles.
func (m *Manager) DeductCredit(ctx context.Context) bool {
	m.mu.Lock()
	if !m.authenticated || m.creditsLocked() <= 0 {
		m.mu.Unlock()
		return false
	}
	m.pending = append(m.pending, m.opts.Now())
	owner := m.owner
	m.mu.Unlock()

	m.opts.Metrics.CreditDeductions.Inc()
	err := m.mirror(ctx, owner, func(u *models.User) {
		if u.Credits > 0 {
			u.Credits--
		}
	})
	if err != nil {
		m.log.Warn(ctx, "could not mirror deduction into cached user", "error", err)
	}
	return true
}

func (m *Manager) ratio() (credits, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditsLocked(), m.base.TotalCredits
}

// IsLowCredits: at most 20% and more than 10% of the plan total remain.
func (m *Manager) IsLowCredits() bool {
	c, total := m.ratio()
	return total > 0 && c*100 <= total*20 && c*100 > total*10
}

// IsCriticalCredits: at most 10% of the plan total and at least one remain.
func (m *Manager) IsCriticalCredits() bool {
	c, total := m.ratio()
	return total > 0 && c*100 <= total*10 && c > 0
}

func (m *Manager) IsOutOfCredits() bool {
	c, _ := m.ratio()
	return c <= 0
}

// Activate confirms a completed checkout with the backend once per
// subscription id. A second caller inside the lock window gets
// ErrActivationLocked; a finished activation yields ErrAlreadyActivated.
func (m *Manager) Activate(ctx context.Context, subscriptionID string) error {
	u, err := m.cachedUser(ctx)
	if err != nil {
		return err
	}
	if u == nil {
		return common.ErrNotAuthenticated
	}

	doneKey := common.PrefixSubscriptionActivated + subscriptionID
	lockKey := common.PrefixSubscriptionLock + subscriptionID

	if _, done, err := m.store.GetItem(ctx, doneKey); err != nil {
		return err
	} else if done {
		return common.ErrAlreadyActivated
	}

	now := m.opts.Now()
	if raw, ok, err := m.store.GetItem(ctx, lockKey); err != nil {
		return err
	} else if ok {
		if at, valid := timex.ParseMillis(raw); valid && now.Sub(at) < m.opts.LockTTL {
			return common.ErrActivationLocked
		}
		m.log.Info(ctx, "taking over stale activation lock", "subscription_id", subscriptionID)
	}
	if err := m.store.SetItem(ctx, lockKey, timex.FormatMillis(now)); err != nil {
		return err
	}

	if err := m.api.ActivateSubscription(ctx, subscriptionID, u.Email); err != nil {
		if rmErr := m.store.RemoveItem(ctx, lockKey); rmErr != nil {
			m.log.Warn(ctx, "failed to release activation lock", "subscription_id", subscriptionID, "error", rmErr)
		}
		return err
	}

	if err := m.store.SetItem(ctx, doneKey, "true"); err != nil {
		return err
	}
	if err := m.store.RemoveItem(ctx, lockKey); err != nil {
		return err
	}
	m.log.Info(ctx, "subscription activated", "subscription_id", subscriptionID)
	return m.Refresh(ctx)
}
