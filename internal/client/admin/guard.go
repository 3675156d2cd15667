// Package admin gates the back-office console. A Guard decides, per request,
// whether the locally held admin token may enter a route; AuthService owns
// the token lifecycle.
package admin

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/client"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
	"github.com/dmitrijs2005/aivedhaguard/internal/common"
	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
	"github.com/dmitrijs2005/aivedhaguard/internal/metrics"
	"github.com/dmitrijs2005/aivedhaguard/internal/timex"
	"github.com/golang-jwt/jwt/v5"
)

type State int

const (
	StateLoading State = iota
	StateAuthenticated
	StateUnauthenticated
	StateInvalidSubdomain
	StateInvalidRole
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateInvalidSubdomain:
		return "invalid_subdomain"
	case StateInvalidRole:
		return "invalid_role"
	default:
		return "loading"
	}
}

// Roles that may use the console at all.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleSupport    = "support"
	RoleAnalyst    = "analyst"
)

var AllowedRoles = []string{RoleSuperAdmin, RoleAdmin, RoleSupport, RoleAnalyst}

type Store interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

type Verifier interface {
	AdminVerify(ctx context.Context, token string) (*models.AdminUser, error)
}

// Decision is the outcome of one guarded navigation. User is set only when
// State is StateAuthenticated.
type Decision struct {
	State   State
	User    *models.AdminUser
	Offline bool
	Reason  string
}

func (d Decision) Allowed() bool { return d.State == StateAuthenticated }

type GuardOptions struct {
	// AllowedHosts are the admin hostnames. Ports are ignored.
	AllowedHosts []string
	// EnforceHost turns on the host check. Development builds leave it off.
	EnforceHost bool
	Now         func() time.Time
	Logger      logging.Logger
	Metrics     *metrics.Metrics
}

type Guard struct {
	store    Store
	verifier Verifier
	hosts    []string
	enforce  bool
	now      func() time.Time
	log      logging.Logger
	metrics  *metrics.Metrics
}

func NewGuard(store Store, verifier Verifier, opts GuardOptions) *Guard {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	hosts := make([]string, 0, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		if h = normalizeHost(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return &Guard{
		store:    store,
		verifier: verifier,
		hosts:    hosts,
		enforce:  opts.EnforceHost,
		now:      opts.Now,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Check runs the host, token and role checks in that order and stops at the
// first failure. A failed token check clears every admin session key.
func (g *Guard) Check(ctx context.Context, host string, requiredRoles []string) Decision {
	d := g.check(ctx, host, requiredRoles)
	g.metrics.AdminDecisions.WithLabelValues(d.State.String()).Inc()
	if !d.Allowed() {
		g.log.Warn(ctx, "admin access denied", "state", d.State.String(), "host", host, "reason", d.Reason)
	}
	return d
}

func (g *Guard) check(ctx context.Context, host string, requiredRoles []string) Decision {
	if g.enforce && !slices.Contains(g.hosts, normalizeHost(host)) {
		return Decision{State: StateInvalidSubdomain, Reason: "host is not an admin host"}
	}

	user, offline, err := g.authenticate(ctx)
	if err != nil {
		if cerr := ClearSession(ctx, g.store); cerr != nil {
			g.log.Error(ctx, "failed to clear admin session", "error", cerr)
		}
		return Decision{State: StateUnauthenticated, Reason: err.Error()}
	}

	if !slices.Contains(AllowedRoles, user.Role) {
		return Decision{State: StateInvalidRole, Reason: "role " + user.Role + " may not use the console"}
	}
	if len(requiredRoles) > 0 && !slices.Contains(requiredRoles, user.Role) {
		return Decision{State: StateInvalidRole, Reason: "route requires " + strings.Join(requiredRoles, ",")}
	}
	return Decision{State: StateAuthenticated, User: user, Offline: offline}
}

func (g *Guard) authenticate(ctx context.Context) (*models.AdminUser, bool, error) {
	token, ok, err := g.store.GetItem(ctx, common.KeyAdminToken)
	if err != nil {
		return nil, false, err
	}
	if !ok || token == "" {
		return nil, false, common.ErrNotAuthenticated
	}

	exp, ok := g.expiry(ctx, token)
	if !ok || !g.now().Before(exp) {
		return nil, false, common.ErrTokenExpired
	}

	user, err := g.verifier.AdminVerify(ctx, token)
	if err == nil {
		g.cacheUser(ctx, user)
		return user, false, nil
	}
	if !errors.Is(err, client.ErrUnavailable) {
		return nil, false, err
	}

	cached, ok, cerr := g.store.GetItem(ctx, common.KeyAdminUser)
	if cerr != nil || !ok {
		return nil, false, err
	}
	u, derr := models.DecodeAdminUser(cached)
	if derr != nil {
		return nil, false, err
	}
	g.log.Warn(ctx, "admin verify unavailable, trusting cached admin user", "email", u.Email)
	return u, true, nil
}

// expiry reads adminTokenExpiry (unix millis). Tokens stored without one fall
// back to the token's own exp claim when it is a JWT.
func (g *Guard) expiry(ctx context.Context, token string) (time.Time, bool) {
	raw, ok, err := g.store.GetItem(ctx, common.KeyAdminTokenExpiry)
	if err == nil && ok {
		if exp, valid := timex.ParseMillis(raw); valid {
			return exp, true
		}
	}
	return tokenExpiry(token)
}

func tokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (g *Guard) cacheUser(ctx context.Context, u *models.AdminUser) {
	s, err := models.EncodeAdminUser(u)
	if err != nil {
		return
	}
	if err := g.store.SetItem(ctx, common.KeyAdminUser, s); err != nil {
		g.log.Warn(ctx, "failed to cache admin user", "error", err)
	}
}

// ClearSession removes every admin session key.
func ClearSession(ctx context.Context, store Store) error {
	var errs []error
	for _, k := range common.AdminSessionKeys {
		if err := store.RemoveItem(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if i := strings.LastIndexByte(h, ':'); i >= 0 && !strings.Contains(h[i:], "]") {
		h = h[:i]
	}
	return strings.TrimSuffix(h, ".")
}
