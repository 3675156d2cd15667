package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/audit"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/config"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/profile"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/region"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/session"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/subscription"
	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// NewApp opens the profile named by c and wires the session, subscription
// and audit components over it.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stderr, c.LogFormat, c.LogLevel)

	p, err := profile.Open(ctx, c, logger, prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("profile init error: %w", err)
	}

	sess := session.New(p.Store, session.Options{
		Timeout:          c.SessionTimeout,
		Warning:          c.ExpiryWarning,
		CheckInterval:    c.CheckInterval,
		ActivityDebounce: c.ActivityDebounce,
		Logger:           logger,
		Metrics:          p.Metrics,
	})
	// Sessions started, renewed or ended by another client on this profile
	// change the bearer token this one sends.
	sess.OnChange(func(s session.Snapshot) {
		p.API.SetAuthToken(sess.Token())
		if s.State == session.StateUnauthenticated {
			logger.Info(ctx, "session ended")
		}
	})
	if err := sess.Init(ctx); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("session init error: %w", err)
	}
	p.API.SetAuthToken(sess.Token())

	subs := subscription.New(p.Store, p.API, subscription.Options{
		Timeout: c.SubscriptionTimeout,
		Logger:  logger,
		Metrics: p.Metrics,
	})
	if err := subs.Init(ctx); err != nil {
		sess.Close()
		_ = p.Close()
		return nil, fmt.Errorf("subscription init error: %w", err)
	}
	// An ended session leaves no cached user, so a refresh drops the
	// entitlements that belonged to it.
	sess.OnChange(func(s session.Snapshot) {
		if s.State != session.StateUnauthenticated {
			return
		}
		if err := subs.Refresh(ctx); err != nil {
			logger.Warn(ctx, "failed to reset subscription", "error", err)
		}
	})

	home := region.DetectUserRegion(nil, os.Getenv("LANG"))
	planner := audit.NewPlanner(p.API, subs, sess, p.Store, home, logger, p.Metrics)

	a := newApp(Deps{
		API:            p.API,
		Sessions:       sess,
		Subscriptions:  subs,
		Auditor:        planner,
		Volatile:       p.Store.Volatile(),
		Origin:         c.Origin,
		GitHubClientID: c.GitHubClientID,
		Logger:         logger,
	}, bufio.NewReader(os.Stdin), os.Stdout)

	a.background = func(ctx context.Context) {
		if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "session ticker stopped", "error", err)
		}
	}
	a.closeFn = func() error {
		subs.Close()
		sess.Close()
		return p.Close()
	}
	return a, nil
}
