package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/audit"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/client"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/models"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/session"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/storage"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/subscription"
	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
)

type AuthAPI interface {
	SetAuthToken(token string)
	EmailLogin(ctx context.Context, email, password string) (*client.AuthResult, error)
	GoogleLogin(ctx context.Context, credential string) (*client.AuthResult, error)
	GitHubLogin(ctx context.Context, code, redirectURI string) (*client.AuthResult, error)
}

type Sessions interface {
	Login(ctx context.Context, user *models.User, token string) error
	Logout(ctx context.Context) error
	Snapshot() session.Snapshot
	Touch(ctx context.Context) error
	RefreshSession(ctx context.Context) error
	MarkOnboardingStarted(ctx context.Context) error
	OnboardingStarted(ctx context.Context) (bool, error)
}

type Subscriptions interface {
	Refresh(ctx context.Context) error
	State() subscription.State
	Activate(ctx context.Context, subscriptionID string) error
	IsLowCredits() bool
	IsCriticalCredits() bool
	IsOutOfCredits() bool
}

type Auditor interface {
	Prepare(rawURL string) audit.Plan
	Start(ctx context.Context, plan audit.Plan) (*client.AuditStarted, error)
}

// Deps are the collaborators an App drives.
type Deps struct {
	API           AuthAPI
	Sessions      Sessions
	Subscriptions Subscriptions
	Auditor       Auditor
	// Volatile holds the GitHub authorization state between prompts.
	Volatile       storage.KV
	Origin         string
	GitHubClientID string
	Logger         logging.Logger
}

type App struct {
	api      AuthAPI
	sessions Sessions
	subs     Subscriptions
	auditor  Auditor
	volatile storage.KV

	origin         string
	githubClientID string

	log    logging.Logger
	reader *bufio.Reader
	out    io.Writer

	// background runs for the lifetime of the REPL; closeFn releases what
	// NewApp opened. Both are nil for apps built from Deps directly.
	background func(ctx context.Context)
	closeFn    func() error
}

func newApp(d Deps, r *bufio.Reader, w io.Writer) *App {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	return &App{
		api:            d.API,
		sessions:       d.Sessions,
		subs:           d.Subscriptions,
		auditor:        d.Auditor,
		volatile:       d.Volatile,
		origin:         d.Origin,
		githubClientID: d.GitHubClientID,
		log:            d.Logger,
		reader:         r,
		out:            w,
	}
}

// Run starts the REPL and blocks until the user exits or input ends.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	if a.background != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.background(ctx)
		}()
	}

	printlnFn("Welcome to AiVedha Guard CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)

	cancel()
	wg.Wait()
	if a.closeFn != nil {
		if err := a.closeFn(); err != nil {
			a.log.Error(context.Background(), "failed to close profile", "error", err)
		}
	}
}

func (a *App) isLoggedIn() bool {
	return a.sessions.Snapshot().IsAuthenticated()
}

func (a *App) getStatus() string {
	snap := a.sessions.Snapshot()
	if !snap.IsAuthenticated() {
		return "(signed out)"
	}
	if snap.State == session.StateExpiringSoon {
		return fmt.Sprintf("(%s expiring soon, type 'renew')", snap.User.Email)
	}
	return fmt.Sprintf("(%s %s, %d credits)", snap.User.Email, snap.State, a.subs.State().Credits)
}

// touch records user activity for the sliding session window.
func (a *App) touch(ctx context.Context) {
	if err := a.sessions.Touch(ctx); err != nil {
		a.log.Warn(ctx, "failed to record activity", "error", err)
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
