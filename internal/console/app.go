package console

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/admin"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/config"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/profile"
	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	profile *profile.Profile
	server  *Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, "json", c.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p, err := profile.Open(ctx, c, logger, reg)
	if err != nil {
		return nil, fmt.Errorf("profile init error: %w", err)
	}

	guard := admin.NewGuard(p.Store, p.API, admin.GuardOptions{
		AllowedHosts: c.AdminHosts,
		EnforceHost:  c.EnforceAdminHost,
		Logger:       logger,
		Metrics:      p.Metrics,
	})
	auth := admin.NewAuthService(p.API, p.Store, nil, logger)

	return &App{
		config:  c,
		logger:  logger,
		profile: p,
		server:  NewServer(c.ConsoleAddr, guard, auth, reg, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves the console until a termination signal or ctx cancellation.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer func() {
		if err := app.profile.Close(); err != nil {
			app.logger.Error(ctx, "failed to close profile", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting console...", "environment", app.config.Environment, "enforce_admin_host", app.config.EnforceAdminHost)
	app.initSignalHandler(cancelFunc)

	return app.server.Run(ctx)
}
