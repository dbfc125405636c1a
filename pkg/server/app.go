package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"Rotator/internal/usecase"
	"Rotator/pkg/config"
	xhttp "Rotator/pkg/http"
	applogger "Rotator/pkg/logger"
)

// Closer releases one infrastructure client on shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	engine     *usecase.Engine
	httpServer *xhttp.Server
	closers    []Closer
}

// New creates a new App. Closers run in reverse order on shutdown.
func New(cfg *config.Config, l *applogger.Logger, engine *usecase.Engine, httpServer *xhttp.Server, closers ...Closer) *App {
	return &App{
		cfg:        cfg,
		l:          l.Component("app"),
		engine:     engine,
		httpServer: httpServer,
		closers:    closers,
	}
}

// Engine exposes the rebalance engine for in-process commands.
func (a *App) Engine() *usecase.Engine { return a.engine }

// Config is the configuration the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Logger is the root application logger.
func (a *App) Logger() *applogger.Logger { return a.l }

// Run starts the engine and the HTTP server and blocks until SIGINT or
// SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.engine.Start(ctx); err != nil {
		a.l.Error("engine start error", applogger.Error(err))
		a.Close()
		return err
	}
	a.l.Info("engine started",
		applogger.Bool("scheduler", a.cfg.Schedule.Enabled),
		applogger.String("cron", a.cfg.Schedule.Cron),
		applogger.String("timezone", a.cfg.Schedule.Timezone),
		applogger.Strings("universe", a.cfg.Strategy.Universe),
	)

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.l.Error("http server start error", applogger.Error(err))
			_ = a.Shutdown(context.Background())
			return err
		}
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Shutdown stops the HTTP server, then the scheduler, then closes clients.
// It waits for a running job up to the server's shutdown timeout.
func (a *App) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if a.httpServer != nil {
		timeout = a.httpServer.ShutdownTimeout()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if err := a.engine.Stop(shutdownCtx); err != nil {
		a.l.Warn("engine stop error", applogger.Error(err))
	}
	a.Close()

	a.l.Info("shutdown complete")
	return nil
}

// Close releases infrastructure clients without touching the engine.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("client", c.Name), applogger.Error(err))
		}
	}
	a.closers = nil
}
