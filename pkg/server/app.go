package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	xhttp "NewsSignal/pkg/http"
	applogger "NewsSignal/pkg/logger"
)

// Component is a background part of the application. Start must not block;
// Stop is called in reverse start order during shutdown.
type Component struct {
	Name  string
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

// App encapsulates the entire application lifecycle.
type App struct {
	logger          *applogger.Logger
	httpServer      *xhttp.Server
	components      []Component
	started         []Component
	shutdownTimeout time.Duration
	signals         []os.Signal
}

type Option func(*App)

func WithLogger(l *applogger.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// WithSignals overrides the signals that trigger shutdown.
func WithSignals(sig ...os.Signal) Option {
	return func(a *App) { a.signals = sig }
}

// New creates an App around the HTTP server. httpServer may be nil for
// headless runs.
func New(httpServer *xhttp.Server, opts ...Option) *App {
	a := &App{
		logger:          applogger.NewNop(),
		httpServer:      httpServer,
		shutdownTimeout: 15 * time.Second,
		signals:         []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("app")
	return a
}

// Add registers a component. Components start in registration order.
func (a *App) Add(c Component) { a.components = append(a.components, c) }

// Components lists registered component names.
func (a *App) Components() []string {
	out := make([]string, len(a.components))
	for i, c := range a.components {
		out[i] = c.Name
	}
	return out
}

// Run starts everything and blocks until ctx is cancelled or a shutdown
// signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, a.signals...)
	defer stop()

	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start launches components then the HTTP server. On the first failure it
// returns without starting the rest; Shutdown stops what did start.
func (a *App) Start(ctx context.Context) error {
	for _, c := range a.components {
		if c.Start != nil {
			if err := c.Start(ctx); err != nil {
				a.logger.Error("component start failed", applogger.String("component", c.Name), applogger.Error(err))
				return fmt.Errorf("start %s: %w", c.Name, err)
			}
		}
		a.started = append(a.started, c)
		a.logger.Info("component started", applogger.String("component", c.Name))
	}
	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("start http: %w", err)
		}
	}
	return nil
}

// Shutdown stops the HTTP server first so no new work arrives, then the
// started components in reverse order. Every stop runs; errors are joined.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(ctx, a.shutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	for i := len(a.started) - 1; i >= 0; i-- {
		c := a.started[i]
		if c.Stop == nil {
			continue
		}
		if err := c.Stop(ctx); err != nil {
			a.logger.Warn("component stop error", applogger.String("component", c.Name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", c.Name, err))
		}
	}
	a.started = nil

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
