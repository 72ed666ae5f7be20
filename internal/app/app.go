package app

import (
	"context"
	"errors"
	stdhttp "net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/velling/presence-server/internal/auth"
	"github.com/velling/presence-server/internal/config"
	"github.com/velling/presence-server/internal/core"
	"github.com/velling/presence-server/internal/metrics"
	transporthttp "github.com/velling/presence-server/internal/transport/http"
)

// App wires together the presence core and the transport layer. It owns the
// registry's lifecycle; nothing in the core is package-level state.
type App struct {
	server          *stdhttp.Server
	registry        *core.Registry
	monitor         *core.Monitor
	dispatcher      *core.Dispatcher
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt_secret must be configured")
	}

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	registry := core.NewRegistry(logger)
	router := core.NewChannelRouter(registry)
	dispatcher := core.NewDispatcher(registry, router, logger, m)
	monitor := core.NewMonitor(registry, cfg.HeartbeatInterval, cfg.HeartbeatTimeout, clock.New(), logger, m)

	verifier := auth.NewVerifier(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	})

	server := transporthttp.NewServer(transporthttp.Deps{
		Registry:     registry,
		Router:       router,
		Dispatcher:   dispatcher,
		Verifier:     verifier,
		Metrics:      m,
		PromGatherer: promReg,
	}, cfg, logger)

	return &App{
		server:          server,
		registry:        registry,
		monitor:         monitor,
		dispatcher:      dispatcher,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}, nil
}

// Dispatcher exposes the delivery entry points to embedding code.
func (a *App) Dispatcher() *core.Dispatcher {
	return a.dispatcher
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go a.monitor.Run(monitorCtx)

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes every live connection through the registry.
func (a *App) cleanup() {
	a.registry.Shutdown()
}
