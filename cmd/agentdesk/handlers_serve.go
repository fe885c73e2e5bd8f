package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/agentdesk/internal/api"
	"github.com/haasonsaas/agentdesk/internal/auth"
	"github.com/haasonsaas/agentdesk/internal/config"
	"github.com/haasonsaas/agentdesk/internal/ratelimit"
)

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe loads configuration, migrates the schema and runs the HTTP and
// metrics servers until a shutdown signal arrives.
func runServe(ctx context.Context, opts *rootOptions, debug bool) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	logger.Info("starting agentdesk",
		"version", version,
		"commit", commit,
		"config", opts.resolvedConfigPath(),
		"debug", debug,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer closeCancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("shutdown cleanup failed", "error", err)
		}
	}()
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := a.withPipeline(pipelineOptions{}); err != nil {
		return err
	}

	authService := newAuthService(cfg.Auth)
	if !authService.Enabled() {
		logger.Warn("no auth.jwt_secret or auth.api_keys configured; every channel request will be rejected")
	}
	handler, err := api.New(api.Config{
		Auth:      authService,
		Processor: a.processor,
		Health:    a.store.DB(),
		Metrics:   a.metrics,
		Limiter:   ratelimit.New(cfg.Server.RateLimit),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	servers := []*http.Server{newHTTPServer(cfg.Server, cfg.Server.HTTPPort, handler)}
	if cfg.Server.MetricsPort > 0 {
		mux := chi.NewRouter()
		mux.Method(http.MethodGet, "/metrics", a.metrics.Handler())
		servers = append(servers, newHTTPServer(cfg.Server, cfg.Server.MetricsPort, mux))
	}
	return serveAll(ctx, servers, cfg.Server.ShutdownTimeout, logger)
}

func newHTTPServer(cfg config.ServerConfig, port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serveAll runs every server until ctx ends or one of them fails, then shuts
// all of them down within timeout.
func serveAll(ctx context.Context, servers []*http.Server, timeout time.Duration, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("agentdesk stopped")
	return nil
}

func newAuthService(cfg config.AuthConfig) *auth.Service {
	keys := make([]auth.APIKeyConfig, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys = append(keys, auth.APIKeyConfig{Key: k.Key, UserID: k.UserID, Name: k.Name})
	}
	return auth.NewService(auth.Config{
		JWTSecret:   cfg.JWTSecret,
		TokenExpiry: cfg.TokenExpiry,
		Issuer:      cfg.Issuer,
		APIKeys:     keys,
	})
}
