package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/config"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/health"
	middleware "github.com/mohammed-shakir/flurstueck-map/internal/core/middleware"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/router"
)

type Options struct {
	Handler *router.Handler
	// Ready is evaluated on /readyz.
	Ready map[string]health.Check
	// Metrics is served at cfg.Metrics.Path when non-nil.
	Metrics http.Handler
}

// NewRouter builds the chi router with the service middleware and routes.
func NewRouter(cfg config.Config, logger *slog.Logger, opts Options) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(opts.Ready))
	if opts.Metrics != nil {
		r.Handle(metricsPath(cfg), opts.Metrics)
	}
	if opts.Handler != nil {
		opts.Handler.Mount(r)
	}
	return r
}

// Run serves the API on cfg.Addr and, when configured on a separate
// address, the metrics endpoint on cfg.Metrics.Addr. It returns when ctx is
// done or either listener fails.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) error {
	servers := []*http.Server{newServer(cfg.Addr, NewRouter(cfg, logger, opts))}
	if opts.Metrics != nil && cfg.Metrics.Addr != "" && cfg.Metrics.Addr != cfg.Addr {
		mux := http.NewServeMux()
		mux.Handle(metricsPath(cfg), opts.Metrics)
		servers = append(servers, newServer(cfg.Metrics.Addr, mux))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("http listen", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", "addr", srv.Addr, "err", err)
			}
		}
		return nil
	})
	return g.Wait()
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func metricsPath(cfg config.Config) string {
	if cfg.Metrics.Path == "" {
		return "/metrics"
	}
	return cfg.Metrics.Path
}
