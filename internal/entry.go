// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/modelhub/internal/api"
	"github.com/starford/modelhub/internal/catalog"
	"github.com/starford/modelhub/internal/jobs"
	"github.com/starford/modelhub/internal/mcpserver"
	"github.com/starford/modelhub/internal/registry"
	"github.com/starford/modelhub/internal/sse"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// Run starts the HTTP server, the background import worker and the
// shared-dir watcher, and blocks until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := NewLogger(cfg, app.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("shared_dir", cfg.Storage.SharedDir),
		slog.String("catalog_path", cfg.Catalog.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	hub, err := NewHub(cfg, logger, registry.WithEventCallback(broker.PublishModelEvent))
	if err != nil {
		return err
	}
	defer hub.Close()

	// Drop reservations left by a previous crash. Recent ones may belong to a
	// CLI import running next to the server and are kept.
	report, err := hub.Registry.Reconcile(ctx)
	if err != nil {
		logger.Warn("startup reconcile failed", slog.String("error", err.Error()))
	} else if !report.Clean() {
		logger.Warn("startup reconcile found drift",
			slog.Any("released_pending", report.ReleasedPending),
			slog.Any("in_progress", report.InProgress),
			slog.Any("missing", report.Missing),
			slog.Any("orphans", report.Orphans))
	}

	// Background import worker.
	queue := jobs.New(cfg.Jobs.QueueSize, logger)
	queue.OnEvent(func(j jobs.Job) {
		broker.Publish(sse.Event{Type: "job." + string(j.Status), Data: j})
	})

	apiRouter := api.NewRouter(hub.Registry, queue, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := hub.Registry.List(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"catalog unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Import worker.
	g.Go(func() error {
		return queue.Run(gCtx)
	})

	// Shared-dir watcher with SSE callback.
	g.Go(func() error {
		if err := catalog.Watch(gCtx, hub.Catalog, hub.Store.Root(), logger, broker.PublishModelEvent); err != nil {
			logger.Warn("watcher disabled", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the server has been shut down so the
// worker and watcher stop too.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Logs go to the configured
// log output, which must not be stdout.
func RunMCP(ctx context.Context, version string, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := NewLogger(app.config, app.logOutput)
	slog.SetDefault(logger)

	hub, err := NewHub(app.config, logger)
	if err != nil {
		return err
	}
	defer hub.Close()

	logger.Info("MCP server starting", slog.String("shared_dir", hub.Store.Root()))
	return mcpserver.New(hub.Registry, version).Listen(ctx, os.Stdin, os.Stdout)
}
