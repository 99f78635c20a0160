package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/modelhub/internal/catalog"
	"github.com/starford/modelhub/internal/registry"
	"github.com/starford/modelhub/internal/storage"
	"github.com/starford/modelhub/internal/transfer"
)

// Hub bundles the components every entry point needs: the catalog, the
// shared directory and the import service on top of them.
type Hub struct {
	Config   *Config
	Logger   *slog.Logger
	Catalog  *catalog.DB
	Store    *storage.FS
	Registry *registry.Service
}

// NewLogger returns a JSON logger writing to w at the configured level.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// NewHub opens the catalog and the shared directory, creating the latter
// if needed. Extra registry options are applied after the configured ones.
func NewHub(cfg *Config, logger *slog.Logger, opts ...registry.Option) (*Hub, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	if err := os.MkdirAll(cfg.Storage.SharedDir, 0o755); err != nil {
		return nil, fmt.Errorf("create shared dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Storage.SharedDir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}

	regOpts := append([]registry.Option{
		registry.WithLogger(logger),
		registry.WithCloneTimeout(cfg.Git.Timeout),
		registry.WithRemoveOrphans(cfg.Storage.RemoveOrphans),
		registry.WithPendingGrace(cfg.Storage.PendingGrace),
	}, opts...)

	return &Hub{
		Config:   cfg,
		Logger:   logger,
		Catalog:  db,
		Store:    store,
		Registry: registry.New(db, store, transfer.NewGitCloner(cfg.Git.Binary), regOpts...),
	}, nil
}

// Close releases the catalog connection.
func (h *Hub) Close() error {
	return h.Catalog.Close()
}
