// Package registry implements the import-and-register workflow: it validates
// requests, reserves the name in the catalog, transfers content into the
// shared directory, protects it and commits the catalog record.
package registry

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/modelhub/internal/catalog"
	"github.com/starford/modelhub/internal/storage"
	"github.com/starford/modelhub/internal/transfer"
)

// Event kinds passed to an EventFunc.
const (
	EventImported = "model.imported"
	EventDeleted  = "model.deleted"
	EventFailed   = "model.failed"
)

// DefaultPendingGrace is how long a pending reservation is treated as an
// import still running in some process before Reconcile may drop it.
const DefaultPendingGrace = 15 * time.Minute

// EventFunc is called after a workflow step changes the registry.
type EventFunc func(kind, name string)

// Service orchestrates imports against a catalog and a shared directory.
type Service struct {
	catalog      catalog.Catalog
	store        storage.Provider
	cloner       transfer.Cloner
	logger       *slog.Logger
	cloneTimeout time.Duration
	removeOrphan bool
	pendingGrace time.Duration
	onEvent      EventFunc

	// imports hold the read side; Reconcile holds the write side so it never
	// observes a reservation owned by this process.
	mu sync.RWMutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for workflow diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithCloneTimeout bounds every clone; zero means no timeout.
func WithCloneTimeout(d time.Duration) Option {
	return func(s *Service) { s.cloneTimeout = d }
}

// WithRemoveOrphans lets Reconcile delete shared-dir entries that have no catalog record.
func WithRemoveOrphans(remove bool) Option {
	return func(s *Service) { s.removeOrphan = remove }
}

// WithPendingGrace sets how old a pending reservation must be before
// Reconcile treats it as abandoned. Zero drops every pending reservation.
func WithPendingGrace(d time.Duration) Option {
	return func(s *Service) { s.pendingGrace = d }
}

// WithEventCallback registers fn to be notified of registry changes.
func WithEventCallback(fn EventFunc) Option {
	return func(s *Service) { s.onEvent = fn }
}

// New creates a Service.
func New(cat catalog.Catalog, store storage.Provider, cloner transfer.Cloner, opts ...Option) *Service {
	s := &Service{
		catalog:      cat,
		store:        store,
		cloner:       cloner,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		pendingGrace: DefaultPendingGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) notify(kind, name string) {
	if s.onEvent != nil {
		s.onEvent(kind, name)
	}
}
