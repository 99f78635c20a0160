package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/modelhub/internal/apperr"
	"github.com/starford/modelhub/internal/models"
	"github.com/starford/modelhub/internal/protect"
	"github.com/starford/modelhub/internal/transfer"
)

// transferFunc fills the freshly claimed, empty directory target.
type transferFunc func(ctx context.Context, target string) error

// Clone imports a remote repository. An empty name is derived from the URL.
func (s *Service) Clone(ctx context.Context, originURL, name string) (*Result, error) {
	originURL = strings.TrimSpace(originURL)
	if originURL == "" {
		return nil, fmt.Errorf("%w: repository URL is required", apperr.ErrInvalidInput)
	}
	if name == "" {
		name = NameFromURL(originURL)
	}

	return s.register(ctx, name, models.SourceGit, originURL, func(ctx context.Context, target string) error {
		if s.cloneTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cloneTimeout)
			defer cancel()
		}
		return s.cloner.Clone(ctx, originURL, target)
	})
}

// CopyLocal imports a local directory tree. An empty name defaults to the
// final component of sourcePath.
func (s *Service) CopyLocal(ctx context.Context, sourcePath, name string) (*Result, error) {
	if strings.TrimSpace(sourcePath) == "" {
		return nil, fmt.Errorf("%w: source path is required", apperr.ErrInvalidInput)
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: local path %q does not exist", apperr.ErrNotFound, sourcePath)
		}
		return nil, fmt.Errorf("%w: stat %q: %w", apperr.ErrTransferFailure, sourcePath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %q", apperr.ErrNotADirectory, sourcePath)
	}

	origin, err := filepath.Abs(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %q: %w", apperr.ErrInvalidInput, sourcePath, err)
	}
	if name == "" {
		name = filepath.Base(origin)
	}

	return s.register(ctx, name, models.SourceLocal, origin, func(ctx context.Context, target string) error {
		return transfer.CopyTree(ctx, origin, target)
	})
}

// register runs the shared import protocol: reserve, claim, transfer,
// protect, commit. Any failure after the claim removes the partial
// destination and drops the reservation so the same name can be retried.
func (s *Service) register(ctx context.Context, name string, source models.Source, origin string, fill transferFunc) (*Result, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, err := s.store.Target(name)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(slog.String("name", name), slog.String("source", string(source)), slog.String("origin", origin))

	pending, err := s.catalog.Reserve(name, source, origin, target)
	if err != nil {
		if errors.Is(err, apperr.ErrDuplicateModel) {
			return nil, fmt.Errorf("%w: %q (%s)", apperr.ErrDuplicateModel, name, origin)
		}
		return nil, fmt.Errorf("%w: %w", apperr.ErrStorageFailure, err)
	}

	claimed, committed := false, false
	defer func() {
		if committed {
			return
		}
		if claimed {
			if err := s.store.Remove(name); err != nil {
				log.Warn("import: cleanup of partial destination failed",
					slog.String("path", target), slog.String("error", err.Error()))
			}
		}
		if err := s.catalog.Release(pending.ID); err != nil {
			log.Warn("import: release reservation failed", slog.String("error", err.Error()))
		}
		s.notify(EventFailed, name)
	}()

	if _, err := s.store.Claim(name); err != nil {
		return nil, err
	}
	claimed = true

	log.Info("import: transfer started", slog.String("path", target))
	if err := fill(ctx, target); err != nil {
		log.Warn("import: transfer failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %s %q: %w", apperr.ErrTransferFailure, source, origin, err)
	}

	if err := protect.Tree(target); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrProtectionFailure, err)
	}

	m, err := s.catalog.Commit(pending.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrStorageFailure, err)
	}
	committed = true

	log.Info("import: registered", slog.Int64("id", m.ID), slog.String("path", m.Path))
	s.notify(EventImported, name)
	return &Result{Model: *m}, nil
}

// List returns the committed catalog. An empty catalog yields an empty
// Listing, which renders as NoModelsMessage.
func (s *Service) List(_ context.Context) (Listing, error) {
	ms, err := s.catalog.List()
	if err != nil {
		return Listing{}, fmt.Errorf("%w: %w", apperr.ErrStorageFailure, err)
	}
	return Listing{Models: ms}, nil
}

// Get returns the committed record for name.
func (s *Service) Get(_ context.Context, name string) (*models.Model, error) {
	m, err := s.catalog.Get(name)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%w: model %q", apperr.ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: %w", apperr.ErrStorageFailure, err)
	}
	return m, nil
}

// Delete removes every catalog record with name. The protected directory is
// left untouched.
func (s *Service) Delete(_ context.Context, name string) error {
	n, err := s.catalog.Delete(name)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrStorageFailure, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: model %q", apperr.ErrNotFound, name)
	}
	s.logger.Info("catalog: model deleted", slog.String("name", name), slog.Int64("records", n))
	s.notify(EventDeleted, name)
	return nil
}
