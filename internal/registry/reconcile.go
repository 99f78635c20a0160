package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/modelhub/internal/apperr"
	"github.com/starford/modelhub/internal/models"
)

// Report summarizes a reconciliation pass.
type Report struct {
	ReleasedPending []string `json:"released_pending"`
	InProgress      []string `json:"in_progress"`
	Missing         []string `json:"missing"`
	Orphans         []string `json:"orphans"`
	RemovedOrphans  []string `json:"removed_orphans"`
}

// Clean reports whether the catalog and the shared directory already agreed.
func (r *Report) Clean() bool {
	return len(r.ReleasedPending) == 0 && len(r.Missing) == 0 && len(r.Orphans) == 0
}

// Reconcile brings the catalog and the shared directory back in line after
// a crash. Pending reservations older than the grace period are dropped
// together with their partial directories. Younger ones are reported as
// in progress and left alone. Committed records whose directory vanished are
// reported, and shared-dir entries without any record are reported as
// orphans (and removed when configured to).
//
// Imports running in this process finish before the pass starts. Imports in
// other processes are protected only by the grace period.
func (s *Service) Reconcile(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.catalog.ListAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrStorageFailure, err)
	}

	report := &Report{
		ReleasedPending: []string{},
		InProgress:      []string{},
		Missing:         []string{},
		Orphans:         []string{},
		RemovedOrphans:  []string{},
	}
	owned := make(map[string]struct{}, len(all))

	for _, m := range all {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		switch m.Status {
		case models.StatusPending:
			if time.Since(m.CreatedAt) < s.pendingGrace {
				owned[m.Name] = struct{}{}
				report.InProgress = append(report.InProgress, m.Name)
				s.logger.Info("reconcile: pending reservation still within grace period",
					slog.String("name", m.Name), slog.Time("reserved_at", m.CreatedAt))
				continue
			}
			if err := s.store.Remove(m.Name); err != nil && !errors.Is(err, apperr.ErrInvalidInput) {
				s.logger.Warn("reconcile: remove partial destination failed",
					slog.String("name", m.Name), slog.String("error", err.Error()))
				owned[m.Name] = struct{}{}
				continue
			}
			if err := s.catalog.Release(m.ID); err != nil {
				return report, fmt.Errorf("%w: %w", apperr.ErrStorageFailure, err)
			}
			report.ReleasedPending = append(report.ReleasedPending, m.Name)
			s.logger.Info("reconcile: released pending reservation", slog.String("name", m.Name))

		default:
			if filepath.Dir(m.Path) == s.store.Root() {
				owned[filepath.Base(m.Path)] = struct{}{}
			}
			info, err := os.Stat(m.Path)
			if err != nil || !info.IsDir() {
				if err != nil && !errors.Is(err, fs.ErrNotExist) {
					s.logger.Warn("reconcile: stat failed", slog.String("path", m.Path), slog.String("error", err.Error()))
				}
				report.Missing = append(report.Missing, m.Name)
				s.logger.Warn("reconcile: registered model missing on disk",
					slog.String("name", m.Name), slog.String("path", m.Path))
			}
		}
	}

	entries, err := s.store.Entries()
	if err != nil {
		return report, err
	}
	for _, e := range entries {
		if _, ok := owned[e]; ok {
			continue
		}
		report.Orphans = append(report.Orphans, e)
		if !s.removeOrphan {
			s.logger.Warn("reconcile: orphaned entry in shared dir", slog.String("name", e))
			continue
		}
		if err := s.store.Remove(e); err != nil {
			s.logger.Warn("reconcile: remove orphan failed", slog.String("name", e), slog.String("error", err.Error()))
			continue
		}
		report.RemovedOrphans = append(report.RemovedOrphans, e)
		s.logger.Info("reconcile: removed orphan", slog.String("name", e))
	}
	return report, nil
}
