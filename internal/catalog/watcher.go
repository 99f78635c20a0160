package catalog

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/modelhub/internal/models"
)

// Watcher event kinds.
const (
	EventMissing = "model.missing"
	EventOrphan  = "model.orphan"
)

// EventCallback is called when the shared directory drifts from the catalog.
type EventCallback func(kind string, name string)

// orphanDelay lets an in-flight import reserve its name before a new entry
// is judged.
var orphanDelay = 200 * time.Millisecond

// Watch observes the top level of the shared directory until ctx is
// cancelled. Removing or renaming a registered model's directory reports
// EventMissing; an entry appearing with no catalog record reports
// EventOrphan. The catalog is never modified.
func Watch(ctx context.Context, cat Catalog, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	created := make(map[string]struct{})
	var orphanTimer *time.Timer
	var orphanCh <-chan time.Time

	scheduleOrphanCheck := func() {
		if orphanTimer == nil {
			orphanTimer = time.NewTimer(orphanDelay)
			orphanCh = orphanTimer.C
		} else {
			orphanTimer.Reset(orphanDelay)
		}
	}

	emit := func(kind, name string) {
		if cb != nil {
			cb(kind, name)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if orphanTimer != nil {
				orphanTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-orphanCh:
			known, err := knownNames(cat)
			if err != nil {
				logger.Warn("watcher: list catalog failed", slog.String("error", err.Error()))
				continue
			}
			for name := range created {
				if _, ok := known[name]; !ok {
					logger.Warn("watcher: unregistered entry in shared dir", slog.String("name", name))
					emit(EventOrphan, name)
				}
			}
			clear(created)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Dir(ev.Name) != filepath.Clean(root) {
				continue
			}
			name := filepath.Base(ev.Name)

			switch {
			case ev.Op&fsnotify.Create != 0:
				created[name] = struct{}{}
				scheduleOrphanCheck()

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(created, name)
				m, err := cat.Get(name)
				if err != nil || m.Path != ev.Name {
					continue
				}
				logger.Warn("watcher: registered model left shared dir",
					slog.String("name", name), slog.String("op", ev.Op.String()))
				emit(EventMissing, name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// knownNames returns every catalogued name, pending reservations included.
func knownNames(cat Catalog) (map[string]struct{}, error) {
	all, err := cat.ListAll()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(all))
	for _, m := range all {
		if m.Status == models.StatusPending || m.Status == models.StatusCommitted {
			out[m.Name] = struct{}{}
		}
	}
	return out, nil
}
