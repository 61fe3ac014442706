package services

import (
	"context"
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driving"
	"github.com/custodia-labs/lectern-cli/internal/logger"
)

// watchDebounce batches filesystem event bursts into one rescan.
const watchDebounce = 5 * time.Second

// LibraryWatcher triggers a rescan of a library when files under its
// enabled paths change. Events are debounced; a scan already running
// simply absorbs the trigger (the conflict is expected and ignored).
type LibraryWatcher struct {
	libraries driven.LibraryStore
	scans     driving.ScanOrchestrator
}

// NewLibraryWatcher creates a watcher.
func NewLibraryWatcher(libraries driven.LibraryStore, scans driving.ScanOrchestrator) *LibraryWatcher {
	return &LibraryWatcher{libraries: libraries, scans: scans}
}

// Watch blocks, watching the library's enabled paths until ctx is done.
func (w *LibraryWatcher) Watch(ctx context.Context, libraryID string) error {
	library, err := w.libraries.Get(ctx, libraryID)
	if err != nil {
		return err
	}
	paths := library.EnabledPaths()
	if len(paths) == 0 {
		return domain.ErrLibraryDisabled
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, p := range paths {
		if err := watcher.Add(p); err != nil {
			logger.Warn("Cannot watch %s: %v", p, err)
		}
	}
	logger.Info("Watching %d path(s) for library %s", len(paths), libraryID)

	var timer *time.Timer
	var timerCh <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("Change detected: %s", event)
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerCh = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watch error: %v", err)

		case <-timerCh:
			timer = nil
			timerCh = nil
			if _, err := w.scans.StartScan(ctx, libraryID); err != nil {
				if errors.Is(err, domain.ErrScanConflict) {
					logger.Debug("Rescan skipped: scan already running")
					continue
				}
				logger.Warn("Rescan failed to start: %v", err)
			}
		}
	}
}
