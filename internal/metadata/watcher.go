package metadata

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watcher on the vault root and feeds document
// lifecycle events into the engine until ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass that retracts index
// entries whose files no longer exist on disk and indexes files that
// appeared under a new path.
func Watch(ctx context.Context, eng *Engine, vaultRoot string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcileAfterRename(ctx, eng, vaultRoot, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// --- Handle new directories: add to watcher ---
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Feed any .md files already inside the new directory.
					changedInDir(eng, vaultRoot, absPath, logger)
					continue
				}
			}

			// Only process .md files from here on.
			if !strings.HasSuffix(absPath, ".md") {
				continue
			}

			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				eng.Changed(rel)
				logger.Debug("watcher: changed", slog.String("path", rel))

			case ev.Op&fsnotify.Remove != 0:
				eng.Deleted(rel)
				logger.Debug("watcher: deleted", slog.String("path", rel))

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. The new
				// path will arrive as a separate Create event (if it
				// stays within a watched dir). We retract the old entry
				// immediately and schedule a short reconciliation pass
				// to catch any stragglers.
				eng.Deleted(rel)
				logger.Debug("watcher: rename old retracted", slog.String("path", rel))
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcileAfterRename compares the engine's indexed paths with the files on
// disk: indexed paths without a file are retracted, on-disk files the index
// has never seen are fed through as changes.
func reconcileAfterRename(ctx context.Context, eng *Engine, vaultRoot string, logger *slog.Logger) {
	indexed, err := eng.IndexedPaths(ctx)
	if err != nil {
		logger.Warn("reconcile: indexed paths failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{})
	_ = filepath.WalkDir(vaultRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || !strings.HasSuffix(p, ".md") {
			return nil
		}
		if rel, relErr := filepath.Rel(vaultRoot, p); relErr == nil {
			disk[rel] = struct{}{}
		}
		return nil
	})

	known := make(map[string]struct{}, len(indexed))
	for _, p := range indexed {
		known[p] = struct{}{}
		if _, ok := disk[p]; !ok {
			eng.Deleted(p)
			logger.Debug("reconcile: retracted stale", slog.String("path", p))
		}
	}

	for p := range disk {
		if _, ok := known[p]; !ok {
			eng.Changed(p)
			logger.Debug("reconcile: indexed new", slog.String("path", p))
		}
	}
}

// changedInDir feeds any .md files found in a newly created directory.
func changedInDir(eng *Engine, vaultRoot, dirPath string, logger *slog.Logger) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(vaultRoot, path)
		if relErr != nil {
			return nil
		}
		eng.Changed(rel)
		logger.Debug("watcher: changed from new dir", slog.String("path", rel))
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
