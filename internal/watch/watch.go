// Package watch re-runs checking when core files change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/funvibe/funcore/internal/config"
)

const DefaultDebounce = 200 * time.Millisecond

// Watcher calls Run once on start and again after every burst of changes
// to core files, library headers or the configuration under Roots.
type Watcher struct {
	Roots    []string
	Debounce time.Duration
	Run      func(ctx context.Context)
	Logger   *slog.Logger
}

func relevant(name string) bool {
	base := filepath.Base(name)
	return config.IsCoreFile(base) || base == config.LibraryFileName || base == config.ConfigFileName
}

func hidden(name string) bool {
	base := filepath.Base(name)
	return len(base) > 1 && strings.HasPrefix(base, ".")
}

// addTree watches dir and every non-hidden directory below it. A file is
// watched through its directory.
func addTree(w *fsnotify.Watcher, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.Add(filepath.Dir(dir))
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && hidden(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// Watch blocks until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("section", "watch")
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer fw.Close()
	for _, root := range w.Roots {
		if err := addTree(fw, root); err != nil {
			return fmt.Errorf("watching %s: %w", root, err)
		}
	}

	w.Run(ctx)

	// fire is nil while no change is pending.
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !hidden(ev.Name) {
					if err := addTree(fw, ev.Name); err != nil {
						logger.Warn("cannot watch directory", "path", ev.Name, "error", err)
					}
					continue
				}
			}
			if ev.Op == fsnotify.Chmod || !relevant(ev.Name) {
				continue
			}
			logger.Debug("change", "path", ev.Name, "op", ev.Op.String())
			fire = time.After(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		case <-fire:
			fire = nil
			logger.Info("re-checking")
			w.Run(ctx)
		}
	}
}
