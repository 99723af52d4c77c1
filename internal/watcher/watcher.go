package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the corpus root and invokes trigger after filesystem
// activity settles. Events are debounced: a burst of writes produces one
// trigger, debounce after the last event.
type Watcher struct {
	root     string
	debounce time.Duration
	trigger  func(reason string)
}

func New(root string, debounce time.Duration, trigger func(reason string)) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{root: root, debounce: debounce, trigger: trigger}
}

// Run blocks until ctx is cancelled. Subdirectories are watched recursively;
// directories created while running are added on the fly.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := addRecursive(fsw, w.root); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	pending := ""

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if isHidden(ev.Name) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				// new directories need their own watch
				if err := addRecursive(fsw, ev.Name); err != nil {
					slog.Debug("watch new path", "path", ev.Name, "error", err)
				}
			}
			pending = ev.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				// drain a fire that raced this event, or Reset would
				// deliver it early
				if !timer.Stop() {
					select {
					case <-timerC:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)

		case <-timerC:
			slog.Info("corpus changed", "path", pending)
			w.trigger(fmt.Sprintf("fs change: %s", pending))
			timer = nil
			timerC = nil
		}
	}
}

// addRecursive watches path and every directory beneath it. Non-directories
// are ignored; their parent's watch covers them.
func addRecursive(fsw *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if isHidden(p) {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return base != "." && strings.HasPrefix(base, ".")
}
