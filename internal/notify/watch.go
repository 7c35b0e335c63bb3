package notify

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// DefaultDebounce groups bursts of writes (an add touches the store twice).
const DefaultDebounce = 300 * time.Millisecond

// WatchFile calls onChange after path is created, written, removed or
// renamed, once per burst of changes. The parent directory is watched so the
// file may appear after the watch starts. WatchFile blocks until ctx is
// cancelled.
func WatchFile(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	logger := slog.With("component", "watcher", "file", path)
	logger.Debug("watching for changes")

	// A broken watch can spin; say so at most once a minute.
	errLog := rate.Sometimes{Interval: time.Minute}

	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			// Debounce: reset timer on each event
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			errLog.Do(func() {
				logger.Error("file watcher error", "error", err)
			})
		}
	}
}

// Forward returns an onChange func for WatchFile that publishes a
// KindExternal event. When changed is non-nil it is consulted first and
// nothing is published unless it reports a change.
func Forward(p Publisher, changed func() (bool, error)) func() {
	return func() {
		if changed != nil {
			ok, err := changed()
			if err != nil {
				slog.Warn("checking for external changes", "component", "watcher", "error", err)
				return
			}
			if !ok {
				return
			}
		}
		p.Publish(Event{Kind: KindExternal})
	}
}
