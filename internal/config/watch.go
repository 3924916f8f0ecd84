package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cjeanneret/CamKit/internal/debug"
)

// ReloadDebounce collapses the burst of events an editor produces on save.
const ReloadDebounce = 500 * time.Millisecond

// Watch reloads path whenever it changes and passes the new configuration to
// fn. Invalid files are logged and skipped; the previous configuration stays
// in effect. It blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	name := filepath.Clean(path)
	debug.Verbose("config: watching %s", name)

	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			debug.Trace("config: %s %s", ev.Op, ev.Name)
			if debounce == nil {
				debounce = time.NewTimer(ReloadDebounce)
			} else {
				debounce.Reset(ReloadDebounce)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			cfg, err := Load(path)
			if err != nil {
				debug.At(debug.LevelInfo).Err(err).Str("path", path).Msg("config: reload failed, keeping previous")
				continue
			}
			debug.Info("config: reloaded %s", path)
			fn(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			debug.Error(fmt.Errorf("config watcher: %w", err))
		}
	}
}
