package cmd

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// configDebounce is how long the config file must stay quiet before a change
// is acted on
const configDebounce = 500 * time.Millisecond

// watchConfig signals changed once per burst of writes to the named file in
// dir. The directory is watched rather than the file because editors replace
// the file with an atomic rename.
func watchConfig(sctx *stopper.Context, dir, name string, debounce time.Duration, changed chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	var timer *time.Timer
	var mu sync.Mutex

	sctx.Defer(func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		watcher.Close()
	})

	notify := func() {
		if sctx.IsStopping() {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
			// a reload is already pending
		}
	}

	sctx.Go(func(sctx *stopper.Context) error {
		for {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				slog.Debug("Config file change detected", "event", event.Op.String(), "file", event.Name)

				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, notify)
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				slog.Error("Config file watcher error", "error", err)
			}
		}
	})

	return nil
}
