package config

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"conductor/pkg/logging"
)

// Watcher watches the services directory and invokes a callback once a burst
// of file changes has settled. Individual events are coalesced: the callback
// is expected to reload the whole definition set.
type Watcher struct {
	mu sync.Mutex

	// dir is the watched services directory
	dir string

	// debounceInterval is how long to wait for additional changes
	debounceInterval time.Duration

	onChange func()

	watcher *fsnotify.Watcher
	timer   *time.Timer
	stopCh  chan struct{}
	running bool
}

// NewWatcher creates a watcher for <configPath>/services.
func NewWatcher(configPath string, debounceInterval time.Duration, onChange func()) *Watcher {
	if debounceInterval == 0 {
		debounceInterval = 500 * time.Millisecond
	}
	return &Watcher{
		dir:              ServicesPath(configPath),
		debounceInterval: debounceInterval,
		onChange:         onChange,
	}
}

// Start begins watching. The services directory is created when missing so
// that the first definition dropped into it is picked up.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return err
	}

	w.watcher = fsw
	w.stopCh = make(chan struct{})
	w.running = true

	go w.processEvents(ctx, fsw, w.stopCh)

	logging.Info("ConfigWatcher", "Started watching %s for definition changes", w.dir)
	return nil
}

// Stop ends watching and drops any pending debounced reload.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	fsw := w.watcher
	w.mu.Unlock()

	if err := fsw.Close(); err != nil {
		logging.Warn("ConfigWatcher", "Error closing watcher: %v", err)
	}
	logging.Info("ConfigWatcher", "Stopped watching %s", w.dir)
}

func (w *Watcher) processEvents(ctx context.Context, fsw *fsnotify.Watcher, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return

		case <-stopCh:
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !isYAMLFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logging.Debug("ConfigWatcher", "Change detected: %s %s", event.Op, event.Name)
			w.schedule()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "Filesystem watcher error")
		}
	}
}

// schedule resets the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceInterval, func() {
		w.mu.Lock()
		running := w.running
		w.timer = nil
		w.mu.Unlock()
		if running && w.onChange != nil {
			w.onChange()
		}
	})
}
