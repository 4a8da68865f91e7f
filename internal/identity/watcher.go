package identity

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/giantswarm/tandem/pkg/logging"
)

const (
	// DefaultDebounceInterval is the quiet period after the last change
	// before OnChange fires.
	DefaultDebounceInterval = 300 * time.Millisecond

	// DefaultPollInterval is used when fsnotify is unavailable.
	DefaultPollInterval = 2 * time.Second
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Path is the file to observe, usually YAMLStore.Path().
	Path string

	// Debounce is the quiet period before OnChange fires.
	Debounce time.Duration

	// PollInterval is the fallback polling interval.
	PollInterval time.Duration

	// OnChange is called after the file changed.
	OnChange func()
}

// Watcher reports changes to the identity file made by other processes.
// It watches the containing directory with fsnotify (so atomic
// rename-into-place writes are seen) and falls back to polling.
type Watcher struct {
	mu sync.Mutex

	config WatcherConfig

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	lastModTime time.Time

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewWatcher creates a watcher for config.Path.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.Debounce == 0 {
		config.Debounce = DefaultDebounceInterval
	}
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &Watcher{config: config}
}

// Start begins watching. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	dir := filepath.Dir(w.config.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	w.stopCh = make(chan struct{})
	w.running = true

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("IdentityWatcher", "fsnotify not available, falling back to polling: %v", err)
		go w.poll(w.stopCh)
		return nil
	}

	if err := watcher.Add(dir); err != nil {
		logging.Warn("IdentityWatcher", "Failed to watch %s, falling back to polling: %v", dir, err)
		watcher.Close()
		go w.poll(w.stopCh)
		return nil
	}
	w.fsWatcher = watcher

	go w.processEvents(w.stopCh, watcher.Events, watcher.Errors)

	logging.Info("IdentityWatcher", "Watching %s for changes", w.config.Path)
	return nil
}

func (w *Watcher) processEvents(stopCh <-chan struct{}, eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("IdentityWatcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.config.Path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
		return
	}

	logging.Debug("IdentityWatcher", "Identity file changed: %s (%s)", event.Name, event.Op)
	w.triggerDebounced()
}

func (w *Watcher) triggerDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		running := w.running
		callback := w.config.OnChange
		w.mu.Unlock()

		if running && callback != nil {
			callback()
		}
	})
}

func (w *Watcher) poll(stopCh <-chan struct{}) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.changed()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if w.changed() {
				logging.Debug("IdentityWatcher", "Identity file change detected via polling")
				w.triggerDebounced()
			}
		}
	}
}

// changed compares the file's mtime with the last observed one.
func (w *Watcher) changed() bool {
	var mod time.Time
	if info, err := os.Stat(w.config.Path); err == nil {
		mod = info.ModTime()
	}
	changed := !mod.Equal(w.lastModTime)
	w.lastModTime = mod
	return changed
}

// Stop stops the watcher and cancels any pending notification.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("IdentityWatcher", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}

	logging.Debug("IdentityWatcher", "Stopped identity watcher")
	return nil
}

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
