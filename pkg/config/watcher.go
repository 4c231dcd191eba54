package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the quiet period before a reload fires.
const DefaultDebounceInterval = 250 * time.Millisecond

// ReloadFunc receives a freshly loaded and validated configuration.
type ReloadFunc func(*Config) error

// Watcher reloads a configuration file when it changes.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file by rename are still seen. Bursts of events
// are collapsed by a Debouncer. A file that fails to load or validate is
// logged and the previous configuration stays in effect.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce *Debouncer
	logger   *slog.Logger
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, interval time.Duration, logger *slog.Logger) (*Watcher, error) {
	if interval <= 0 {
		interval = DefaultDebounceInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		watcher:  fw,
		debounce: NewDebouncer(interval),
		logger:   logger.With("component", "config.watcher"),
	}, nil
}

// Watch blocks until ctx is cancelled, calling onReload after each change.
func (w *Watcher) Watch(ctx context.Context, onReload ReloadFunc) error {
	defer w.debounce.Stop()
	defer w.watcher.Close()

	w.logger.Info("config watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("config file event", "op", event.Op.String())
			w.debounce.Trigger(func() { w.reload(onReload) })

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return name == w.path
}

func (w *Watcher) reload(onReload ReloadFunc) {
	cfg, err := LoadConfigWithEnvOverrides(w.path)
	if err != nil {
		w.logger.Error("config reload rejected, keeping previous configuration", "error", err)
		return
	}
	if err := onReload(cfg); err != nil {
		w.logger.Error("config reload failed", "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
}

// Debouncer runs the most recent callback once no new trigger has arrived
// for the interval.
type Debouncer struct {
	interval time.Duration
	timer    *time.Timer
	callback func()
	stopped  bool
	mu       sync.Mutex
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.callback = nil
		d.mu.Unlock()

		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
