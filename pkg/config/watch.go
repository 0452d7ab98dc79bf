package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period required after a file event before
// a reload runs. Editors often produce several events per save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher watches a configuration file and reloads it on change. Each
// successful reload produces a fresh immutable *Config snapshot; a reload
// that fails to parse or validate keeps the previous snapshot and reports
// the error through the OnError callback.
type Watcher struct {
	path     string
	debounce time.Duration
	log      *slog.Logger
	fsw      *fsnotify.Watcher

	current atomic.Pointer[Config]

	// OnChange is called with each new snapshot after it replaces the
	// current one. Optional.
	OnChange func(*Config)

	// OnError is called when a reload fails. Optional.
	OnError func(error)

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	done    chan struct{}
}

// NewWatcher loads the file once and prepares a watcher for it. The
// initial load must succeed; watching a config that never parsed is not
// useful.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		path:     path,
		debounce: DefaultDebounce,
		log:      logger,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	w.current.Store(cfg)
	return w, nil
}

// Current returns the latest valid configuration snapshot.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Watch blocks processing file events until the context is cancelled.
// Watching the parent directory rather than the file itself survives the
// rename-and-replace pattern editors and config management tools use.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()
	defer close(w.done)

	dir := filepath.Dir(w.path)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.log.Info("config watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("config watcher stopped")
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.log.Debug("config file event", "path", event.Name, "op", event.Op.String())
			w.scheduleReload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.log.Error("config watcher error", "error", err)
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.path)
}

// scheduleReload arms (or re-arms) the debounce timer.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.log.Error("config reload failed, keeping previous snapshot", "path", w.path, "error", err)
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}

	w.current.Store(cfg)
	w.log.Info("config reloaded", "path", w.path)
	if w.OnChange != nil {
		w.OnChange(cfg)
	}
}
