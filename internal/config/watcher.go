package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 1500 * time.Millisecond

// Watcher watches a configuration file and hands a freshly loaded value to
// every handler after the file changes. The parent directory is watched so
// editors that save by renaming a new file into place are noticed.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	loader   func(path string) (T, error)
	onError  func(error)
	logger   *slog.Logger

	mu       sync.Mutex
	handlers []reloadHandler[T]
	nextID   uint64

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

type reloadHandler[T any] struct {
	id uint64
	fn func(T)
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce sets the debounce duration for config changes.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.debounce = d
	}
}

// WithErrorHandler sets a callback for config load errors.
// If not set, errors are only logged.
func WithErrorHandler[T any](handler func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.onError = handler
	}
}

// NewConfigWatcher creates a typed configuration file watcher.
func NewConfigWatcher[T any](
	path string,
	loader func(path string) (T, error),
	logger *slog.Logger,
	opts ...WatcherOption[T],
) *Watcher[T] {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		loader:   loader,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the watched file.
func (w *Watcher[T]) Path() string {
	return w.path
}

// OnReload registers fn for every successful reload and returns a function
// that removes it. Handlers run in registration order.
func (w *Watcher[T]) OnReload(fn func(T)) func() {
	w.mu.Lock()
	w.nextID++
	id := w.nextID
	w.handlers = append(w.handlers, reloadHandler[T]{id: id, fn: fn})
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.handlers = slices.DeleteFunc(w.handlers, func(h reloadHandler[T]) bool {
			return h.id == id
		})
	}
}

// Start begins watching. It fails when the parent directory cannot be watched.
func (w *Watcher[T]) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.watcher = fsw

	w.logger.Info("Config watcher started", "path", w.path, "debounce", w.debounce)
	go w.watch()
	return nil
}

// Stop stops watching and waits for the watch loop to exit. Stop before
// Start is a no-op.
func (w *Watcher[T]) Stop() error {
	w.cancel()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	return err
}

// relevant reports whether event may have changed the watched file.
func (w *Watcher[T]) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher[T]) watch() {
	defer close(w.done)

	// Stopped until the first relevant event arms it.
	settle := time.NewTimer(w.debounce)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Config watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("Config file change detected", "op", event.Op.String())
			settle.Reset(w.debounce)

		case <-settle.C:
			w.logger.Info("Config file changed, reloading")
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

// reload loads the file once and hands the value to each handler.
func (w *Watcher[T]) reload() {
	value, err := w.loader(w.path)
	if err != nil {
		w.logger.Warn("Failed to load config", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	handlers := slices.Clone(w.handlers)
	w.mu.Unlock()

	for _, h := range handlers {
		h.fn(value)
	}
}
