package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/butterflysys/butterfly/internal/observability"
	"github.com/butterflysys/butterfly/internal/resource"
)

// debounceDelay coalesces the burst of filesystem events editors and
// atomic-rename writers produce for a single save.
const debounceDelay = 200 * time.Millisecond

// Watcher reloads a definition catalog when it changes on disk and
// hands the validated definitions to a callback. The callback is
// responsible for re-registering them.
type Watcher struct {
	path     string
	onReload func([]*resource.Definition)
	logger   observability.Logger

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
	done     sync.WaitGroup
}

// WatcherOption is a functional option for the watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher for a definition catalog. The watch is
// placed on the parent directory so atomic renames are still seen.
func NewWatcher(path string, onReload func([]*resource.Definition), opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		path:     path,
		onReload: onReload,
		logger:   observability.NopLogger(),
		watcher:  fsw,
		stop:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	w.done.Add(1)
	go w.loop()

	return w, nil
}

func (w *Watcher) loop() {
	defer w.done.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				timerC = timer.C
			} else {
				timer.Reset(debounceDelay)
			}

		case <-timerC:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("definition watcher error", observability.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	defs, err := LoadDefinitions(w.path)
	if err != nil {
		// Keep serving the last good catalog.
		w.logger.Error("definition reload rejected", observability.Error(err))
		return
	}

	w.logger.Info("definition catalog reloaded",
		observability.String("path", w.path),
		observability.Int("definitions", len(defs)),
	)
	w.onReload(defs)
}

// Close stops the watcher and waits for the loop to exit.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
		w.done.Wait()
	})
	return err
}
