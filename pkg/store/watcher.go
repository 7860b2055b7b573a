package store

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/goliatone/go-matdb/pkg/parser"
)

// Watcher invalidates a DirStore's cache when material files change on disk,
// so long-lived processes pick up edits made by other tools.
type Watcher struct {
	store        *DirStore
	watcher      *fsnotify.Watcher
	logger       *zap.Logger
	onInvalidate func(material string)

	done      chan struct{}
	closeOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WatcherWithLogger attaches a structured logger. Defaults to a no-op logger.
func WatcherWithLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithOnInvalidate registers a callback invoked after each cache
// invalidation with the material name that changed.
func WithOnInvalidate(fn func(material string)) WatcherOption {
	return func(w *Watcher) {
		w.onInvalidate = fn
	}
}

// NewWatcher starts watching the store's database directory. The returned
// Watcher must be closed to release the underlying file descriptor.
func NewWatcher(store *DirStore, opts ...WatcherOption) (*Watcher, error) {
	if store == nil {
		return nil, fmt.Errorf("store: dir store is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("store: watcher: %w", err)
	}
	if err := fsw.Add(store.BasePath()); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("store: watch %q: %w", store.BasePath(), err)
	}

	w := &Watcher{
		store:   store,
		watcher: fsw,
		logger:  zap.NewNop(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}

	go w.run()
	w.logger.Info("watching database directory", zap.String("path", store.BasePath()))
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
		return
	}
	base := filepath.Base(event.Name)
	if !strings.HasSuffix(base, parser.Ext) {
		return
	}
	material := strings.TrimSuffix(base, parser.Ext)

	w.store.Invalidate(material)
	w.logger.Debug("invalidated cached material",
		zap.String("material", material),
		zap.String("op", event.Op.String()))
	if w.onInvalidate != nil {
		w.onInvalidate(material)
	}
}

// Close stops the watcher and waits for the event loop to drain.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
		<-w.done
	})
	return err
}
