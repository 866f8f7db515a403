// Package watcher watches corpus data folders with fsnotify and triggers a
// debounced staleness check when files change, so manual edits to a corpus
// folder converge with API-driven uploads.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher maps corpus data folders to change callbacks. Events within one
// folder are debounced together: a burst of writes triggers the callback
// once, after the burst settles.
type Watcher struct {
	extensions []string
	debounce   time.Duration
	logger     *zap.Logger

	fsw *fsnotify.Watcher

	mu       sync.Mutex
	corpora  map[string]corpusEntry // data dir (cleaned) -> entry
	timers   map[string]*time.Timer
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

type corpusEntry struct {
	name     string
	onChange func(ctx context.Context, corpus string)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce overrides the event settle window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a Watcher. extensions filter which file events count
// (empty = all).
func New(extensions []string, opts ...Option) *Watcher {
	w := &Watcher{
		extensions: extensions,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		corpora:    make(map[string]corpusEntry),
		timers:     make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch registers a corpus folder. The folder is created if missing.
// onChange receives the corpus name after the debounce window.
func (w *Watcher) Watch(corpus, dataDir string, onChange func(ctx context.Context, corpus string)) error {
	dir := filepath.Clean(dataDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.corpora[dir] = corpusEntry{name: corpus, onChange: onChange}
	if w.started && w.fsw != nil {
		return w.fsw.Add(dir)
	}
	return nil
}

// Start begins delivering events. Runs until ctx is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	w.started = true
	for dir := range w.corpora {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			w.fsw = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()

	w.logger.Info("corpus watcher started", zap.Int("corpora", len(w.corpora)))
	go w.run(ctx, fsw)
	return nil
}

// run receives on the watcher it was started with, never the mutable field:
// Stop may release w.fsw concurrently, and shutdown is signalled through done.
func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return
	}
	if !w.matchExtension(ev.Name) {
		return
	}
	dir := filepath.Clean(filepath.Dir(ev.Name))

	w.mu.Lock()
	entry, ok := w.corpora[dir]
	if !ok {
		w.mu.Unlock()
		return
	}
	w.logger.Debug("corpus file event",
		zap.String("corpus", entry.name),
		zap.String("op", ev.Op.String()),
		zap.String("path", ev.Name))
	if t, exists := w.timers[dir]; exists {
		t.Stop()
	}
	w.timers[dir] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, dir)
		w.mu.Unlock()
		entry.onChange(ctx, entry.name)
	})
	w.mu.Unlock()
}

func (w *Watcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Stop stops event delivery and releases the fsnotify watcher. Safe to call
// concurrently and more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	for dir, t := range w.timers {
		t.Stop()
		delete(w.timers, dir)
	}
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.done) })
	if fsw != nil {
		_ = fsw.Close()
	}
}
