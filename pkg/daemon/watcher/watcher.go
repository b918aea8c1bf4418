// Package watcher imports project archives dropped into an inbox directory.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/sysprint/pkg/daemon/repository"
	"github.com/jamesainslie/sysprint/pkg/daemon/store"
	"github.com/jamesainslie/sysprint/pkg/sysprint/logging"
)

// DefaultSettleDelay is how long a dropped file must stay quiet before it
// is imported.
const DefaultSettleDelay = 500 * time.Millisecond

// Importer stores an archive as a project.
type Importer interface {
	Upload(ctx context.Context, path, id string) (*store.Project, error)
}

// ImportFunc is called after every import attempt. p is nil when err is set.
type ImportFunc func(path string, p *store.Project, err error)

// Watcher watches a single inbox directory. Archives written into it are
// imported once they stop changing, under the id derived from their file
// name, and removed from the inbox on success. Failed imports stay in
// place.
type Watcher struct {
	dir      string
	importer Importer
	settle   time.Duration
	watcher  *fsnotify.Watcher
	log      *logging.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
	done    chan struct{}
	closed  bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettleDelay sets how long a file must go without writes before it is
// imported.
func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) {
		w.settle = d
	}
}

// New creates the inbox directory if needed and starts watching it.
func New(dir string, importer Importer, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		dir:      abs,
		importer: importer,
		settle:   DefaultSettleDelay,
		watcher:  fsw,
		log:      logging.Get("watcher"),
		pending:  make(map[string]*time.Timer),
		ready:    make(chan string, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Run imports archives already in the inbox, then imports new ones as they
// settle. It blocks until ctx is cancelled or the watcher is closed.
// onImport may be nil.
func (w *Watcher) Run(ctx context.Context, onImport ImportFunc) {
	for _, path := range w.existing() {
		w.schedule(path)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case path := <-w.ready:
			w.importFile(ctx, path, onImport)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

// existing lists archives present in the inbox, sorted by name.
func (w *Watcher) existing() []string {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn("failed to list inbox", "dir", w.dir, "error", err)
		return nil
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && isArchive(e.Name()) {
			paths = append(paths, filepath.Join(w.dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if isArchive(event.Name) {
			w.schedule(event.Name)
		}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename target arrives as its own Create.
		w.cancel(event.Name)
	}
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) importFile(ctx context.Context, path string, onImport ImportFunc) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return // Gone, or replaced by something we don't import
	}

	id := repository.IDFromPath(path)
	p, err := w.importer.Upload(ctx, path, id)
	if err != nil {
		w.log.Warn("inbox import failed", "path", path, "error", err)
	} else {
		w.log.Info("imported archive from inbox", "path", path, "project", p.ID)
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			w.log.Warn("failed to remove imported archive", "path", path, "error", rmErr)
		}
	}

	if onImport != nil {
		onImport(path, p, err)
	}
}

// Close stops watching and cancels pending imports.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	return w.watcher.Close()
}

func isArchive(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false // Partial uploads and editor temp files
	}
	return repository.SupportedExtension(name)
}
