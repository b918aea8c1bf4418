package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jamesainslie/sysprint/pkg/daemon/store"
)

type fakeImporter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeImporter) Upload(_ context.Context, path, id string) (*store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	return &store.Project{ID: id, Name: filepath.Base(path)}, nil
}

func (f *fakeImporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type result struct {
	path string
	p    *store.Project
	err  error
}

// start runs w until the test ends and returns a channel of import results.
func start(t *testing.T, w *Watcher) <-chan result {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan result, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, func(path string, p *store.Project, err error) {
			results <- result{path, p, err}
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return results
}

func newWatcher(t *testing.T, dir string, imp Importer) *Watcher {
	t.Helper()
	w, err := New(dir, imp, WithSettleDelay(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w
}

func waitResult(t *testing.T, results <-chan result) result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for import")
		return result{}
	}
}

func TestNewCreatesInbox(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox", "nested")

	w := newWatcher(t, dir, &fakeImporter{})
	defer w.Close()

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("inbox not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("inbox is not a directory")
	}
	if w.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", w.Dir(), dir)
	}
}

func TestImportsDroppedArchive(t *testing.T) {
	dir := t.TempDir()
	imp := &fakeImporter{}
	results := start(t, newWatcher(t, dir, imp))

	path := filepath.Join(dir, "web-01.tar.gz")
	if err := os.WriteFile(path, []byte("archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := waitResult(t, results)
	if r.err != nil {
		t.Fatalf("import error = %v", r.err)
	}
	if r.p.ID != "web-01" {
		t.Errorf("project id = %q, want web-01", r.p.ID)
	}
	if r.path != path {
		t.Errorf("path = %q, want %q", r.path, path)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("imported archive should be removed from the inbox")
	}
}

func TestImportsExistingArchives(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.tar", "a.tar.gz"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("archive"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	imp := &fakeImporter{}
	results := start(t, newWatcher(t, dir, imp))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		r := waitResult(t, results)
		seen[r.p.ID] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("imported %v, want a and b", seen)
	}
}

func TestIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	imp := &fakeImporter{}
	start(t, newWatcher(t, dir, imp))

	for _, name := range []string{"notes.txt", ".web-01.tar.gz"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.tar"), 0o755); err != nil {
		t.Fatal(err)
	}

	time.Sleep(200 * time.Millisecond)
	if n := imp.count(); n != 0 {
		t.Errorf("importer called %d times, want 0", n)
	}
}

func TestFailedImportKeepsFile(t *testing.T) {
	dir := t.TempDir()
	imp := &fakeImporter{err: errors.New("invalid archive")}
	results := start(t, newWatcher(t, dir, imp))

	path := filepath.Join(dir, "broken.tar.gz")
	if err := os.WriteFile(path, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := waitResult(t, results)
	if r.err == nil {
		t.Fatal("expected import error")
	}
	if r.p != nil {
		t.Error("project should be nil on failure")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("failed archive should stay in the inbox: %v", err)
	}
}

func TestRemoveCancelsPendingImport(t *testing.T) {
	dir := t.TempDir()
	imp := &fakeImporter{}
	w, err := New(dir, imp, WithSettleDelay(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	path := filepath.Join(dir, "web-01.tar.gz")
	w.schedule(path)
	w.cancel(path)

	w.mu.Lock()
	n := len(w.pending)
	w.mu.Unlock()
	if n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestCloseIdempotent(t *testing.T) {
	w := newWatcher(t, t.TempDir(), &fakeImporter{})
	w.schedule(filepath.Join(w.Dir(), "a.tar.gz"))

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	w.schedule(filepath.Join(w.Dir(), "b.tar.gz"))
	if len(w.pending) != 0 {
		t.Error("schedule after Close should be ignored")
	}
}

func TestIsArchive(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"web-01.tar.gz", true},
		{"web-01.tar", true},
		{"web-01.gz", true},
		{"web-01.tgz", true},
		{"/inbox/web-01.tar.gz", true},
		{".web-01.tar.gz", false},
		{"web-01.zip", false},
		{"notes.txt", false},
	}
	for _, tt := range tests {
		if got := isArchive(tt.name); got != tt.want {
			t.Errorf("isArchive(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
