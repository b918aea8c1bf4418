package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotationBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sysprint.log")

	w, err := NewRotatingWriter(path, RotationConfig{MaxSize: 64})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	line := []byte(strings.Repeat("x", 40) + "\n")
	for range 3 {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) < 2 {
		t.Errorf("found %d files, want current plus at least one rotated", len(entries))
	}
}

func TestRotatedName(t *testing.T) {
	w := &RotatingWriter{path: "/var/log/sysprint/sysprint.log"}
	at := time.Date(2026, 1, 20, 15, 4, 5, 0, time.UTC)
	want := "/var/log/sysprint/sysprint.2026-01-20-150405.log"
	if got := w.rotatedName(at); got != want {
		t.Errorf("rotatedName() = %q, want %q", got, want)
	}
}

func TestPruneMaxBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sysprint.log")

	base := time.Now().Add(-time.Hour)
	for i := range 4 {
		name := filepath.Join(dir, "sysprint.2026-01-0"+string(rune('1'+i))+"-000000.log")
		if err := os.WriteFile(name, []byte("old"), 0o644); err != nil {
			t.Fatal(err)
		}
		stamp := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(name, stamp, stamp); err != nil {
			t.Fatal(err)
		}
	}

	w, err := NewRotatingWriter(path, RotationConfig{MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	matches, _ := filepath.Glob(filepath.Join(dir, "sysprint.2026-*.log"))
	if len(matches) != 2 {
		t.Errorf("kept %d rotated files, want 2", len(matches))
	}
}

func TestPruneMaxAge(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "sysprint.2020-01-01-000000.log")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-72 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	w, err := NewRotatingWriter(filepath.Join(dir, "sysprint.log"), RotationConfig{MaxAge: 1})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale rotated file still present (err = %v)", err)
	}
}

func TestNewRotatingWriter_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "sysprint", "sysprint.log")
	w, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}
