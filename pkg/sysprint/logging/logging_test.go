package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jamesainslie/sysprint/pkg/sysprint/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    logging.Level
		wantErr bool
	}{
		{input: "debug", want: logging.LevelDebug},
		{input: "INFO", want: logging.LevelInfo},
		{input: "", want: logging.LevelInfo},
		{input: "warning", want: logging.LevelWarn},
		{input: "error", want: logging.LevelError},
		{input: "chatty", want: logging.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestInit_InvalidLevels(t *testing.T) {
	dir := t.TempDir()

	if err := logging.Init(logging.Config{Level: "loud", Path: filepath.Join(dir, "a.log")}); err == nil {
		t.Error("Init() with bad level succeeded, want error")
	}
	err := logging.Init(logging.Config{
		Level:      "info",
		Path:       filepath.Join(dir, "b.log"),
		Components: map[string]string{"scanner": "verbose"},
	})
	if err == nil {
		t.Error("Init() with bad component level succeeded, want error")
	}
	_ = logging.Close()
}

func TestLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sysprint.log")

	// Obtained before Init, so it must be upgraded in place.
	early := logging.Get("recorder")

	if err := logging.Init(logging.Config{Level: "info", Path: path}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	early.Info("archive written", "path", "/tmp/out.tar.gz")
	logging.Get("scanner").Debug("hidden at info level")
	logging.Get("scanner").Warn("permission denied", "path", "/etc/shadow")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	content := string(data)

	for _, want := range []string{"recorder", "archive written", "scanner", "permission denied"} {
		if !strings.Contains(content, want) {
			t.Errorf("log file missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "hidden at info level") {
		t.Error("debug message written at info level")
	}
}

func TestComponentLevelOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.log")
	err := logging.Init(logging.Config{
		Level:      "warn",
		Path:       path,
		Components: map[string]string{"repository": "debug"},
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logging.Get("repository").Debug("lock acquired", "project", "before")
	logging.Get("daemon").Info("not shown")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "lock acquired") {
		t.Error("component override did not enable debug output")
	}
	if strings.Contains(string(data), "not shown") {
		t.Error("info message written for component at warn level")
	}
}

func TestWith(t *testing.T) {
	path := filepath.Join(t.TempDir(), "with.log")
	if err := logging.Init(logging.Config{Level: "info", Path: path}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logger := logging.Get("cli").With("project", "baseline")
	logger.Info("recording")
	if logger.Component() != "cli" {
		t.Errorf("Component() = %q, want cli", logger.Component())
	}

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "project=baseline") {
		t.Errorf("context missing from log line: %s", data)
	}
}

func TestConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.log")
	if err := logging.Init(logging.Config{Level: "info", Path: path}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger := logging.Get("worker")
			for j := range 50 {
				logger.Info("hashed", "worker", i, "n", j)
			}
		}()
	}
	wg.Wait()

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if got := strings.Count(string(data), "hashed"); got != 400 {
		t.Errorf("line count = %d, want 400", got)
	}
}

func TestDefaultLogPath(t *testing.T) {
	path := logging.DefaultLogPath()
	if filepath.Base(path) != "sysprint.log" {
		t.Errorf("DefaultLogPath() = %q, want sysprint.log basename", path)
	}
	if filepath.Base(filepath.Dir(path)) != "sysprint" {
		t.Errorf("DefaultLogPath() = %q, want sysprint directory", path)
	}
}
