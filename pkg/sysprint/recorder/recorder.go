// Package recorder runs a scan and writes the resulting project archive.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesainslie/sysprint/pkg/sysprint/archive"
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/logging"
	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
	"github.com/jamesainslie/sysprint/pkg/sysprint/scanner"
	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

// ArchiveExt is the file extension of recorded archives.
const ArchiveExt = ".tar.gz"

// ErrInvalidProject is returned for project names that cannot be file names.
var ErrInvalidProject = errors.New("invalid project name")

// Options configures a recording.
type Options struct {
	// Project names the archive: <OutputDir>/<Project>.tar.gz.
	Project string

	// OutputDir receives the archive. It is created if missing.
	OutputDir string

	// Config is the validated scan document.
	Config config.ScanConfig

	// Mode overrides Config.Mode when set.
	Mode config.Mode

	// Workers overrides the hashing pool size when positive.
	Workers int

	// OnProgress receives scan progress.
	OnProgress func(types.ScanProgress)
}

// Result describes a written archive.
type Result struct {
	Path     string
	Size     int64
	Manifest *manifest.Manifest
	Stats    scanner.Stats
	Elapsed  time.Duration
}

// ValidateProject checks that name can be used as an archive file name.
func ValidateProject(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidProject)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidProject, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidProject, name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidProject, name)
	}
	return nil
}

// ArchivePath returns the archive path for project in dir.
func ArchivePath(dir, project string) string {
	return filepath.Join(dir, project+ArchiveExt)
}

// Record scans, then writes the archive through a temporary file renamed
// into place, so a failed or cancelled recording never leaves a partial
// archive behind.
func Record(ctx context.Context, opts Options) (*Result, error) {
	log := logging.Get("recorder").With("project", opts.Project)
	start := time.Now()

	if err := ValidateProject(opts.Project); err != nil {
		return nil, err
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}

	cfg := opts.Config
	if opts.Mode != 0 {
		cfg.Mode = opts.Mode
	}

	s, err := scanner.New(scanner.Options{
		Config:     cfg,
		Workers:    opts.Workers,
		OnProgress: opts.OnProgress,
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	scanned, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}

	final := ArchivePath(opts.OutputDir, opts.Project)
	written, size, err := writeAtomic(final, scanned.Manifest)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Path:     final,
		Size:     size,
		Manifest: written,
		Stats:    scanned.Stats,
		Elapsed:  time.Since(start),
	}
	summary := written.Summary()
	log.Info("record complete",
		"path", final,
		"files", summary.TotalFiles,
		"directories", summary.TotalDirectories,
		"archived", summary.ArchivedFiles,
		"errors", summary.Errors,
		"size", size,
		"elapsed", res.Elapsed)
	if demoted := scanned.Stats.Archived - int64(summary.ArchivedFiles); demoted > 0 {
		log.Warn("files changed while recording", "demoted", demoted)
	}

	return res, nil
}

func writeAtomic(final string, m *manifest.Manifest) (*manifest.Manifest, int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(final), "."+filepath.Base(final)+".*.tmp")
	if err != nil {
		return nil, 0, fmt.Errorf("creating temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	written, err := archive.Write(tmp, m, archive.FS{})
	if err != nil {
		cleanup()
		return nil, 0, fmt.Errorf("writing archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, 0, fmt.Errorf("syncing archive: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		cleanup()
		return nil, 0, fmt.Errorf("stat archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, 0, fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return nil, 0, fmt.Errorf("chmod archive: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		// Cleanup temp file on rename failure
		_ = os.Remove(tmpPath)
		return nil, 0, fmt.Errorf("renaming archive: %w", err)
	}

	return written, info.Size(), nil
}
