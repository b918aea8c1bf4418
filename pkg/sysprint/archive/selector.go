// Package archive selects which file contents a targeted scan preserves and
// reads and writes project archives: a gzip-compressed tar holding
// manifest.json plus the preserved bytes under archived_files/.
package archive

import (
	"fmt"

	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
	"github.com/jamesainslie/sysprint/pkg/sysprint/matcher"
)

// Selector decides whether a scanned file's content is archived.
type Selector struct {
	include     matcher.Set
	exclude     matcher.Set
	maxFileSize int64
}

// NewSelector compiles the archive rules.
func NewSelector(cfg config.ArchiveConfig) (*Selector, error) {
	include, err := matcher.CompileSet(cfg.Patterns)
	if err != nil {
		return nil, fmt.Errorf("archive patterns: %w", err)
	}
	exclude, err := matcher.CompileSet(cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("archive exclude: %w", err)
	}
	return &Selector{
		include:     include,
		exclude:     exclude,
		maxFileSize: cfg.MaxFileSize.Int64(),
	}, nil
}

// MaxFileSize returns the size ceiling in bytes.
func (s *Selector) MaxFileSize() int64 {
	return s.maxFileSize
}

// ShouldArchive reports whether e is a regular file within the size ceiling
// that matches an archive pattern and no archive exclusion. No pattern can
// override the size ceiling.
func (s *Selector) ShouldArchive(e *manifest.FileEntry) bool {
	if e.Kind != manifest.KindRegular {
		return false
	}
	if e.Metadata.Size > s.maxFileSize {
		return false
	}
	if !s.include.Match(e.Path) {
		return false
	}
	return !s.exclude.Match(e.Path)
}
