// Package compare diffs the archived content of one path across two
// project archives.
package compare

import (
	"errors"
	"fmt"

	"github.com/jamesainslie/sysprint/pkg/sysprint/archive"
	"github.com/jamesainslie/sysprint/pkg/sysprint/textdiff"
	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

// DiffType says which archives hold the path.
type DiffType string

const (
	Added    DiffType = "added"
	Deleted  DiffType = "deleted"
	Modified DiffType = "modified"
)

// ErrPathNotFound is returned when neither manifest lists the path.
var ErrPathNotFound = errors.New("path not found in either manifest")

// FileDiff is the content comparison of one path. When Diffable is false,
// Reason explains why and Binary may carry a chunk-level summary.
type FileDiff struct {
	Path       string               `json:"path"`
	Type       DiffType             `json:"diff_type"`
	Diffable   bool                 `json:"diffable"`
	Reason     string               `json:"reason,omitempty"`
	Encoding   string               `json:"encoding,omitempty"`
	SourceSize int64                `json:"source_size"`
	TargetSize int64                `json:"target_size"`
	Script     textdiff.Script      `json:"script,omitempty"`
	Unified    string               `json:"unified,omitempty"`
	Binary     *textdiff.ChunkStats `json:"binary_summary,omitempty"`
}

// Files compares path between source and target. A path present on only
// one side is diffed against empty content. An empty opts.Encoding tries
// UTF-8 and then latin1. Undiffable content is reported in the result, not
// as an error.
func Files(source, target *archive.Archive, path string, opts textdiff.Options) (*FileDiff, error) {
	_, inSource := source.Manifest.Get(path)
	_, inTarget := target.Manifest.Get(path)

	fd := &FileDiff{Path: path}
	switch {
	case inSource && inTarget:
		fd.Type = Modified
	case inTarget:
		fd.Type = Added
	case inSource:
		fd.Type = Deleted
	default:
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}

	encodings := []string{textdiff.UTF8, textdiff.Latin1}
	if opts.Encoding != "" {
		enc, err := textdiff.NormalizeEncoding(opts.Encoding)
		if err != nil {
			return nil, err
		}
		encodings = []string{enc}
	}

	a, err := content(source, path, inSource)
	if err != nil {
		return notDiffable(fd, err)
	}
	b, err := content(target, path, inTarget)
	if err != nil {
		return notDiffable(fd, err)
	}
	fd.SourceSize, fd.TargetSize = int64(len(a)), int64(len(b))

	var lastErr error
	for _, enc := range encodings {
		o := textdiff.Options{Encoding: enc, Context: opts.Context}
		script, err := textdiff.Diff(a, b, o)
		if errors.Is(err, types.ErrNotDiffable) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		unified, err := textdiff.Unified("a"+path, "b"+path, a, b, o)
		if err != nil {
			return nil, err
		}
		fd.Diffable = true
		fd.Encoding = enc
		fd.Script = script
		fd.Unified = unified
		return fd, nil
	}

	fd.Reason = lastErr.Error()
	stats, err := textdiff.ChunkSummary(a, b)
	if err != nil {
		return nil, err
	}
	fd.Binary = &stats
	return fd, nil
}

func content(a *archive.Archive, path string, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return a.Content(path)
}

func notDiffable(fd *FileDiff, err error) (*FileDiff, error) {
	if !errors.Is(err, types.ErrNotDiffable) {
		return nil, err
	}
	fd.Reason = err.Error()
	return fd, nil
}
