package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
)

// job is one visited path handed from the walk to the hashing pool.
type job struct {
	path string
	kind manifest.Kind
	// root marks a scan root, which is stat'ed through symlinks.
	root bool
	// err is a traversal failure to record instead of an entry.
	err error
}

// shard holds one worker's private results.
type shard struct {
	entries map[string]manifest.FileEntry
	errors  []manifest.ScanError
}

func newShard() *shard {
	return &shard{entries: make(map[string]manifest.FileEntry)}
}

func (sh *shard) addError(path string, err error) {
	sh.errors = append(sh.errors, manifest.ScanError{Path: path, Message: err.Error()})
}

// mergeInto adds the shard's entries and errors to b.
func (sh *shard) mergeInto(b *manifest.Builder) {
	for _, e := range sh.entries {
		if err := b.Add(e); err != nil {
			b.AddError(e.Path, err.Error())
		}
	}
	for _, se := range sh.errors {
		b.AddError(se.Path, se.Message)
	}
}

// worker records jobs until the queue is closed. After cancellation it
// drains the queue without doing any work.
func (s *Scanner) worker(ctx context.Context, jobs <-chan job, sh *shard) {
	for j := range jobs {
		if ctx.Err() != nil {
			continue
		}
		s.currentPath.Store(j.path)
		s.process(j, sh)
		s.reportProgress()
	}
}

// process stats one path and, for regular files, digests it.
func (s *Scanner) process(j job, sh *shard) {
	if j.err != nil {
		s.fail(sh, j.path, j.err)
		return
	}

	stat := os.Lstat
	if j.root {
		stat = os.Stat
	}
	info, err := stat(filepath.FromSlash(j.path))
	if err != nil {
		s.fail(sh, j.path, err)
		return
	}

	entry := manifest.FileEntry{
		Path:     j.path,
		Kind:     j.kind,
		Metadata: metadataOf(info),
	}

	switch j.kind {
	case manifest.KindDirectory:
		s.dirsScanned.Add(1)

	case manifest.KindSymlink:
		s.filesScanned.Add(1)
		entry.Metadata.IsSymlink = true
		target, err := os.Readlink(filepath.FromSlash(j.path))
		if err != nil {
			s.fail(sh, j.path, fmt.Errorf("readlink: %w", err))
		} else {
			entry.Metadata.LinkTarget = target
		}

	default:
		s.filesScanned.Add(1)
		digest, n, err := s.hasher.DigestFile(filepath.FromSlash(j.path))
		s.bytesHashed.Add(n)
		if err != nil {
			s.fail(sh, j.path, err)
			break
		}
		entry.Digest = digest
		if s.selector != nil && s.selector.ShouldArchive(&entry) {
			entry.Archived = true
			s.archived.Add(1)
		}
	}

	sh.entries[j.path] = entry
}

func (s *Scanner) fail(sh *shard, path string, err error) {
	s.errorCount.Add(1)
	s.log.Warn("scan error", "path", path, "error", err)
	sh.addError(path, err)
}
