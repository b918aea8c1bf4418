// Package archivetest builds small project archives for tests.
package archivetest

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/jamesainslie/sysprint/pkg/sysprint/archive"
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/hasher"
	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
)

// Created is the scan time stamped on every built manifest.
var Created = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// File describes one manifest entry. Exactly one of Dir, Link or Content
// applies; a File with neither Dir nor Link is a regular file.
type File struct {
	Path    string
	Content string
	Archive bool
	Dir     bool
	Link    string
}

// Dir returns a directory entry.
func Dir(path string) File {
	return File{Path: path, Dir: true}
}

// Regular returns a regular file entry whose content is archived when
// archived is true.
func Regular(path, content string, archived bool) File {
	return File{Path: path, Content: content, Archive: archived}
}

// Link returns a symlink entry.
func Link(path, target string) File {
	return File{Path: path, Link: target}
}

type memSource map[string][]byte

func (s memSource) Open(path string) (io.ReadCloser, error) {
	data, ok := s[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Manifest builds a manifest of files scanned on host.
func Manifest(tb testing.TB, host string, files ...File) (*manifest.Manifest, archive.ContentSource) {
	tb.Helper()

	h, err := hasher.New()
	if err != nil {
		tb.Fatalf("hasher: %v", err)
	}

	cfg := config.DefaultScanConfig()
	cfg.Mode = config.ModeTargeted

	header := manifest.NewHeader(h.Algorithm())
	header.Created = Created
	header.Host = host
	header.Config = cfg

	b := manifest.NewBuilder(header)
	src := memSource{}
	for _, f := range files {
		e := manifest.FileEntry{Path: f.Path, Metadata: manifest.Metadata{ModTime: Created}}
		switch {
		case f.Dir:
			e.Kind = manifest.KindDirectory
			e.Metadata.Mode = manifest.ModeDir | 0o755
		case f.Link != "":
			e.Kind = manifest.KindSymlink
			e.Metadata.Mode = manifest.ModeSymlink | 0o777
			e.Metadata.IsSymlink = true
			e.Metadata.LinkTarget = f.Link
			e.Metadata.Size = int64(len(f.Link))
		default:
			data := []byte(f.Content)
			e.Kind = manifest.KindRegular
			e.Metadata.Mode = manifest.ModeRegular | 0o644
			e.Metadata.Size = int64(len(data))
			e.Digest = h.DigestBytes(data)
			e.Archived = f.Archive
			src[f.Path] = data
		}
		if err := b.Add(e); err != nil {
			tb.Fatalf("adding %s: %v", f.Path, err)
		}
	}
	return b.Build(), src
}

// Bytes returns an encoded archive of files scanned on host.
func Bytes(tb testing.TB, host string, files ...File) []byte {
	tb.Helper()

	m, src := Manifest(tb, host, files...)
	var buf bytes.Buffer
	if _, err := archive.Write(&buf, m, src); err != nil {
		tb.Fatalf("writing archive: %v", err)
	}
	return buf.Bytes()
}

// WriteFile writes an encoded archive to path and returns path.
func WriteFile(tb testing.TB, path, host string, files ...File) string {
	tb.Helper()

	if err := os.WriteFile(path, Bytes(tb, host, files...), 0o644); err != nil {
		tb.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// Open returns the opened archive of files scanned on host.
func Open(tb testing.TB, name, host string, files ...File) *archive.Archive {
	tb.Helper()

	a, err := archive.OpenBytes(name, Bytes(tb, host, files...))
	if err != nil {
		tb.Fatalf("opening archive: %v", err)
	}
	return a
}
