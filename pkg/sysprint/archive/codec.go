package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/hasher"
	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

// Fixed member names inside a project archive.
const (
	ManifestName  = "manifest.json"
	ContentPrefix = "archived_files/"
)

// maxManifestSize bounds how much of manifest.json is read.
const maxManifestSize = 1 << 30

var (
	// ErrMissingManifest is returned when an archive has no manifest.json.
	ErrMissingManifest = errors.New("manifest.json not found")

	// ErrDrift is recorded when a file changed between scan and archive.
	ErrDrift = errors.New("content changed since scan")
)

// MemberName returns the archive member name for an absolute path.
func MemberName(path string) string {
	return ContentPrefix + strings.TrimPrefix(path, "/")
}

// ContentSource opens the current content of a scanned path.
type ContentSource interface {
	Open(path string) (io.ReadCloser, error)
}

// FS reads content from the local filesystem.
type FS struct{}

// Open opens path for reading.
func (FS) Open(path string) (io.ReadCloser, error) {
	return os.Open(filepath.FromSlash(path))
}

type writeConfig struct {
	maxFileSize int64
	hasher      *hasher.Hasher
	level       int
}

// WriteOption configures Write.
type WriteOption func(*writeConfig)

// WithMaxFileSize overrides the size ceiling recorded in the manifest header.
func WithMaxFileSize(n int64) WriteOption {
	return func(c *writeConfig) {
		c.maxFileSize = n
	}
}

// WithHasher sets the hasher used to verify archived content.
func WithHasher(h *hasher.Hasher) WriteOption {
	return func(c *writeConfig) {
		c.hasher = h
	}
}

// WithCompressionLevel sets the gzip level.
func WithCompressionLevel(level int) WriteOption {
	return func(c *writeConfig) {
		c.level = level
	}
}

// Write streams m and the content of its archived entries to w as a gzip
// tar. Content members come first and manifest.json last. Each archived
// file is re-read from source and checked against its recorded digest; a
// file that vanished, grew past the size ceiling or no longer matches is
// written as not archived, with a scan error explaining why. The manifest
// exactly as written is returned.
func Write(w io.Writer, m *manifest.Manifest, source ContentSource, opts ...WriteOption) (*manifest.Manifest, error) {
	cfg := writeConfig{
		maxFileSize: m.Header.Config.Archive.MaxFileSize.Int64(),
		level:       gzip.DefaultCompression,
	}
	if cfg.maxFileSize <= 0 {
		cfg.maxFileSize = config.DefaultMaxFileSize
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.hasher == nil {
		h, err := hasher.New(hasher.WithAlgorithm(m.Header.HashAlgorithm))
		if err != nil {
			return nil, fmt.Errorf("creating hasher: %w", err)
		}
		cfg.hasher = h
	}
	if source == nil {
		source = FS{}
	}

	gz, err := gzip.NewWriterLevel(w, cfg.level)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	written := m
	var demoted []manifest.ScanError
	for _, p := range m.ArchivedPaths() {
		entry, _ := m.Get(p)

		data, err := readVerified(source, entry, cfg)
		if err != nil {
			demotedEntry := *entry
			demotedEntry.Archived = false
			written = written.WithEntry(demotedEntry)
			demoted = append(demoted, manifest.ScanError{Path: p, Message: "not archived: " + err.Error()})
			continue
		}

		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     MemberName(p),
			Size:     int64(len(data)),
			Mode:     int64(entry.Metadata.Mode.Perm()),
			Uid:      int(entry.Metadata.UID),
			Gid:      int(entry.Metadata.GID),
			ModTime:  entry.Metadata.ModTime,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("writing header for %s: %w", p, err)
		}
		if _, err := tw.Write(data); err != nil {
			return nil, fmt.Errorf("writing content for %s: %w", p, err)
		}
	}
	written = written.WithErrors(demoted...)

	doc, err := json.MarshalIndent(written, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     ManifestName,
		Size:     int64(len(doc)),
		Mode:     0o644,
		ModTime:  written.Header.Created,
		Format:   tar.FormatPAX,
	}
	if hdr.ModTime.IsZero() {
		hdr.ModTime = time.Now()
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("writing manifest header: %w", err)
	}
	if _, err := tw.Write(doc); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip stream: %w", err)
	}

	return written, nil
}

func readVerified(source ContentSource, entry *manifest.FileEntry, cfg writeConfig) ([]byte, error) {
	rc, err := source.Open(entry.Path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, cfg.maxFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > cfg.maxFileSize {
		return nil, fmt.Errorf("grew past max_file_size (%s)", types.FormatSize(cfg.maxFileSize))
	}
	if cfg.hasher.DigestBytes(data) != entry.Digest {
		return nil, ErrDrift
	}
	return data, nil
}

// Opener returns a fresh reader positioned at the start of an archive.
// Content lookups re-open the archive, so the opener may be called many
// times.
type Opener func() (io.ReadCloser, error)

// Archive is an opened project archive. Only the manifest is held in
// memory; content is read on demand.
type Archive struct {
	Manifest *manifest.Manifest

	source  string
	open    Opener
	members map[string]int64
}

// OpenFile opens the archive at path.
func OpenFile(path string) (*Archive, error) {
	return Open(path, func() (io.ReadCloser, error) {
		return os.Open(path)
	})
}

// OpenBytes opens an in-memory archive.
func OpenBytes(name string, data []byte) (*Archive, error) {
	return Open(name, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// Open reads the archive once, decoding manifest.json and indexing content
// members. Any framing, document or version problem is a *types.FormatError.
func Open(source string, open Opener) (*Archive, error) {
	rc, err := open()
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer rc.Close()

	a := &Archive{
		source:  source,
		open:    open,
		members: make(map[string]int64),
	}

	var doc []byte
	err = walk(rc, func(hdr *tar.Header, r io.Reader) (bool, error) {
		name := strings.TrimPrefix(hdr.Name, "./")
		switch {
		case name == ManifestName:
			data, err := io.ReadAll(io.LimitReader(r, maxManifestSize))
			if err != nil {
				return false, err
			}
			doc = data
		case strings.HasPrefix(name, ContentPrefix) && hdr.Typeflag == tar.TypeReg:
			a.members["/"+strings.TrimPrefix(name, ContentPrefix)] = hdr.Size
		}
		return true, nil
	})
	if err != nil {
		return nil, &types.FormatError{Source: source, Err: err}
	}
	if doc == nil {
		return nil, &types.FormatError{Source: source, Err: ErrMissingManifest}
	}

	var m manifest.Manifest
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, &types.FormatError{Source: source, Err: fmt.Errorf("decoding %s: %w", ManifestName, err)}
	}
	if err := m.Validate(); err != nil {
		return nil, &types.FormatError{Source: source, Err: err}
	}
	a.Manifest = &m

	return a, nil
}

// gzipMagic starts every gzip stream.
var gzipMagic = []byte{0x1f, 0x8b}

// walk iterates over the members of a tar stream until fn returns false.
// The stream may be gzip-compressed or a plain tar.
func walk(r io.Reader, fn func(*tar.Header, io.Reader) (bool, error)) error {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, _ := br.Peek(len(gzipMagic)); bytes.Equal(magic, gzipMagic) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}
		more, err := fn(hdr, tr)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// Source names the archive, usually its file path.
func (a *Archive) Source() string {
	return a.source
}

// HasContent reports whether content for path is stored in the archive.
func (a *Archive) HasContent(path string) bool {
	e, ok := a.Manifest.Get(path)
	if !ok || !e.Archived {
		return false
	}
	_, ok = a.members[path]
	return ok
}

// Content returns the archived bytes for path. It fails with
// types.ErrNotDiffable when the path was not archived.
func (a *Archive) Content(path string) ([]byte, error) {
	if !a.HasContent(path) {
		return nil, fmt.Errorf("%w: %s has no archived content", types.ErrNotDiffable, path)
	}

	want := MemberName(path)
	var data []byte
	found := false

	rc, err := a.open()
	if err != nil {
		return nil, fmt.Errorf("reopening archive: %w", err)
	}
	defer rc.Close()

	err = walk(rc, func(hdr *tar.Header, r io.Reader) (bool, error) {
		if strings.TrimPrefix(hdr.Name, "./") != want {
			return true, nil
		}
		b, err := io.ReadAll(io.LimitReader(r, a.members[path]))
		if err != nil {
			return false, err
		}
		data, found = b, true
		return false, nil
	})
	if err != nil {
		return nil, &types.FormatError{Source: a.source, Err: err}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s missing from archive", types.ErrNotDiffable, path)
	}
	return data, nil
}
