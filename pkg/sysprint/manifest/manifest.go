package manifest

import (
	"errors"
	"fmt"
	"os"
	"path"
	"runtime"
	"sort"
	"time"
)

var (
	// ErrDuplicatePath is returned when a path is added twice.
	ErrDuplicatePath = errors.New("duplicate path")

	// ErrInvalidEntry is returned for entries that violate the model, such as
	// a relative path or an archived entry without a digest.
	ErrInvalidEntry = errors.New("invalid entry")

	// ErrUnsupportedVersion is returned when a document version is not FormatVersion.
	ErrUnsupportedVersion = errors.New("unsupported manifest version")

	// ErrMissingHeader is returned when a document has no metadata section.
	ErrMissingHeader = errors.New("missing manifest header")
)

// Manifest is an immutable fingerprint of one or more file trees.
type Manifest struct {
	Header  Header
	entries map[string]*FileEntry
	paths   []string
	errors  []ScanError
}

// NewHeader returns a header for a scan running now on this host.
func NewHeader(hashAlgorithm string) Header {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return Header{
		Version:       FormatVersion,
		Created:       time.Now().UTC(),
		Host:          host,
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
		HashAlgorithm: hashAlgorithm,
	}
}

// Paths returns every path in sorted order. The slice must not be modified.
func (m *Manifest) Paths() []string {
	return m.paths
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.paths)
}

// Get returns the entry for path.
func (m *Manifest) Get(p string) (*FileEntry, bool) {
	e, ok := m.entries[p]
	return e, ok
}

// Each calls fn for every entry in path order until fn returns false.
func (m *Manifest) Each(fn func(*FileEntry) bool) {
	for _, p := range m.paths {
		if !fn(m.entries[p]) {
			return
		}
	}
}

// Errors returns the recorded scan errors, sorted by path.
func (m *Manifest) Errors() []ScanError {
	return m.errors
}

// ArchivedPaths returns the paths whose content is archived, sorted.
func (m *Manifest) ArchivedPaths() []string {
	var out []string
	for _, p := range m.paths {
		if m.entries[p].Archived {
			out = append(out, p)
		}
	}
	return out
}

// Summary counts the manifest's entries.
func (m *Manifest) Summary() Summary {
	var s Summary
	for _, p := range m.paths {
		e := m.entries[p]
		switch e.Kind {
		case KindDirectory:
			s.TotalDirectories++
		case KindSymlink:
			s.Symlinks++
			s.TotalFiles++
		default:
			s.TotalFiles++
			s.TotalBytes += e.Metadata.Size
		}
		if e.Archived {
			s.ArchivedFiles++
		}
	}
	s.Errors = len(m.errors)
	return s
}

// Validate checks the header and every entry.
func (m *Manifest) Validate() error {
	if m.Header.Version == "" {
		return ErrMissingHeader
	}
	if m.Header.Version != FormatVersion {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, m.Header.Version)
	}
	for _, p := range m.paths {
		if err := checkEntry(m.entries[p]); err != nil {
			return err
		}
	}
	return nil
}

// WithEntry returns a copy of m with the entry at e.Path replaced. It is used
// by the codec to demote entries whose content could not be archived.
func (m *Manifest) WithEntry(e FileEntry) *Manifest {
	clone := &Manifest{
		Header:  m.Header,
		entries: make(map[string]*FileEntry, len(m.entries)),
		paths:   m.paths,
		errors:  m.errors,
	}
	for k, v := range m.entries {
		clone.entries[k] = v
	}
	if _, ok := clone.entries[e.Path]; ok {
		clone.entries[e.Path] = &e
	}
	return clone
}

// WithErrors returns a copy of m with extra scan errors appended.
func (m *Manifest) WithErrors(errs ...ScanError) *Manifest {
	if len(errs) == 0 {
		return m
	}
	clone := *m
	clone.errors = sortErrors(append(append([]ScanError(nil), m.errors...), errs...))
	return &clone
}

func checkEntry(e *FileEntry) error {
	if e.Path == "" || !path.IsAbs(e.Path) || path.Clean(e.Path) != e.Path {
		return fmt.Errorf("%w: path %q must be absolute and clean", ErrInvalidEntry, e.Path)
	}
	switch e.Kind {
	case KindRegular, KindDirectory, KindSymlink:
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidEntry, e.Path, e.Kind)
	}
	if e.Kind != KindRegular && e.Digest != "" {
		return fmt.Errorf("%w: %s: only regular files carry a digest", ErrInvalidEntry, e.Path)
	}
	if e.Archived && e.Digest == "" {
		return fmt.Errorf("%w: %s: archived without digest", ErrInvalidEntry, e.Path)
	}
	return nil
}

func sortErrors(errs []ScanError) []ScanError {
	if len(errs) == 0 {
		return nil
	}
	sort.SliceStable(errs, func(i, j int) bool {
		return errs[i].Path < errs[j].Path
	})
	return errs
}

// Builder accumulates entries for a Manifest. It is not safe for
// concurrent use.
type Builder struct {
	header  Header
	entries map[string]*FileEntry
	errors  []ScanError
}

// NewBuilder starts a manifest with the given header.
func NewBuilder(header Header) *Builder {
	return &Builder{
		header:  header,
		entries: make(map[string]*FileEntry),
	}
}

// Add records an entry. Adding the same path twice fails with ErrDuplicatePath.
func (b *Builder) Add(e FileEntry) error {
	if err := checkEntry(&e); err != nil {
		return err
	}
	if _, ok := b.entries[e.Path]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, e.Path)
	}
	b.entries[e.Path] = &e
	return nil
}

// AddError records a per-path failure.
func (b *Builder) AddError(p, message string) {
	b.errors = append(b.errors, ScanError{Path: p, Message: message})
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Build returns the manifest with paths in sorted order. The builder must
// not be used afterwards.
func (b *Builder) Build() *Manifest {
	paths := make([]string, 0, len(b.entries))
	for p := range b.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	return &Manifest{
		Header:  b.header,
		entries: b.entries,
		paths:   paths,
		errors:  sortErrors(b.errors),
	}
}
