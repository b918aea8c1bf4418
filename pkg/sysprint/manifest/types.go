// Package manifest defines the fingerprint model: one FileEntry per scanned
// path plus a header describing how and where the scan ran.
package manifest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
)

// FormatVersion is the only manifest document version understood.
const FormatVersion = "1.0"

// Kind is the type of a filesystem entry.
type Kind string

const (
	KindRegular   Kind = "regular"
	KindDirectory Kind = "directory"
	KindSymlink   Kind = "symlink"
)

// Mode holds unix st_mode bits: file type and permissions.
// It is encoded as an octal string such as "0100644".
type Mode uint32

// Unix file type bits.
const (
	ModeTypeMask Mode = 0o170000
	ModeRegular  Mode = 0o100000
	ModeDir      Mode = 0o040000
	ModeSymlink  Mode = 0o120000
)

// Perm returns the permission bits.
func (m Mode) Perm() Mode {
	return m & 0o7777
}

// String returns the octal form, e.g. "0100644".
func (m Mode) String() string {
	return "0" + strconv.FormatUint(uint64(m), 8)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts "0100644", "0o100644" or "100644".
func (m *Mode) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(strings.TrimPrefix(string(text), "0o"), "0O")
	if s == "" {
		*m = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid mode %q: %w", text, err)
	}
	*m = Mode(v)
	return nil
}

// Metadata is the stat information recorded for a path.
type Metadata struct {
	Size       int64     `json:"size"`
	Mode       Mode      `json:"mode"`
	UID        uint32    `json:"uid"`
	GID        uint32    `json:"gid"`
	ModTime    time.Time `json:"mtime"`
	IsSymlink  bool      `json:"is_symlink"`
	LinkTarget string    `json:"link_target,omitempty"`
}

// FileEntry is one scanned path.
type FileEntry struct {
	// Path is absolute, cleaned and slash-separated.
	Path     string   `json:"path"`
	Kind     Kind     `json:"kind"`
	Metadata Metadata `json:"metadata"`
	// Digest is the lowercase hex content hash. It is set only for regular
	// files that could be read.
	Digest string `json:"digest,omitempty"`
	// Archived reports whether the content is stored in the project archive.
	Archived bool `json:"archived"`
}

// IsDir reports whether the entry is a directory.
func (e *FileEntry) IsDir() bool {
	return e.Kind == KindDirectory
}

// ScanError records a path that could not be fully fingerprinted.
type ScanError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Header describes the scan that produced a manifest.
type Header struct {
	Version       string            `json:"version"`
	Created       time.Time         `json:"created"`
	Host          string            `json:"host"`
	Platform      string            `json:"platform"`
	HashAlgorithm string            `json:"hash_algorithm"`
	Config        config.ScanConfig `json:"config"`
}

// Summary aggregates a manifest's contents.
type Summary struct {
	TotalFiles       int   `json:"total_files"`
	TotalDirectories int   `json:"total_directories"`
	Symlinks         int   `json:"symlinks"`
	ArchivedFiles    int   `json:"archived_files"`
	Errors           int   `json:"errors"`
	TotalBytes       int64 `json:"total_bytes"`
}
