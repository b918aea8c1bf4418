// Package types provides core data types shared across sysprint: size
// parsing and formatting, scan progress snapshots and the error taxonomy
// used by the scanner, codec, comparison service and CLI.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// ByteSize is a size in bytes that can be configured either as an integer
// or as a human-readable string such as "64KiB" or "100M".
type ByteSize int64

// Int64 returns the size as a plain int64.
func (b ByteSize) Int64() int64 {
	return int64(b)
}

// String returns the size formatted with binary units.
func (b ByteSize) String() string {
	return FormatSize(int64(b))
}

// MarshalYAML writes the exact byte count so documents round-trip losslessly.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return int64(b), nil
}

// UnmarshalText parses a size string such as "100MiB" or "4096".
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := ParseSize(string(text))
	if err != nil {
		return err
	}
	*b = ByteSize(n)
	return nil
}

// UnmarshalJSON accepts either a byte count or a size string.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	return b.UnmarshalText([]byte(s))
}

// ScanProgress reports real-time scan progress.
// It provides a snapshot of the current scan state for progress reporting.
type ScanProgress struct {
	// DirsScanned is the number of directories recorded so far.
	DirsScanned int64 `json:"dirs_scanned"`

	// FilesScanned is the number of files and symlinks recorded so far.
	FilesScanned int64 `json:"files_scanned"`

	// BytesHashed is the total number of content bytes digested so far.
	BytesHashed int64 `json:"bytes_hashed"`

	// Errors is the number of per-path scan errors recorded so far.
	Errors int64 `json:"errors"`

	// CurrentPath is the path most recently visited by the walk.
	CurrentPath string `json:"current_path"`

	// WalkComplete indicates that directory traversal is finished and only
	// hashing remains.
	WalkComplete bool `json:"walk_complete,omitempty"`
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB", etc.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string and returns the size in bytes.
// It supports plain byte counts ("1024") and K, M, G and T suffixes with an
// optional "B" or "iB" ("100K", "50MB", "2GiB"). All units are binary.
//
// Decimal values are supported and truncated to the nearest byte.
// Leading and trailing whitespace is ignored.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}

	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units, e.g. FormatSize(1536*1024) returns "1.5 MiB".
func FormatSize(bytes int64) string {
	return humanize.IBytes(uint64(bytes))
}
