package types

import (
	"errors"
	"fmt"
)

// ErrNotDiffable is returned when archived content is binary, undecodable
// under the declared encoding, or missing from an archive. The comparison
// service reports it as a result value rather than failing the request.
var ErrNotDiffable = errors.New("content not diffable")

// ConfigError reports an invalid configuration value. It is fatal and is
// raised before any scanning starts.
type ConfigError struct {
	// Field is the configuration key that failed validation (e.g. "paths.scan").
	Field string

	// Value is the offending value, if any.
	Value string

	// Err is the underlying cause.
	Err error
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("config %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError builds a ConfigError from a field, value and message.
func NewConfigError(field, value, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: fmt.Errorf(format, args...)}
}

// FormatError reports an unreadable or incompatible project archive.
type FormatError struct {
	// Source names the archive or member being read.
	Source string

	// Err is the underlying cause.
	Err error
}

func (e *FormatError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("invalid archive: %v", e.Err)
	}
	return fmt.Sprintf("invalid archive %s: %v", e.Source, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// CapacityError reports an upload larger than the configured ceiling.
type CapacityError struct {
	Size  int64
	Limit int64
}

func (e *CapacityError) Error() string {
	if e.Size < 0 {
		return fmt.Sprintf("upload exceeds limit of %s", FormatSize(e.Limit))
	}
	return fmt.Sprintf("upload of %s exceeds limit of %s", FormatSize(e.Size), FormatSize(e.Limit))
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsFormatError reports whether err is or wraps a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsCapacityError reports whether err is or wraps a CapacityError.
func IsCapacityError(err error) bool {
	var ce *CapacityError
	return errors.As(err, &ce)
}
