// Package config loads the sysprint application settings and the scan
// configuration documents consumed by the recorder.
package config

import (
	"time"

	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

// Default configuration values for sysprint.
const (
	// DefaultMaxFileSize is the largest file whose content is archived.
	DefaultMaxFileSize = 100 * types.MiB

	// DefaultHashChunkSize is the read size used while hashing.
	DefaultHashChunkSize = 64 * types.KiB

	// DefaultHashAlgorithm is the content digest algorithm.
	DefaultHashAlgorithm = "sha256"

	// DefaultMaxUploadSize is the upload ceiling enforced by sysprintd.
	DefaultMaxUploadSize = 100 * types.MiB

	// DefaultRetention is how long an idle project is kept before reclamation.
	DefaultRetention = 30 * 24 * time.Hour

	// DefaultReclaimInterval is how often the reclaimer runs.
	DefaultReclaimInterval = time.Hour

	// DefaultIgnoreFile is the per-root ignore file name.
	DefaultIgnoreFile = ".sysprintignore"
)

// DefaultSecurityExclusions are excluded from every scan unless the scan
// document lists its own exclusions.
var DefaultSecurityExclusions = []string{
	"/proc",
	"/sys",
	"/dev",
	"/run",
	"*/.ssh/*",
	"/etc/shadow*",
	"*.key",
}

// DefaultArchivePatterns archives every selected file under the size ceiling.
var DefaultArchivePatterns = []string{"*"}
