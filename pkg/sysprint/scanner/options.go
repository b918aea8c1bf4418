// Package scanner fingerprints one or more file trees. A fastwalk traversal
// feeds a bounded pool of hashing workers; each worker keeps its own
// entries, which are merged into a manifest once the walk ends.
package scanner

import (
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

// Options configures the scanner behavior.
type Options struct {
	// Config is the scan document: roots, rules, mode and performance.
	Config config.ScanConfig

	// Workers overrides Config.Performance.Workers when positive.
	Workers int

	// OnProgress is called periodically with scan progress updates.
	// It must be safe to call from multiple goroutines.
	OnProgress func(types.ScanProgress)
}

// DefaultOptions returns options for a broad scan of "/".
func DefaultOptions() Options {
	return Options{
		Config: config.DefaultScanConfig(),
	}
}

// Validate checks the scan document. Failures are *types.ConfigError.
func (o *Options) Validate() error {
	if o.Workers < 0 {
		return types.NewConfigError("performance.workers", "", "must not be negative")
	}
	return o.Config.Validate()
}
