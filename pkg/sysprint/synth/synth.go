// Package synth derives a narrowed, targeted scan configuration from the
// differences between two broad scans.
package synth

import (
	"path"
	"slices"

	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/diff"
	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
	"github.com/jamesainslie/sysprint/pkg/sysprint/matcher"
	"github.com/jamesainslie/sysprint/pkg/sysprint/pathset"
)

// Synthesize returns a targeted configuration covering everything that
// was added, removed or changed in result:
//
//   - scan roots are the maximal ancestors among the changed paths' parents;
//   - include and archive patterns are "*.ext" for each extension seen on
//     changed non-directory paths, or the quoted basename when there is none;
//   - excludes, size limits and performance settings come from defaults.
//
// When only directories changed, archive patterns fall back to defaults
// and every file under the roots is included.
func Synthesize(result *diff.Result, defaults config.ScanConfig) config.ScanConfig {
	changes := result.Changes()

	paths := make([]string, 0, len(changes))
	for _, e := range changes {
		paths = append(paths, e.Path)
	}

	patterns := Patterns(changes)

	cfg := config.ScanConfig{
		Mode: config.ModeTargeted,
		Paths: config.PathsConfig{
			Scan:    pathset.Parents(paths),
			Include: patterns,
			Exclude: slices.Clone(defaults.Paths.Exclude),
		},
		Archive: config.ArchiveConfig{
			Patterns:    patterns,
			Exclude:     slices.Clone(defaults.Archive.Exclude),
			MaxFileSize: defaults.Archive.MaxFileSize,
		},
		Performance: defaults.Performance,
		IgnoreFile:  defaults.IgnoreFile,
	}
	if len(patterns) == 0 {
		cfg.Archive.Patterns = slices.Clone(defaults.Archive.Patterns)
	}
	return cfg
}

// Patterns returns the sorted, distinct file patterns for the
// non-directory entries.
func Patterns(entries []diff.Entry) []string {
	seen := make(map[string]struct{})
	for _, e := range entries {
		if e.Kind() == manifest.KindDirectory {
			continue
		}
		seen[patternFor(path.Base(e.Path))] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.Sort(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// patternFor maps a basename to "*.ext", or to the quoted name itself for
// extensionless names and dot-files.
func patternFor(base string) string {
	ext := path.Ext(base)
	if ext == "" || ext == base || ext == "." {
		return matcher.QuoteMeta(base)
	}
	return "*" + matcher.QuoteMeta(ext)
}
