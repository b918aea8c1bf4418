package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"1", ModeBroad, false},
		{"broad", ModeBroad, false},
		{"2", ModeTargeted, false},
		{" Targeted ", ModeTargeted, false},
		{"3", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownMode, "ParseMode(%q)", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestLoadScanConfig(t *testing.T) {
	path := writeDoc(t, `
mode: targeted
paths:
  scan:
    - /etc
    - /opt/app
  include: ["*.conf", "*.yaml"]
  exclude: ["*/tmp/*"]
archive:
  patterns: ["*.conf"]
  max_file_size: 1MiB
performance:
  hash_chunk_size: 4KiB
  workers: 3
ignore_file: .sysprintignore
`)

	cfg, err := LoadScanConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ModeTargeted, cfg.Mode)
	assert.Equal(t, []string{"/etc", "/opt/app"}, cfg.Paths.Scan)
	assert.Equal(t, []string{"*.conf", "*.yaml"}, cfg.Paths.Include)
	assert.Equal(t, []string{"*/tmp/*"}, cfg.Paths.Exclude)
	assert.Equal(t, []string{"*.conf"}, cfg.Archive.Patterns)
	assert.Equal(t, types.ByteSize(types.MiB), cfg.Archive.MaxFileSize)
	assert.Equal(t, types.ByteSize(4*types.KiB), cfg.Performance.HashChunkSize)
	assert.Equal(t, DefaultHashAlgorithm, cfg.Performance.HashAlgorithm)
	assert.Equal(t, 3, cfg.Performance.Workers)
	assert.Equal(t, ".sysprintignore", cfg.IgnoreFile)
}

func TestLoadScanConfig_Defaults(t *testing.T) {
	cfg, err := LoadScanConfig(writeDoc(t, "paths:\n  scan: [/srv]\n"))
	require.NoError(t, err)

	assert.Equal(t, ModeBroad, cfg.Mode)
	assert.Equal(t, DefaultSecurityExclusions, cfg.Paths.Exclude)
	assert.Equal(t, DefaultArchivePatterns, cfg.Archive.Patterns)
	assert.Equal(t, types.ByteSize(DefaultMaxFileSize), cfg.Archive.MaxFileSize)
	assert.Equal(t, types.ByteSize(DefaultHashChunkSize), cfg.Performance.HashChunkSize)
}

func TestLoadScanConfig_NumericMode(t *testing.T) {
	cfg, err := LoadScanConfig(writeDoc(t, "mode: 2\npaths:\n  scan: [/srv]\n"))
	require.NoError(t, err)
	assert.Equal(t, ModeTargeted, cfg.Mode)
}

func TestLoadScanConfig_Errors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"no roots", "mode: broad\n", "paths.scan"},
		{"unknown mode", "mode: 7\npaths:\n  scan: [/srv]\n", "mode"},
		{"bad include", "paths:\n  scan: [/srv]\n  include: ['[abc']\n", "paths.include"},
		{"bad archive exclude", "paths:\n  scan: [/srv]\narchive:\n  exclude: ['[z-']\n", "archive.exclude"},
		{"zero chunk", "paths:\n  scan: [/srv]\nperformance:\n  hash_chunk_size: 0\n", "performance.hash_chunk_size"},
		{"negative workers", "paths:\n  scan: [/srv]\nperformance:\n  workers: -1\n", "performance.workers"},
		{"unknown algorithm", "paths:\n  scan: [/srv]\nperformance:\n  hash_algorithm: md5\n", "performance.hash_algorithm"},
		{"targeted without patterns", "mode: targeted\npaths:\n  scan: [/srv]\narchive:\n  patterns: []\n", "archive.patterns"},
		{"misspelled key", "paths:\n  scan: [/srv]\n  exlude: ['*.secret']\n", "config"},
		{"unknown section", "paths:\n  scan: [/srv]\nlimits:\n  max: 1\n", "config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScanConfig(writeDoc(t, tt.doc))
			require.Error(t, err)
			var ce *types.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestLoadScanConfig_UnknownKeys(t *testing.T) {
	_, err := LoadScanConfig(writeDoc(t, `
paths:
  scan: [/srv]
  exlude: ["*.secret"]
archive:
  max_filesize: 10
`))
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err), "err = %v", err)
	assert.Contains(t, err.Error(), "exlude")
	assert.Contains(t, err.Error(), "max_filesize")
}

func TestLoadScanConfig_BadSize(t *testing.T) {
	_, err := LoadScanConfig(writeDoc(t, "paths:\n  scan: [/srv]\narchive:\n  max_file_size: huge\n"))
	assert.True(t, types.IsConfigError(err), "err = %v", err)
}

func TestLoadScanConfig_MissingFile(t *testing.T) {
	_, err := LoadScanConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, types.IsConfigError(err))
}

func TestWriteScanConfigRoundTrip(t *testing.T) {
	cfg := DefaultScanConfig()
	cfg.Mode = ModeTargeted
	cfg.Paths.Scan = []string{"/etc/app"}
	cfg.Paths.Include = []string{"*.conf", "Makefile"}
	cfg.Archive.Patterns = []string{"*.conf", "Makefile"}
	cfg.Performance.Workers = 2

	path := filepath.Join(t.TempDir(), "out", "targeted.yaml")
	require.NoError(t, WriteScanConfig(path, &cfg))

	got, err := LoadScanConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, *got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWriteScanConfig_Invalid(t *testing.T) {
	cfg := DefaultScanConfig()
	cfg.Paths.Scan = nil
	err := WriteScanConfig(filepath.Join(t.TempDir(), "x.yaml"), &cfg)
	assert.True(t, types.IsConfigError(err))
}
