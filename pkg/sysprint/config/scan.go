package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/sysprint/pkg/sysprint/hasher"
	"github.com/jamesainslie/sysprint/pkg/sysprint/matcher"
	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

// Mode selects how much a scan records.
type Mode int

const (
	// ModeBroad digests every included file and archives nothing.
	ModeBroad Mode = 1

	// ModeTargeted additionally archives files chosen by the archive rules.
	ModeTargeted Mode = 2
)

// ErrUnknownMode is returned when a mode string is not recognized.
var ErrUnknownMode = errors.New("unknown mode")

// ParseMode accepts "1", "2", "broad" or "targeted".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "broad":
		return ModeBroad, nil
	case "2", "targeted":
		return ModeTargeted, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeBroad:
		return "broad"
	case ModeTargeted:
		return "targeted"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeBroad || m == ModeTargeted
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// PathsConfig selects what is walked.
type PathsConfig struct {
	Scan    []string `mapstructure:"scan" yaml:"scan" json:"scan"`
	Include []string `mapstructure:"include" yaml:"include,omitempty" json:"include,omitempty"`
	Exclude []string `mapstructure:"exclude" yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// ArchiveConfig selects which file contents are preserved in targeted mode.
type ArchiveConfig struct {
	Patterns    []string       `mapstructure:"patterns" yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Exclude     []string       `mapstructure:"exclude" yaml:"exclude,omitempty" json:"exclude,omitempty"`
	MaxFileSize types.ByteSize `mapstructure:"max_file_size" yaml:"max_file_size" json:"max_file_size"`
}

// PerformanceConfig tunes hashing.
type PerformanceConfig struct {
	HashChunkSize types.ByteSize `mapstructure:"hash_chunk_size" yaml:"hash_chunk_size" json:"hash_chunk_size"`
	HashAlgorithm string         `mapstructure:"hash_algorithm" yaml:"hash_algorithm" json:"hash_algorithm"`
	// Workers is the hashing pool size. Zero sizes it from the host.
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// ScanConfig is a validated scan document, as passed to `sysprint record -c`
// and as written by `sysprint generate-config`.
type ScanConfig struct {
	Mode        Mode              `mapstructure:"mode" yaml:"mode" json:"mode,omitempty"`
	Paths       PathsConfig       `mapstructure:"paths" yaml:"paths" json:"paths"`
	Archive     ArchiveConfig     `mapstructure:"archive" yaml:"archive" json:"archive"`
	Performance PerformanceConfig `mapstructure:"performance" yaml:"performance" json:"performance"`
	// IgnoreFile names a gitignore-syntax file read from the top of each root.
	IgnoreFile string `mapstructure:"ignore_file" yaml:"ignore_file,omitempty" json:"ignore_file,omitempty"`
}

// DefaultScanConfig returns a broad scan of "/" with the default exclusions.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Mode: ModeBroad,
		Paths: PathsConfig{
			Scan:    []string{"/"},
			Exclude: append([]string(nil), DefaultSecurityExclusions...),
		},
		Archive: ArchiveConfig{
			Patterns:    append([]string(nil), DefaultArchivePatterns...),
			MaxFileSize: types.ByteSize(DefaultMaxFileSize),
		},
		Performance: PerformanceConfig{
			HashChunkSize: types.ByteSize(DefaultHashChunkSize),
			HashAlgorithm: DefaultHashAlgorithm,
		},
	}
}

// DecodeHook converts sizes, modes and durations while unmarshaling.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// LoadScanConfig reads, defaults and validates the scan document at path.
// Unknown keys are an error. Any failure is a *types.ConfigError.
func LoadScanConfig(path string) (*ScanConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &types.ConfigError{Field: "config", Value: path, Err: err}
	}

	v := viper.New()
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "json" && ext != "toml" {
		v.SetConfigType("yaml")
	}

	def := DefaultScanConfig()
	v.SetDefault("mode", def.Mode.String())
	v.SetDefault("paths.exclude", def.Paths.Exclude)
	v.SetDefault("archive.patterns", def.Archive.Patterns)
	v.SetDefault("archive.max_file_size", int64(def.Archive.MaxFileSize))
	v.SetDefault("performance.hash_chunk_size", int64(def.Performance.HashChunkSize))
	v.SetDefault("performance.hash_algorithm", def.Performance.HashAlgorithm)
	v.SetDefault("performance.workers", 0)

	if err := v.ReadInConfig(); err != nil {
		return nil, &types.ConfigError{Field: "config", Value: path, Err: err}
	}

	var cfg ScanConfig
	if err := v.UnmarshalExact(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, &types.ConfigError{Field: "config", Value: path, Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field and returns the first problem found as a
// *types.ConfigError.
func (c *ScanConfig) Validate() error {
	if !c.Mode.Valid() {
		return types.NewConfigError("mode", strconv.Itoa(int(c.Mode)), "must be 1 (broad) or 2 (targeted)")
	}

	if len(c.Paths.Scan) == 0 {
		return types.NewConfigError("paths.scan", "", "at least one scan root is required")
	}
	for _, root := range c.Paths.Scan {
		if strings.TrimSpace(root) == "" {
			return types.NewConfigError("paths.scan", root, "empty scan root")
		}
	}

	patternFields := []struct {
		field    string
		patterns []string
	}{
		{"paths.include", c.Paths.Include},
		{"paths.exclude", c.Paths.Exclude},
		{"archive.patterns", c.Archive.Patterns},
		{"archive.exclude", c.Archive.Exclude},
	}
	for _, pf := range patternFields {
		for _, p := range pf.patterns {
			if err := matcher.Validate(p); err != nil {
				return &types.ConfigError{Field: pf.field, Value: p, Err: err}
			}
		}
	}

	if c.Mode == ModeTargeted && len(c.Archive.Patterns) == 0 {
		return types.NewConfigError("archive.patterns", "", "targeted mode requires at least one archive pattern")
	}
	if c.Archive.MaxFileSize < 0 {
		return types.NewConfigError("archive.max_file_size", c.Archive.MaxFileSize.String(), "must not be negative")
	}

	if c.Performance.HashChunkSize <= 0 {
		return types.NewConfigError("performance.hash_chunk_size",
			strconv.FormatInt(int64(c.Performance.HashChunkSize), 10), "must be positive")
	}
	if c.Performance.HashAlgorithm != "" && !hasher.Supported(c.Performance.HashAlgorithm) {
		return types.NewConfigError("performance.hash_algorithm", c.Performance.HashAlgorithm,
			"supported algorithms are %s", strings.Join(hasher.Algorithms(), ", "))
	}
	if c.Performance.Workers < 0 {
		return types.NewConfigError("performance.workers", strconv.Itoa(c.Performance.Workers), "must not be negative")
	}

	if strings.ContainsRune(c.IgnoreFile, filepath.Separator) {
		return types.NewConfigError("ignore_file", c.IgnoreFile, "must be a file name, not a path")
	}

	return nil
}

// WriteScanConfig writes cfg as YAML to path, replacing any existing file
// atomically.
func WriteScanConfig(path string, cfg *ScanConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".sysprint-config-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := fmt.Fprintf(tmp, "# sysprint scan configuration (%s mode)\n", cfg.Mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}

	enc := yaml.NewEncoder(tmp)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting config mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing config: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}
