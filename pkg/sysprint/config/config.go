package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    types.ByteSize `mapstructure:"max_size"`
	MaxAge     int            `mapstructure:"max_age"`
	MaxBackups int            `mapstructure:"max_backups"`
	Daily      bool           `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// DaemonConfig configures sysprintd and how the CLI reaches it.
type DaemonConfig struct {
	AutoStart  bool   `mapstructure:"auto_start"`
	BinaryPath string `mapstructure:"binary_path"` // Path to sysprintd (auto-discovered if empty)
	SocketPath string `mapstructure:"socket_path"`
	PIDPath    string `mapstructure:"pid_path"`
}

// RepositoryConfig configures project storage in sysprintd.
type RepositoryConfig struct {
	// URL is the afs storage location for archives, e.g. file:///var/lib/sysprint.
	URL             string         `mapstructure:"url"`
	MaxUploadSize   types.ByteSize `mapstructure:"max_upload_size"`
	Retention       time.Duration  `mapstructure:"retention"`
	ReclaimInterval time.Duration  `mapstructure:"reclaim_interval"`
	// InboxDir is watched for dropped archives. Empty disables auto-import.
	InboxDir string `mapstructure:"inbox_dir"`
}

// DefaultsConfig holds settings applied to configurations that sysprint
// generates rather than reads.
type DefaultsConfig struct {
	Exclude       []string       `mapstructure:"exclude"`
	MaxFileSize   types.ByteSize `mapstructure:"max_file_size"`
	HashChunkSize types.ByteSize `mapstructure:"hash_chunk_size"`
	HashAlgorithm string         `mapstructure:"hash_algorithm"`
	Workers       int            `mapstructure:"workers"`
}

// Settings represents the application configuration.
type Settings struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Daemon     DaemonConfig     `mapstructure:"daemon"`
	Repository RepositoryConfig `mapstructure:"repository"`
	Defaults   DefaultsConfig   `mapstructure:"defaults"`
}

// ScanDefaults returns the base ScanConfig used when synthesizing a
// follow-up configuration.
func (s *Settings) ScanDefaults() ScanConfig {
	cfg := DefaultScanConfig()
	cfg.Paths.Exclude = append([]string(nil), s.Defaults.Exclude...)
	if s.Defaults.MaxFileSize > 0 {
		cfg.Archive.MaxFileSize = s.Defaults.MaxFileSize
	}
	if s.Defaults.HashChunkSize > 0 {
		cfg.Performance.HashChunkSize = s.Defaults.HashChunkSize
	}
	if s.Defaults.HashAlgorithm != "" {
		cfg.Performance.HashAlgorithm = s.Defaults.HashAlgorithm
	}
	cfg.Performance.Workers = s.Defaults.Workers
	return cfg
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/sysprint/config.yaml
//   - $HOME/.config/sysprint/config.yaml
//
// Environment variables are prefixed with SYSPRINT_
// (e.g. SYSPRINT_REPOSITORY_MAX_UPLOAD_SIZE).
func Load() (*Settings, error) {
	return LoadFile("")
}

// LoadFile is like Load but reads the given file instead of searching the
// default locations. An empty path searches.
func LoadFile(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "sysprint"))
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(homeDir, ".config", "sysprint"))
	}

	v.SetEnvPrefix("SYSPRINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Settings
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MiB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"daemon":     "info",
		"repository": "info",
		"watcher":    "warn",
		"scanner":    "info",
		"recorder":   "info",
	})

	v.SetDefault("daemon.auto_start", true)
	v.SetDefault("daemon.binary_path", "")
	v.SetDefault("daemon.socket_path", "") // Empty means use default XDG path
	v.SetDefault("daemon.pid_path", "")    // Empty means use default XDG path

	v.SetDefault("repository.url", "")
	v.SetDefault("repository.max_upload_size", int64(DefaultMaxUploadSize))
	v.SetDefault("repository.retention", DefaultRetention.String())
	v.SetDefault("repository.reclaim_interval", DefaultReclaimInterval.String())
	v.SetDefault("repository.inbox_dir", "")

	v.SetDefault("defaults.exclude", DefaultSecurityExclusions)
	v.SetDefault("defaults.max_file_size", int64(DefaultMaxFileSize))
	v.SetDefault("defaults.hash_chunk_size", int64(DefaultHashChunkSize))
	v.SetDefault("defaults.hash_algorithm", DefaultHashAlgorithm)
	v.SetDefault("defaults.workers", 0)
}

func (s *Settings) expand() error {
	for _, p := range []*string{&s.Logging.Path, &s.Daemon.SocketPath, &s.Daemon.PIDPath, &s.Daemon.BinaryPath, &s.Repository.InboxDir} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	if s.Repository.URL == "" {
		s.Repository.URL = DefaultRepositoryURL()
	}
	return nil
}

// Validate checks the settings sysprintd depends on.
func (s *Settings) Validate() error {
	if s.Repository.MaxUploadSize <= 0 {
		return types.NewConfigError("repository.max_upload_size", s.Repository.MaxUploadSize.String(), "must be positive")
	}
	if s.Repository.Retention < 0 {
		return types.NewConfigError("repository.retention", s.Repository.Retention.String(), "must not be negative")
	}
	if s.Repository.Retention > 0 && s.Repository.ReclaimInterval <= 0 {
		return types.NewConfigError("repository.reclaim_interval", s.Repository.ReclaimInterval.String(),
			"must be positive when retention is set")
	}
	if s.Defaults.Workers < 0 {
		return types.NewConfigError("defaults.workers", fmt.Sprint(s.Defaults.Workers), "must not be negative")
	}
	return nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "sysprint"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "sysprint"), nil
}

// ConfigPath returns the default settings file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a default settings file if none exists and returns
// its path. An existing file is left untouched.
func WriteDefault() (string, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	var exclude strings.Builder
	for _, e := range DefaultSecurityExclusions {
		fmt.Fprintf(&exclude, "    - %q\n", e)
	}

	content := fmt.Sprintf(`# sysprint configuration

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/sysprint/sysprint.log)
  path: ""
  rotation:
    max_size: 10MiB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    daemon: info
    repository: info
    watcher: warn
    scanner: info
    recorder: info

# Daemon configuration
daemon:
  # Start sysprintd automatically for project commands
  auto_start: true
  # Unix socket path (empty means use default: $XDG_DATA_HOME/sysprint/sysprint.sock)
  socket_path: ""
  # PID file path (empty means use default: $XDG_DATA_HOME/sysprint/sysprint.pid)
  pid_path: ""

# Project repository used by sysprintd
repository:
  # Storage URL (empty means file://$XDG_DATA_HOME/sysprint/projects)
  url: ""
  max_upload_size: %s
  # Idle projects are reclaimed after this long (0 disables reclamation)
  retention: %s
  reclaim_interval: %s
  # Archives dropped here are imported automatically (empty disables)
  inbox_dir: ""

# Defaults for generated scan configurations
defaults:
  exclude:
%s  max_file_size: %s
  hash_chunk_size: %s
  hash_algorithm: %s
  workers: 0
`, compactSize(DefaultMaxUploadSize), DefaultRetention, DefaultReclaimInterval,
		exclude.String(), compactSize(DefaultMaxFileSize), compactSize(DefaultHashChunkSize), DefaultHashAlgorithm)

	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

// compactSize renders whole-unit sizes such as "100MiB".
func compactSize(n int64) string {
	switch {
	case n%types.GiB == 0:
		return fmt.Sprintf("%dGiB", n/types.GiB)
	case n%types.MiB == 0:
		return fmt.Sprintf("%dMiB", n/types.MiB)
	case n%types.KiB == 0:
		return fmt.Sprintf("%dKiB", n/types.KiB)
	default:
		return fmt.Sprint(n)
	}
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/sysprint/ for the catalog, socket, pid file
// and stored archives.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "sysprint")
}

// StateDir returns $XDG_STATE_HOME/sysprint/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "sysprint")
}

// DefaultSocketPath returns the default Unix socket path.
func DefaultSocketPath() string {
	return filepath.Join(DataDir(), "sysprint.sock")
}

// DefaultPIDPath returns the default PID file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "sysprint.pid")
}

// DefaultDBPath returns the default catalog database path.
func DefaultDBPath() string {
	return filepath.Join(DataDir(), "catalog.db")
}

// DefaultRepositoryURL returns the default archive storage location.
func DefaultRepositoryURL() string {
	return "file://" + filepath.ToSlash(filepath.Join(DataDir(), "projects"))
}

// DefaultBinaryPath returns the first sysprintd found in GOBIN, GOPATH/bin
// or ~/go/bin, or "" when there is none.
func DefaultBinaryPath() string {
	var dirs []string
	if gobin := os.Getenv("GOBIN"); gobin != "" {
		dirs = append(dirs, gobin)
	}
	if gopath := os.Getenv("GOPATH"); gopath != "" {
		dirs = append(dirs, filepath.Join(gopath, "bin"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "go", "bin"))
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, "sysprintd")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}
