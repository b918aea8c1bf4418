package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage settings",
	Long: `Manage sysprint settings: logging, the daemon, project storage and the
defaults used by generate-config.

Settings are loaded from:
  1. --settings <file> (if given)
  2. $XDG_CONFIG_HOME/sysprint/config.yaml
  3. ~/.config/sysprint/config.yaml

Environment variables override file settings using the SYSPRINT_ prefix:
  SYSPRINT_LOGGING_LEVEL=debug
  SYSPRINT_DAEMON_AUTO_START=true
  SYSPRINT_REPOSITORY_RETENTION=168h

Scan configurations passed to 'sysprint record -c' are separate files.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Long:  `Display the effective settings from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the settings file",
	Long: `Open the settings file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the settings file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default settings file",
	Long:  `Create a default settings file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show settings file path",
	Long:  `Display the path to the settings file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// settingsPath returns the settings file in use: --settings when given,
// otherwise the default location.
func settingsPath() (string, error) {
	if settingsFile != "" {
		return settingsFile, nil
	}
	return config.ConfigPath()
}

// settingsView is the YAML shape printed by config show.
type settingsView struct {
	Logging struct {
		Level      string            `yaml:"level"`
		Path       string            `yaml:"path"`
		Components map[string]string `yaml:"components,omitempty"`
		Rotation   struct {
			MaxSize    string `yaml:"max_size"`
			MaxAge     int    `yaml:"max_age"`
			MaxBackups int    `yaml:"max_backups"`
			Daily      bool   `yaml:"daily"`
		} `yaml:"rotation"`
	} `yaml:"logging"`
	Daemon struct {
		AutoStart  bool   `yaml:"auto_start"`
		BinaryPath string `yaml:"binary_path"`
		SocketPath string `yaml:"socket_path"`
		PIDPath    string `yaml:"pid_path"`
	} `yaml:"daemon"`
	Repository struct {
		URL             string `yaml:"url"`
		MaxUploadSize   string `yaml:"max_upload_size"`
		Retention       string `yaml:"retention"`
		ReclaimInterval string `yaml:"reclaim_interval"`
		InboxDir        string `yaml:"inbox_dir"`
	} `yaml:"repository"`
	Defaults struct {
		Exclude       []string `yaml:"exclude"`
		MaxFileSize   string   `yaml:"max_file_size"`
		HashChunkSize string   `yaml:"hash_chunk_size"`
		HashAlgorithm string   `yaml:"hash_algorithm"`
		Workers       int      `yaml:"workers"`
	} `yaml:"defaults"`
}

func newSettingsView(s *config.Settings) settingsView {
	var v settingsView
	v.Logging.Level = s.Logging.Level
	v.Logging.Path = s.Logging.Path
	v.Logging.Components = s.Logging.Components
	v.Logging.Rotation.MaxSize = s.Logging.Rotation.MaxSize.String()
	v.Logging.Rotation.MaxAge = s.Logging.Rotation.MaxAge
	v.Logging.Rotation.MaxBackups = s.Logging.Rotation.MaxBackups
	v.Logging.Rotation.Daily = s.Logging.Rotation.Daily

	v.Daemon.AutoStart = s.Daemon.AutoStart
	v.Daemon.BinaryPath = s.Daemon.BinaryPath
	v.Daemon.SocketPath = s.Daemon.SocketPath
	v.Daemon.PIDPath = s.Daemon.PIDPath

	v.Repository.URL = s.Repository.URL
	v.Repository.MaxUploadSize = s.Repository.MaxUploadSize.String()
	v.Repository.Retention = s.Repository.Retention.String()
	v.Repository.ReclaimInterval = s.Repository.ReclaimInterval.String()
	v.Repository.InboxDir = s.Repository.InboxDir

	v.Defaults.Exclude = s.Defaults.Exclude
	v.Defaults.MaxFileSize = s.Defaults.MaxFileSize.String()
	v.Defaults.HashChunkSize = s.Defaults.HashChunkSize.String()
	v.Defaults.HashAlgorithm = s.Defaults.HashAlgorithm
	v.Defaults.Workers = s.Defaults.Workers
	return v
}

// runConfigShow displays the current settings.
func runConfigShow(_ *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		printError("Failed to load settings: %v", err)
		return err
	}

	path, err := settingsPath()
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		fmt.Printf("Settings file: %s\n\n", path)
	} else {
		fmt.Println("Settings file: (using defaults, no file found)")
		fmt.Println()
	}

	out, err := yaml.Marshal(newSettingsView(s))
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	fmt.Print(string(out))

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	anyOverrides := false
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "SYSPRINT_") {
			fmt.Println(kv)
			anyOverrides = true
		}
	}
	if !anyOverrides {
		fmt.Println("(none)")
	}
	return nil
}

// runConfigEdit opens the settings file in an editor.
func runConfigEdit(_ *cobra.Command, _ []string) error {
	path := settingsFile
	if path == "" {
		var err error
		if path, err = config.WriteDefault(); err != nil {
			return fmt.Errorf("failed to create settings file: %w", err)
		}
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", path, editor)

	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

// runConfigInit creates a default settings file.
func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Settings file already exists: %s", configPath)
		printInfo("Use 'sysprint config edit' to modify it.")
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create settings file: %w", err)
	}

	printInfo("Created default settings file: %s", configPath)
	return nil
}

// runConfigPath shows the settings file path.
func runConfigPath(_ *cobra.Command, _ []string) error {
	path, err := settingsPath()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}

	fmt.Println(path)

	if _, err := os.Stat(path); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
