package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysprint/pkg/client"
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/logging"
)

// initializeLogging is the root PersistentPreRunE hook. It creates the
// sysprint directories and starts file logging from the settings. Settings
// that fail to load leave logging at its defaults; commands that need them
// report the error.
func initializeLogging(_ *cobra.Command, _ []string) error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	for _, dir := range []string{configDir, config.DataDir(), config.StateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	cfg := logging.Config{Level: "info"}
	if s, err := loadSettings(); err == nil {
		cfg = loggingConfig(s.Logging)
	}
	if getVerbose() {
		cfg.ConsoleLevel = "debug"
	}
	return logging.Init(cfg)
}

// loggingConfig converts the settings section to a logging.Config.
func loggingConfig(c config.LoggingConfig) logging.Config {
	return logging.Config{
		Level:      c.Level,
		Path:       c.Path,
		Rotation:   rotationConfig(c.Rotation),
		Components: c.Components,
	}
}

// rotationConfig converts the settings rotation section. A zero size
// leaves the writer's default in place.
func rotationConfig(c config.RotationConfig) logging.RotationConfig {
	return logging.RotationConfig{
		MaxSize:    c.MaxSize.Int64(),
		MaxAge:     c.MaxAge,
		MaxBackups: c.MaxBackups,
		Daily:      c.Daily,
	}
}

// daemonPaths returns the daemon paths from the settings.
func daemonPaths(s *config.Settings) client.DaemonPaths {
	return client.PathsFromSettings(s, settingsFile)
}

// maybeStartDaemon starts sysprintd when auto_start is enabled and it is
// not already running.
func maybeStartDaemon(s *config.Settings) error {
	if !s.Daemon.AutoStart {
		return nil
	}
	paths := daemonPaths(s)
	if client.IsDaemonRunning(paths.PID) {
		return nil
	}
	printVerbose("starting daemon...")
	return client.EnsureDaemon(paths)
}

// connectDaemon connects to sysprintd, starting it first when allowed.
func connectDaemon(ctx context.Context) (*client.Client, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if err := maybeStartDaemon(s); err != nil {
		printVerbose("auto-start failed: %v", err)
	}

	paths := daemonPaths(s)
	c, err := client.ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return nil, fmt.Errorf("%w (start it with: sysprint daemon start)", err)
	}
	return c, nil
}
