// Command sysprintd is the sysprint comparison daemon. It stores uploaded
// project archives and serves comparisons over a Unix socket.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysprint/pkg/daemon"
	"github.com/jamesainslie/sysprint/pkg/daemon/lifecycle"
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/logging"
)

// Set by go build -ldflags.
var version = "dev"

var (
	settingsFile string
	socketPath   string
	pidPath      string
)

var rootCmd = &cobra.Command{
	Use:           "sysprintd",
	Short:         "sysprint comparison daemon",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&settingsFile, "settings", "", "settings file (default: ~/.config/sysprint/config.yaml)")
	rootCmd.Flags().StringVar(&socketPath, "socket", "", "Unix socket path (default from settings)")
	rootCmd.Flags().StringVar(&pidPath, "pid", "", "PID file path (default from settings)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sysprintd: %v\n", err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	settings, err := config.LoadFile(settingsFile)
	if err != nil {
		return err
	}
	resolvePaths(settings)

	if err := os.MkdirAll(config.DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if err := logging.Init(logging.Config{
		Level:      settings.Logging.Level,
		Path:       settings.Logging.Path,
		Components: settings.Logging.Components,
		Rotation: logging.RotationConfig{
			MaxSize:    settings.Logging.Rotation.MaxSize.Int64(),
			MaxAge:     settings.Logging.Rotation.MaxAge,
			MaxBackups: settings.Logging.Rotation.MaxBackups,
			Daily:      settings.Logging.Rotation.Daily,
		},
	}); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer logging.Close()
	log := logging.Get("daemon")

	statusPath := lifecycle.StatusPath(socketPath)
	fail := func(err error) error {
		log.Error("startup failed", "error", err)
		_ = lifecycle.WriteStatusError(statusPath, err)
		return err
	}

	if err := lifecycle.RecoverFromStaleDaemon(pidPath, socketPath, config.DataDir()); err != nil {
		if errors.Is(err, lifecycle.ErrDaemonAlreadyRunning) {
			return errors.New("sysprintd is already running")
		}
		return fail(err)
	}

	srv, err := daemon.NewServer(daemon.Config{
		SocketPath: socketPath,
		DataDir:    config.DataDir(),
		Repository: settings.Repository,
		Version:    version,
	})
	if err != nil {
		return fail(fmt.Errorf("creating server: %w", err))
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Warn("error during shutdown", "error", err)
		}
	}()

	if err := lifecycle.WritePIDFile(pidPath); err != nil {
		return fail(fmt.Errorf("writing PID file: %w", err))
	}
	defer func() {
		if err := lifecycle.RemovePIDFile(pidPath); err != nil {
			log.Warn("failed to remove PID file", "error", err)
		}
		_ = lifecycle.RemoveStatus(statusPath)
	}()

	if err := lifecycle.WriteStatusReady(statusPath, socketPath); err != nil {
		log.Warn("failed to write status file", "error", err)
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	log.Info("sysprintd started", "socket", socketPath, "pid", os.Getpid(), "version", version)

	select {
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
	case <-srv.Done():
		log.Info("shutting down", "reason", "shutdown requested")
	case err := <-served:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}
	return nil
}

// resolvePaths fills the socket and PID paths from the settings when the
// flags leave them empty.
func resolvePaths(s *config.Settings) {
	if socketPath == "" {
		socketPath = s.Daemon.SocketPath
	}
	if socketPath == "" {
		socketPath = config.DefaultSocketPath()
	}
	if pidPath == "" {
		pidPath = s.Daemon.PIDPath
	}
	if pidPath == "" {
		pidPath = config.DefaultPIDPath()
	}
}
