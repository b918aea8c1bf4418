package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysprint/pkg/client"
	"github.com/jamesainslie/sysprint/pkg/daemon/lifecycle"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the sysprintd daemon",
	Long: `Manage the sysprintd daemon, which stores uploaded project archives and
answers comparisons over a local socket.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sysprintd daemon",
	Long:  `Start the sysprintd daemon in the background.`,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the sysprintd daemon",
	Long:  `Stop the sysprintd daemon gracefully.`,
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the sysprintd daemon",
	Long:  `Stop and start the sysprintd daemon.`,
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show the current status of the sysprintd daemon.`,
	RunE:  runDaemonStatus,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

// currentDaemonPaths returns the daemon paths from the settings file.
func currentDaemonPaths() (client.DaemonPaths, error) {
	s, err := loadSettings()
	if err != nil {
		return client.DaemonPaths{}, err
	}
	return daemonPaths(s), nil
}

func runDaemonStart(_ *cobra.Command, _ []string) error {
	paths, err := currentDaemonPaths()
	if err != nil {
		return err
	}

	printVerbose("starting daemon (socket %s, pid %s)...", paths.Socket, paths.PID)
	if err := client.StartDaemon(paths); err != nil {
		printVerbose("start failed: %v", err)
		if st, serr := lifecycle.ReadStatus(lifecycle.StatusPath(paths.Socket)); serr == nil && st.Error != "" {
			return fmt.Errorf("%w: %s", err, st.Error)
		}
		return err
	}
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	paths, err := currentDaemonPaths()
	if err != nil {
		return err
	}

	if !client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon is not running")
		return nil
	}

	printVerbose("stopping daemon...")
	if err := client.StopDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(_ *cobra.Command, _ []string) error {
	paths, err := currentDaemonPaths()
	if err != nil {
		return err
	}

	if err := client.RestartDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon restarted")
	return nil
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	paths, err := currentDaemonPaths()
	if err != nil {
		return err
	}

	if !client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon status: not running")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	daemonClient, err := client.ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		printInfo("Daemon status: running (but not responding)")
		return nil
	}
	defer daemonClient.Close()

	status, err := daemonClient.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get daemon status: %w", err)
	}

	printInfo("Daemon status: running")
	printInfo("  PID:         %d", status.PID)
	printInfo("  Version:     %s", status.Version)
	printInfo("  Uptime:      %s", formatDuration(status.Uptime()))
	printInfo("  Projects:    %d", status.Projects)
	printInfo("  Subscribers: %d", status.Subscribers)
	printInfo("  Socket:      %s", paths.Socket)
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
