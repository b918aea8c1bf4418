package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
)

var (
	settingsFile string
	rootCmd      = &cobra.Command{
		Use:   "sysprint",
		Short: "Fingerprint file trees and compare them",
		Long: `Sysprint records a file tree as a project archive and compares archives
taken before and after a change.

A broad recording digests every file under the scanned roots. Comparing two
broad recordings shows where a change landed; generate-config turns that
into a targeted configuration whose recordings also archive file content.

Examples:
  sysprint record before -c scan.yaml -m 1 -o out
  sysprint record after -c scan.yaml -m 1 -o out
  sysprint generate-config out/before.tar.gz out/after.tar.gz -o targeted.yaml
  sysprint diff out/before.tar.gz out/after.tar.gz
  sysprint project upload out/after.tar.gz
  sysprint daemon status`,
		SilenceUsage:      true,
		PersistentPreRunE: initializeLogging,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "settings file (default: ~/.config/sysprint/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var (
	settingsOnce sync.Once
	settings     *config.Settings
	settingsErr  error
)

// loadSettings loads the application settings once per process.
func loadSettings() (*config.Settings, error) {
	settingsOnce.Do(func() {
		settings, settingsErr = config.LoadFile(settingsFile)
	})
	return settings, settingsErr
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
