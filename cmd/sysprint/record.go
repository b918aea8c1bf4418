package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysprint/cmd/sysprint/tui"
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/logging"
	"github.com/jamesainslie/sysprint/pkg/sysprint/recorder"
	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

var (
	recordConfig        string
	recordMode          string
	recordOutput        string
	recordWorkers       int
	recordNoInteractive bool
)

var recordCmd = &cobra.Command{
	Use:   "record <project>",
	Short: "Record a file tree into a project archive",
	Long: `Scan the roots named in a scan configuration and write the fingerprint,
plus the content of archived files, to <output>/<project>.tar.gz.

Mode 1 (broad) digests every file; mode 2 (targeted) also archives the
content of files matching the configured archive patterns. The --mode flag
overrides the mode in the configuration file.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVarP(&recordConfig, "config", "c", "", "scan configuration file (required)")
	recordCmd.Flags().StringVarP(&recordMode, "mode", "m", "", "scan mode: 1 (broad) or 2 (targeted)")
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "output", "directory receiving the archive")
	recordCmd.Flags().IntVarP(&recordWorkers, "workers", "w", 0, "hashing workers (0 = auto)")
	recordCmd.Flags().BoolVarP(&recordNoInteractive, "no-interactive", "n", false, "disable the progress view")
	_ = recordCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(recordCmd)
}

func runRecord(_ *cobra.Command, args []string) error {
	project := args[0]
	if err := recorder.ValidateProject(project); err != nil {
		return err
	}

	cfg, err := config.LoadScanConfig(recordConfig)
	if err != nil {
		return err
	}

	var mode config.Mode
	if recordMode != "" {
		mode, err = config.ParseMode(recordMode)
		if err != nil {
			return err
		}
	}
	effective := cfg.Mode
	if mode != 0 {
		effective = mode
	}

	opts := recorder.Options{
		Project:   project,
		OutputDir: recordOutput,
		Config:    *cfg,
		Mode:      mode,
		Workers:   recordWorkers,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printVerbose("recording %s (%s mode) from %v", project, effective, cfg.Paths.Scan)

	var res *recorder.Result
	if interactive() {
		res, err = recordInteractive(ctx, opts, effective)
	} else {
		res, err = recordPlain(ctx, opts, effective)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			printInfo("Recording cancelled")
			return nil
		}
		return fmt.Errorf("record failed: %w", err)
	}

	printSummary(res)
	return nil
}

// interactive reports whether the progress view should run.
func interactive() bool {
	if recordNoInteractive || getQuiet() {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func recordInteractive(ctx context.Context, opts recorder.Options, mode config.Mode) (*recorder.Result, error) {
	// The progress view owns the terminal; keep console logging off it.
	if s, err := loadSettings(); err == nil {
		cfg := loggingConfig(s.Logging)
		cfg.TUIMode = true
		if err := logging.Init(cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize logging: %w", err)
		}
	}

	return tui.RunRecord(ctx, opts.Project, mode, opts.Config.Paths.Scan,
		func(ctx context.Context, onProgress func(types.ScanProgress)) (*recorder.Result, error) {
			opts.OnProgress = onProgress
			return recorder.Record(ctx, opts)
		})
}

func recordPlain(ctx context.Context, opts recorder.Options, mode config.Mode) (*recorder.Result, error) {
	printInfo("Recording %s (%s mode) to %s...", opts.Project, mode, recorder.ArchivePath(opts.OutputDir, opts.Project))
	return recorder.Record(ctx, opts)
}

func printSummary(res *recorder.Result) {
	s := res.Manifest.Summary()
	printInfo("Wrote %s (%s)", res.Path, humanize.IBytes(uint64(res.Size)))
	printInfo("  Directories: %s", humanize.Comma(int64(s.TotalDirectories)))
	printInfo("  Files:       %s (%s)", humanize.Comma(int64(s.TotalFiles)), humanize.IBytes(uint64(s.TotalBytes)))
	printInfo("  Archived:    %s", humanize.Comma(int64(s.ArchivedFiles)))
	if s.Errors > 0 {
		printInfo("  Errors:      %s (see the manifest's errors list)", humanize.Comma(int64(s.Errors)))
	}
	printInfo("  Elapsed:     %s", res.Elapsed.Round(time.Millisecond))
}
