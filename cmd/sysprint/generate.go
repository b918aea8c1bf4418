package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysprint/pkg/sysprint/archive"
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/diff"
	"github.com/jamesainslie/sysprint/pkg/sysprint/logging"
	"github.com/jamesainslie/sysprint/pkg/sysprint/synth"
)

var (
	generateOutput  string
	generateExclude []string
)

var generateCmd = &cobra.Command{
	Use:   "generate-config <before> <after>",
	Short: "Derive a targeted scan configuration from two recordings",
	Long: `Compare two broad-mode archives and write a targeted (mode 2) scan
configuration covering only the places that changed.

Scan roots are the top-most parent directories of the changed paths. Include
and archive patterns are taken from the changed files' extensions. Excludes
and limits come from the settings file's defaults section plus --exclude.`,
	Args: cobra.ExactArgs(2),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "configuration file to write (required)")
	generateCmd.Flags().StringSliceVar(&generateExclude, "exclude", nil, "additional exclude patterns")
	_ = generateCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(_ *cobra.Command, args []string) error {
	log := logging.Get("cli")

	before, err := archive.OpenFile(args[0])
	if err != nil {
		return err
	}
	after, err := archive.OpenFile(args[1])
	if err != nil {
		return err
	}

	for _, a := range []*archive.Archive{before, after} {
		if m := a.Manifest.Header.Config.Mode; m != config.ModeBroad {
			printError("%s was recorded in %s mode; generated roots may miss changes", a.Source(), m)
		}
	}

	result := diff.Compare(before.Manifest, after.Manifest)
	if !result.HasChanges() {
		printInfo("No changes between %s and %s; the configuration falls back to default patterns", args[0], args[1])
	}

	defaults := config.DefaultScanConfig()
	if s, err := loadSettings(); err == nil {
		defaults = s.ScanDefaults()
	} else {
		log.Warn("using built-in defaults", "error", err)
	}
	defaults.Paths.Exclude = append(defaults.Paths.Exclude, generateExclude...)

	cfg := synth.Synthesize(result, defaults)
	if err := config.WriteScanConfig(generateOutput, &cfg); err != nil {
		return err
	}

	log.Info("generated config", "path", generateOutput, "roots", len(cfg.Paths.Scan), "patterns", len(cfg.Paths.Include))
	printInfo("Wrote %s", generateOutput)
	printInfo("  Changes:  %d added, %d removed, %d changed",
		result.Counts.Added, result.Counts.Removed, result.Counts.Changed)
	printInfo("  Roots:    %v", cfg.Paths.Scan)
	printInfo("  Patterns: %v", cfg.Archive.Patterns)
	return nil
}
