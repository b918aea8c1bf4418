package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/sysprint/pkg/sysprint/archive"
	"github.com/jamesainslie/sysprint/pkg/sysprint/compare"
	"github.com/jamesainslie/sysprint/pkg/sysprint/diff"
	"github.com/jamesainslie/sysprint/pkg/sysprint/output"
	"github.com/jamesainslie/sysprint/pkg/sysprint/textdiff"
)

var (
	diffFormat        string
	diffTemplate      string
	diffHide          []string
	diffShowUnchanged bool

	filediffEncoding string
	filediffContext  int
)

var diffCmd = &cobra.Command{
	Use:   "diff <before> <after>",
	Short: "Compare two project archives",
	Long: `Compare the manifests of two project archives and list the paths that
were added, removed or changed.

Output formats: pretty (default), plain, csv, json, jsonl, yaml, markdown,
paths, null and template (with --template).`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

var showCmd = &cobra.Command{
	Use:   "show <archive>",
	Short: "Summarize a project archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var filediffCmd = &cobra.Command{
	Use:   "filediff <before> <after> <path>",
	Short: "Show the content diff of one archived file",
	Long: `Print a unified diff of the content archived for path in two project
archives. Content is only available for files archived by a targeted
recording; for anything else the reason is printed instead.`,
	Args: cobra.ExactArgs(3),
	RunE: runFilediff,
}

func init() {
	addFormatFlags(diffCmd)
	diffCmd.Flags().BoolVar(&diffShowUnchanged, "show-unchanged", false, "also list unchanged paths")

	addTextdiffFlags(filediffCmd)

	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(filediffCmd)
}

// addFormatFlags adds the result formatting flags shared by diff and
// project compare.
func addFormatFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&diffFormat, "format", "f", "pretty", "output format")
	cmd.Flags().StringVar(&diffTemplate, "template", "", "Go template for -f template")
	cmd.Flags().StringSliceVar(&diffHide, "hide", nil, "glob patterns of paths to leave out")
}

// addTextdiffFlags adds the content diff flags shared by filediff and
// project filediff.
func addTextdiffFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&filediffEncoding, "encoding", "", "content encoding: utf-8 or latin1 (default: detect)")
	cmd.Flags().IntVar(&filediffContext, "context", textdiff.DefaultContext, "unified context lines")
}

func textdiffOptions() textdiff.Options {
	return textdiff.Options{Encoding: filediffEncoding, Context: filediffContext}
}

func runDiff(_ *cobra.Command, args []string) error {
	before, err := archive.OpenFile(args[0])
	if err != nil {
		return err
	}
	after, err := archive.OpenFile(args[1])
	if err != nil {
		return err
	}

	result := diff.Compare(before.Manifest, after.Manifest)
	if len(diffHide) > 0 {
		if result, err = result.Hide(diffHide); err != nil {
			return err
		}
	}

	res := &output.Result{
		Source:        output.SideOf(args[0], before.Manifest),
		Target:        output.SideOf(args[1], after.Manifest),
		Diff:          result,
		ComparedAt:    time.Now(),
		ShowUnchanged: diffShowUnchanged,
	}
	res.Warnings = output.Warnings(res.Source, res.Target)

	return writeResult(os.Stdout, res)
}

// writeResult renders res with the selected formatter.
func writeResult(w io.Writer, res *output.Result) error {
	var formatter output.Formatter
	if diffFormat == "template" {
		if diffTemplate == "" {
			return errors.New("--template is required when using -f template")
		}
		formatter = output.NewTemplateFormatter(diffTemplate)
	} else {
		f, err := output.Get(diffFormat)
		if err != nil {
			return fmt.Errorf("unknown output format %q: available formats are %v", diffFormat, output.Available())
		}
		formatter = f
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, res); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func runShow(_ *cobra.Command, args []string) error {
	a, err := archive.OpenFile(args[0])
	if err != nil {
		return err
	}

	h := a.Manifest.Header
	s := a.Manifest.Summary()

	fmt.Printf("Archive:   %s\n", args[0])
	fmt.Printf("Host:      %s (%s)\n", h.Host, h.Platform)
	fmt.Printf("Recorded:  %s (%s)\n", h.Created.Local().Format(time.RFC3339), humanize.Time(h.Created))
	fmt.Printf("Mode:      %s\n", h.Config.Mode)
	fmt.Printf("Roots:     %v\n", h.Config.Paths.Scan)
	fmt.Printf("Hash:      %s\n", h.HashAlgorithm)
	fmt.Println()
	fmt.Printf("Directories: %s\n", humanize.Comma(int64(s.TotalDirectories)))
	fmt.Printf("Files:       %s (%s)\n", humanize.Comma(int64(s.TotalFiles)), humanize.IBytes(uint64(s.TotalBytes)))
	fmt.Printf("Symlinks:    %s\n", humanize.Comma(int64(s.Symlinks)))
	fmt.Printf("Archived:    %s\n", humanize.Comma(int64(s.ArchivedFiles)))
	fmt.Printf("Errors:      %s\n", humanize.Comma(int64(s.Errors)))

	if getVerbose() {
		for _, e := range a.Manifest.Errors() {
			fmt.Printf("  %s: %s\n", e.Path, e.Message)
		}
	}
	return nil
}

func runFilediff(_ *cobra.Command, args []string) error {
	before, err := archive.OpenFile(args[0])
	if err != nil {
		return err
	}
	after, err := archive.OpenFile(args[1])
	if err != nil {
		return err
	}

	fd, err := compare.Files(before, after, args[2], textdiffOptions())
	if err != nil {
		return err
	}
	writeFileDiff(os.Stdout, fd)
	return nil
}

// writeFileDiff prints the unified diff, or why there is none.
func writeFileDiff(w io.Writer, fd *compare.FileDiff) {
	if !fd.Diffable {
		fmt.Fprintf(w, "%s: content unavailable (%s)\n", fd.Path, fd.Reason)
		if b := fd.Binary; b != nil {
			fmt.Fprintf(w, "  %d of %d chunks shared, %.0f%% similar\n",
				b.SharedChunks, b.TargetChunks, b.Similarity*100)
		}
		return
	}
	if fd.Unified == "" {
		fmt.Fprintf(w, "%s: no content differences\n", fd.Path)
		return
	}
	fmt.Fprint(w, fd.Unified)
}
