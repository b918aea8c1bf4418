package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	sysprintv1 "github.com/jamesainslie/sysprint/pkg/api/sysprint/v1"
)

const rpcTimeout = 30 * time.Second

var (
	uploadID     string
	exportFormat string
	exportOutput string
	getJSON      bool
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"projects"},
	Short:   "Manage projects stored by the sysprintd daemon",
	Long: `Upload recorded archives to sysprintd and compare them there.

The daemon keeps a catalog of uploaded projects and caches comparisons, so
repeated compares of the same pair are answered without re-reading the
archives.`,
}

var projectUploadCmd = &cobra.Command{
	Use:   "upload <archive>",
	Short: "Upload an archive as a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectUpload,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored projects",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

var projectGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one stored project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectGet,
}

var projectCompareCmd = &cobra.Command{
	Use:   "compare <source> <target>",
	Short: "Compare two stored projects",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectCompare,
}

var projectFilediffCmd = &cobra.Command{
	Use:   "filediff <source> <target> <path>",
	Short: "Show the content diff of one file in two stored projects",
	Args:  cobra.ExactArgs(3),
	RunE:  runProjectFilediff,
}

var projectExportCmd = &cobra.Command{
	Use:   "export <source> <target>",
	Short: "Export a comparison as json or csv",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectExport,
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectDelete,
}

var projectWatchCmd = &cobra.Command{
	Use:   "watch [id...]",
	Short: "Stream project events",
	Long:  `Print upload, delete and expiry events until interrupted. With no ids, events for every project are shown.`,
	RunE:  runProjectWatch,
}

func init() {
	projectUploadCmd.Flags().StringVar(&uploadID, "id", "", "project id (default: generated)")
	projectGetCmd.Flags().BoolVar(&getJSON, "json", false, "print the project as JSON")
	addFormatFlags(projectCompareCmd)
	addTextdiffFlags(projectFilediffCmd)
	projectExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "export format: json or csv")
	projectExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")

	projectCmd.AddCommand(projectUploadCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectGetCmd)
	projectCmd.AddCommand(projectCompareCmd)
	projectCmd.AddCommand(projectFilediffCmd)
	projectCmd.AddCommand(projectExportCmd)
	projectCmd.AddCommand(projectDeleteCmd)
	projectCmd.AddCommand(projectWatchCmd)
	rootCmd.AddCommand(projectCmd)
}

func runProjectUpload(_ *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	p, err := c.Upload(ctx, args[0], uploadID)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	printInfo("Uploaded %s as %s (%s, %d files)", args[0], p.ID, humanize.IBytes(uint64(p.Size)), p.Summary.TotalFiles)
	return nil
}

func runProjectList(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	projects, err := c.List(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		printInfo("No projects stored")
		return nil
	}
	fmt.Println(projectTable(projects))
	return nil
}

// projectTable renders projects as a bordered table.
func projectTable(projects []*sysprintv1.Project) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))).
		Headers("ID", "HOST", "MODE", "FILES", "SIZE", "RECORDED", "LAST USED")
	for _, p := range projects {
		t.Row(
			p.ID,
			p.Host,
			p.Mode,
			humanize.Comma(int64(p.Summary.TotalFiles)),
			humanize.IBytes(uint64(p.Size)),
			p.Created.Local().Format("2006-01-02 15:04"),
			humanize.Time(p.LastAccess),
		)
	}
	return t.String()
}

func runProjectGet(_ *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	p, err := c.Get(ctx, args[0])
	if err != nil {
		return err
	}

	if getJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	fmt.Printf("ID:        %s\n", p.ID)
	fmt.Printf("Name:      %s\n", p.Name)
	fmt.Printf("Host:      %s (%s)\n", p.Host, p.Platform)
	fmt.Printf("Recorded:  %s\n", p.Created.Local().Format(time.RFC3339))
	fmt.Printf("Mode:      %s\n", p.Mode)
	fmt.Printf("Roots:     %v\n", p.Roots)
	fmt.Printf("Hash:      %s\n", p.HashAlgorithm)
	fmt.Printf("Size:      %s\n", humanize.IBytes(uint64(p.Size)))
	fmt.Printf("Files:     %s (%s archived)\n", humanize.Comma(int64(p.Summary.TotalFiles)), humanize.Comma(int64(p.Summary.ArchivedFiles)))
	fmt.Printf("Stored:    %s\n", humanize.Time(p.StoredAt))
	fmt.Printf("Last used: %s\n", humanize.Time(p.LastAccess))
	return nil
}

func runProjectCompare(_ *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.Compare(ctx, args[0], args[1], diffHide)
	if err != nil {
		return err
	}
	return writeResult(os.Stdout, res)
}

func runProjectFilediff(_ *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	fd, err := c.FileDiff(ctx, args[0], args[1], args[2], textdiffOptions())
	if err != nil {
		return err
	}
	writeFileDiff(os.Stdout, fd)
	return nil
}

func runProjectExport(_ *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	data, err := c.Export(ctx, args[0], args[1], exportFormat)
	if err != nil {
		return err
	}

	if exportOutput == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	printInfo("Exported %s..%s to %s", args[0], args[1], exportOutput)
	return nil
}

func runProjectDelete(_ *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Delete(ctx, args[0]); err != nil {
		return err
	}
	printInfo("Deleted %s", args[0])
	return nil
}

func runProjectWatch(_ *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	events, err := c.WatchProjects(ctx, args...)
	if err != nil {
		return err
	}

	printVerbose("watching %v", args)
	for ev := range events {
		fmt.Printf("%s  %-8s  %s\n", ev.Time.Local().Format("15:04:05"), ev.Type, ev.ProjectID)
	}
	return nil
}
