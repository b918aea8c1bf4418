package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// CSVHeader is the column row written by CSVFormatter.
var CSVHeader = []string{"Change Type", "File Path", "Size Before", "Size After", "Hash Before", "Hash After"}

// CSVFormatter formats the listed entries as RFC 4180 comma-separated
// values. Absent sides leave their size and hash columns empty.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(CSVHeader); err != nil {
		return err
	}

	for _, e := range r.Entries() {
		row := []string{
			ChangeLabel(e.Class),
			e.Path,
			sizeField(e.Source),
			sizeField(e.Target),
			hashField(e.Source),
			hashField(e.Target),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func init() {
	Register("csv", func() Formatter {
		return &CSVFormatter{}
	})
}

// Ensure CSVFormatter implements Formatter.
var _ Formatter = (*CSVFormatter)(nil)

// MarkdownFormatter formats the listed entries as a GitHub-flavored
// Markdown table.
type MarkdownFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *MarkdownFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString("| CHANGE | PATH | DETAIL |\n")
	w.WriteString("|--------|------|--------|\n")

	for _, e := range r.Entries() {
		fmt.Fprintf(w, "| %s | %s | %s |\n",
			ChangeLabel(e.Class), escapeMarkdownPipe(e.Path), escapeMarkdownPipe(detail(e)))
	}

	return nil
}

// escapeMarkdownPipe escapes pipe characters in a string for Markdown tables.
func escapeMarkdownPipe(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func init() {
	Register("markdown", func() Formatter {
		return &MarkdownFormatter{}
	})
}

// Ensure MarkdownFormatter implements Formatter.
var _ Formatter = (*MarkdownFormatter)(nil)
