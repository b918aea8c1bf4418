package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter formats the comparison with colors and boxes using
// lipgloss, for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	w.WriteString(f.formatTable(r))

	w.WriteString(f.formatFooter(r))

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Warnings))
	}

	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	lines := []string{
		f.formatSide("Before:", r.Source),
		f.formatSide("After: ", r.Target),
	}
	if !r.ComparedAt.IsZero() {
		lines = append(lines, LabelStyle.Render("Compared:")+" "+
			MutedStyle.Render(r.ComparedAt.Local().Format(time.DateTime)))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatSide(label string, s Side) string {
	parts := []string{LabelStyle.Render(label), ValueStyle.Render(s.Name)}
	if s.Host != "" {
		parts = append(parts, MutedStyle.Render("on "+s.Host))
	}
	if !s.Created.IsZero() {
		parts = append(parts, MutedStyle.Render(humanize.Time(s.Created)))
	}
	return strings.Join(parts, " ")
}

func (f *PrettyFormatter) formatTable(r *Result) string {
	entries := r.Entries()
	if len(entries) == 0 {
		return MutedStyle.Render("  No differences found") + "\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s%s%s\n",
		TableHeaderStyle.Render("  "), TableHeaderStyle.Render("PATH"), TableHeaderStyle.Render("DETAIL")))

	width := 0
	for _, e := range entries {
		if len(e.Path) > width {
			width = len(e.Path)
		}
	}

	for _, e := range entries {
		style := ClassStyle(e.Class)
		sb.WriteString(fmt.Sprintf("  %s  %s  %s\n",
			style.Bold(true).Render(marker(e.Class)),
			PathStyle.Render(padRight(e.Path, width)),
			MutedStyle.Render(detail(e))))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	c := r.Diff.Counts
	parts := []string{
		SuccessStyle.Render(fmt.Sprintf("+%s added", humanize.Comma(int64(c.Added)))),
		ErrorStyle.Render(fmt.Sprintf("-%s removed", humanize.Comma(int64(c.Removed)))),
		WarningStyle.Render(fmt.Sprintf("~%s changed", humanize.Comma(int64(c.Changed)))),
		MutedStyle.Render(fmt.Sprintf("%s unchanged", humanize.Comma(int64(c.Unchanged)))),
	}
	if c.Hidden > 0 {
		parts = append(parts, MutedStyle.Render(fmt.Sprintf("%s hidden", humanize.Comma(int64(c.Hidden)))))
	}
	parts = append(parts, LabelStyle.Render(fmt.Sprintf("(%s -> %s paths)",
		humanize.Comma(int64(c.SourceTotal)), humanize.Comma(int64(c.TargetTotal)))))

	if !r.Diff.HasChanges() {
		parts = append([]string{SuccessStyle.Bold(true).Render("identical")}, parts...)
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder

	sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")

	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}

	return sb.String()
}

// padRight pads s with spaces on the right to the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
