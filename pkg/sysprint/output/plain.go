package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// PlainFormatter formats the listed entries as an aligned table without
// colors, for scripting and piping.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := tw.Write([]byte("CHANGE\tKIND\tPATH\tDETAIL\n")); err != nil {
		return err
	}

	for _, e := range r.Entries() {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Class, e.Kind(), e.Path, detail(e)); err != nil {
			return err
		}
	}

	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
