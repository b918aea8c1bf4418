package output

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/jamesainslie/sysprint/pkg/sysprint/diff"
	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
)

// document is the export shape shared by the json and yaml formatters.
type document struct {
	Source     Side         `json:"source" yaml:"source"`
	Target     Side         `json:"target" yaml:"target"`
	ComparedAt time.Time    `json:"compared_at" yaml:"compared_at"`
	Statistics statistics   `json:"statistics" yaml:"statistics"`
	Changes    changesBlock `json:"changes" yaml:"changes"`
}

type statistics struct {
	TotalBefore int `json:"total_files_before" yaml:"total_files_before"`
	TotalAfter  int `json:"total_files_after" yaml:"total_files_after"`
	Added       int `json:"added" yaml:"added"`
	Removed     int `json:"removed" yaml:"removed"`
	Changed     int `json:"changed" yaml:"changed"`
	Unchanged   int `json:"unchanged" yaml:"unchanged"`
	Hidden      int `json:"hidden,omitempty" yaml:"hidden,omitempty"`
}

type changesBlock struct {
	Added     []docEntry `json:"added" yaml:"added"`
	Removed   []docEntry `json:"removed" yaml:"removed"`
	Changed   []docEntry `json:"changed" yaml:"changed"`
	Unchanged []docEntry `json:"unchanged,omitempty" yaml:"unchanged,omitempty"`
}

// docEntry is one compared path.
type docEntry struct {
	Path          string        `json:"path" yaml:"path"`
	Change        diff.Class    `json:"change" yaml:"change"`
	Kind          manifest.Kind `json:"kind" yaml:"kind"`
	SizeBefore    *int64        `json:"size_before,omitempty" yaml:"size_before,omitempty"`
	SizeAfter     *int64        `json:"size_after,omitempty" yaml:"size_after,omitempty"`
	HashBefore    string        `json:"hash_before,omitempty" yaml:"hash_before,omitempty"`
	HashAfter     string        `json:"hash_after,omitempty" yaml:"hash_after,omitempty"`
	MetadataDelta []string      `json:"metadata_delta,omitempty" yaml:"metadata_delta,omitempty"`
}

func newDocEntry(e diff.Entry) docEntry {
	de := docEntry{
		Path:          e.Path,
		Change:        e.Class,
		Kind:          e.Kind(),
		HashBefore:    hashField(e.Source),
		HashAfter:     hashField(e.Target),
		MetadataDelta: e.MetadataDelta,
	}
	if e.Source != nil && !e.Source.IsDir() {
		size := e.Source.Metadata.Size
		de.SizeBefore = &size
	}
	if e.Target != nil && !e.Target.IsDir() {
		size := e.Target.Metadata.Size
		de.SizeAfter = &size
	}
	return de
}

func docEntries(entries []diff.Entry) []docEntry {
	out := make([]docEntry, len(entries))
	for i, e := range entries {
		out[i] = newDocEntry(e)
	}
	return out
}

func buildDocument(r *Result) document {
	c := r.Diff.Counts
	doc := document{
		Source:     r.Source,
		Target:     r.Target,
		ComparedAt: r.ComparedAt,
		Statistics: statistics{
			TotalBefore: c.SourceTotal,
			TotalAfter:  c.TargetTotal,
			Added:       c.Added,
			Removed:     c.Removed,
			Changed:     c.Changed,
			Unchanged:   c.Unchanged,
			Hidden:      c.Hidden,
		},
		Changes: changesBlock{
			Added:   docEntries(r.Diff.Added),
			Removed: docEntries(r.Diff.Removed),
			Changed: docEntries(r.Diff.Changed),
		},
	}
	if r.ShowUnchanged {
		doc.Changes.Unchanged = docEntries(r.Diff.Unchanged)
	}
	return doc
}

// JSONFormatter formats the comparison as a single indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildDocument(r))
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)

// JSONLFormatter writes one compact JSON object per listed entry, suitable
// for streaming into jq.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, e := range r.Entries() {
		data, err := json.Marshal(newDocEntry(e))
		if err != nil {
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("jsonl", func() Formatter {
		return &JSONLFormatter{}
	})
}

// Ensure JSONLFormatter implements Formatter.
var _ Formatter = (*JSONLFormatter)(nil)
