// Package textdiff produces line edit scripts and unified patches for
// archived file content, and a chunk-level similarity summary for content
// that is not text.
package textdiff

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/encoding/charmap"

	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

// Supported encodings.
const (
	UTF8   = "utf-8"
	Latin1 = "latin1"
)

// DefaultContext is the number of context lines in unified output.
const DefaultContext = 3

// ErrUnknownEncoding is returned for an encoding name that is not supported.
var ErrUnknownEncoding = errors.New("unknown encoding")

// Op is the kind of a run in an edit script.
type Op string

const (
	Equal  Op = "equal"
	Insert Op = "insert"
	Delete Op = "delete"
)

// Run is a maximal sequence of lines sharing one operation. Lines have
// their line terminators removed. SourceLine and TargetLine are the
// zero-based positions where the run starts on each side.
type Run struct {
	Op         Op       `json:"op"`
	SourceLine int      `json:"source_line"`
	TargetLine int      `json:"target_line"`
	Lines      []string `json:"lines"`
}

// Script transforms the source text into the target text.
type Script []Run

// Stats counts the lines in each kind of run.
func (s Script) Stats() (equal, inserted, deleted int) {
	for _, r := range s {
		switch r.Op {
		case Equal:
			equal += len(r.Lines)
		case Insert:
			inserted += len(r.Lines)
		case Delete:
			deleted += len(r.Lines)
		}
	}
	return equal, inserted, deleted
}

// Options configures decoding and rendering.
type Options struct {
	// Encoding is "utf-8" (the default) or "latin1".
	Encoding string

	// Context is the number of unified context lines. Zero means DefaultContext.
	Context int
}

// NormalizeEncoding maps an encoding name to its canonical form.
func NormalizeEncoding(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return UTF8, nil
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return Latin1, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
}

// Decode returns data as text, or types.ErrNotDiffable when it is not
// text under the encoding. NUL bytes are never text.
func Decode(data []byte, encoding string) (string, error) {
	enc, err := NormalizeEncoding(encoding)
	if err != nil {
		return "", err
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: contains NUL bytes", types.ErrNotDiffable)
	}

	switch enc {
	case Latin1:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", types.ErrNotDiffable, err)
		}
		return string(out), nil
	default:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: invalid %s", types.ErrNotDiffable, enc)
		}
		return string(data), nil
	}
}

// Diff computes the line edit script from a to b. Both inputs must decode
// as text; otherwise the error wraps types.ErrNotDiffable.
func Diff(a, b []byte, opts Options) (Script, error) {
	la, lb, err := decodeLines(a, b, opts.Encoding)
	if err != nil {
		return nil, err
	}

	m := difflib.NewMatcherWithJunk(la, lb, false, nil)
	var script Script
	for _, oc := range m.GetOpCodes() {
		switch oc.Tag {
		case 'e':
			script = script.add(Equal, oc.I1, oc.J1, la[oc.I1:oc.I2])
		case 'd':
			script = script.add(Delete, oc.I1, oc.J1, la[oc.I1:oc.I2])
		case 'i':
			script = script.add(Insert, oc.I1, oc.J1, lb[oc.J1:oc.J2])
		case 'r':
			script = script.add(Delete, oc.I1, oc.J1, la[oc.I1:oc.I2])
			script = script.add(Insert, oc.I2, oc.J1, lb[oc.J1:oc.J2])
		}
	}
	if len(script) == 0 {
		script = Script{{Op: Equal, Lines: []string{}}}
	}
	return script, nil
}

// add appends lines as a run, extending the last run when it has the same
// operation.
func (s Script) add(op Op, sourceLine, targetLine int, lines []string) Script {
	trimmed := make([]string, len(lines))
	for i, l := range lines {
		trimmed[i] = strings.TrimRight(l, "\r\n")
	}
	if n := len(s); n > 0 && s[n-1].Op == op {
		s[n-1].Lines = append(s[n-1].Lines, trimmed...)
		return s
	}
	return append(s, Run{Op: op, SourceLine: sourceLine, TargetLine: targetLine, Lines: trimmed})
}

// Unified renders a unified patch from a to b. Identical inputs produce
// an empty string.
func Unified(nameA, nameB string, a, b []byte, opts Options) (string, error) {
	la, lb, err := decodeLines(a, b, opts.Encoding)
	if err != nil {
		return "", err
	}
	context := opts.Context
	if context <= 0 {
		context = DefaultContext
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        terminate(la),
		B:        terminate(lb),
		FromFile: nameA,
		ToFile:   nameB,
		Context:  context,
	})
}

func decodeLines(a, b []byte, encoding string) ([]string, []string, error) {
	ta, err := Decode(a, encoding)
	if err != nil {
		return nil, nil, err
	}
	tb, err := Decode(b, encoding)
	if err != nil {
		return nil, nil, err
	}
	return splitLines(ta), splitLines(tb), nil
}

// splitLines splits s after each newline, keeping the terminators so a
// missing final newline is a difference.
func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// noNewline marks a final line without a terminator in unified output.
const noNewline = "\n\\ No newline at end of file\n"

// terminate ensures every line ends in a newline for unified rendering.
func terminate(lines []string) []string {
	if len(lines) == 0 || strings.HasSuffix(lines[len(lines)-1], "\n") {
		return lines
	}
	out := make([]string, len(lines))
	copy(out, lines)
	out[len(out)-1] += noNewline
	return out
}
