// Package diff classifies the paths of two manifests as added, removed,
// changed or unchanged.
package diff

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
	"github.com/jamesainslie/sysprint/pkg/sysprint/matcher"
)

// Class is the comparison outcome for one path.
type Class string

const (
	Added     Class = "added"
	Removed   Class = "removed"
	Changed   Class = "changed"
	Unchanged Class = "unchanged"
)

// Classes lists every class in report order.
var Classes = []Class{Added, Removed, Changed, Unchanged}

// Metadata field names reported in Entry.MetadataDelta.
const (
	FieldSize       = "size"
	FieldMode       = "mode"
	FieldUID        = "uid"
	FieldGID        = "gid"
	FieldModTime    = "mtime"
	FieldLinkTarget = "link_target"
)

// Entry is one compared path. Source is nil for added paths and Target is
// nil for removed paths.
type Entry struct {
	Path   string              `json:"path"`
	Class  Class               `json:"class"`
	Source *manifest.FileEntry `json:"source,omitempty"`
	Target *manifest.FileEntry `json:"target,omitempty"`
	// MetadataDelta names the metadata fields that differ. It never affects
	// the class.
	MetadataDelta []string `json:"metadata_delta,omitempty"`
}

// Counts aggregates a Result.
type Counts struct {
	SourceTotal int `json:"source_total"`
	TargetTotal int `json:"target_total"`
	Added       int `json:"added"`
	Removed     int `json:"removed"`
	Changed     int `json:"changed"`
	Unchanged   int `json:"unchanged"`
	// Hidden is the number of entries removed by Hide.
	Hidden int `json:"hidden,omitempty"`
}

// Result holds four disjoint path sets, each sorted by path.
type Result struct {
	Added     []Entry `json:"added"`
	Removed   []Entry `json:"removed"`
	Changed   []Entry `json:"changed"`
	Unchanged []Entry `json:"unchanged"`
	Counts    Counts  `json:"counts"`
}

// Compare classifies the union of both manifests' paths. Regular files are
// compared by digest, symlinks by target and directories by presence.
// A path whose kind changed is changed.
func Compare(source, target *manifest.Manifest) *Result {
	r := &Result{
		Added:     []Entry{},
		Removed:   []Entry{},
		Changed:   []Entry{},
		Unchanged: []Entry{},
	}

	sp, tp := source.Paths(), target.Paths()
	i, j := 0, 0
	for i < len(sp) || j < len(tp) {
		switch {
		case j >= len(tp) || (i < len(sp) && sp[i] < tp[j]):
			s, _ := source.Get(sp[i])
			r.Removed = append(r.Removed, Entry{Path: sp[i], Class: Removed, Source: s})
			i++
		case i >= len(sp) || tp[j] < sp[i]:
			t, _ := target.Get(tp[j])
			r.Added = append(r.Added, Entry{Path: tp[j], Class: Added, Target: t})
			j++
		default:
			s, _ := source.Get(sp[i])
			t, _ := target.Get(tp[j])
			e := Entry{Path: sp[i], Source: s, Target: t, MetadataDelta: MetadataDelta(s, t)}
			if Same(s, t) {
				e.Class = Unchanged
				r.Unchanged = append(r.Unchanged, e)
			} else {
				e.Class = Changed
				r.Changed = append(r.Changed, e)
			}
			i++
			j++
		}
	}

	r.Counts.SourceTotal = source.Len()
	r.Counts.TargetTotal = target.Len()
	r.recount()
	return r
}

// Same reports whether two entries for the same path are equal for
// classification purposes. Regular files without a digest on either side
// fall back to size and modification time.
func Same(s, t *manifest.FileEntry) bool {
	if s.Kind != t.Kind {
		return false
	}
	switch s.Kind {
	case manifest.KindDirectory:
		return true
	case manifest.KindSymlink:
		return s.Metadata.LinkTarget == t.Metadata.LinkTarget
	}
	if s.Digest == "" || t.Digest == "" {
		return s.Digest == t.Digest &&
			s.Metadata.Size == t.Metadata.Size &&
			s.Metadata.ModTime.Equal(t.Metadata.ModTime)
	}
	return s.Digest == t.Digest
}

// MetadataDelta lists the metadata fields that differ between s and t.
func MetadataDelta(s, t *manifest.FileEntry) []string {
	var delta []string
	if s.Metadata.Size != t.Metadata.Size {
		delta = append(delta, FieldSize)
	}
	if s.Metadata.Mode != t.Metadata.Mode {
		delta = append(delta, FieldMode)
	}
	if s.Metadata.UID != t.Metadata.UID {
		delta = append(delta, FieldUID)
	}
	if s.Metadata.GID != t.Metadata.GID {
		delta = append(delta, FieldGID)
	}
	if !s.Metadata.ModTime.Equal(t.Metadata.ModTime) {
		delta = append(delta, FieldModTime)
	}
	if s.Metadata.LinkTarget != t.Metadata.LinkTarget {
		delta = append(delta, FieldLinkTarget)
	}
	return delta
}

func (r *Result) recount() {
	r.Counts.Added = len(r.Added)
	r.Counts.Removed = len(r.Removed)
	r.Counts.Changed = len(r.Changed)
	r.Counts.Unchanged = len(r.Unchanged)
}

// Hide returns a copy of r without entries whose path matches any of the
// patterns. It is a display filter: classification is untouched and the
// receiver is not modified.
func (r *Result) Hide(patterns []string) (*Result, error) {
	set, err := matcher.CompileSet(patterns)
	if err != nil {
		return nil, fmt.Errorf("hide: %w", err)
	}

	hidden := 0
	keep := func(entries []Entry) []Entry {
		out := make([]Entry, 0, len(entries))
		for _, e := range entries {
			if set.Match(e.Path) {
				hidden++
				continue
			}
			out = append(out, e)
		}
		return out
	}

	out := &Result{
		Added:     keep(r.Added),
		Removed:   keep(r.Removed),
		Changed:   keep(r.Changed),
		Unchanged: keep(r.Unchanged),
		Counts:    r.Counts,
	}
	out.Counts.Hidden = r.Counts.Hidden + hidden
	out.recount()
	return out, nil
}

// Entries returns the entries of one class.
func (r *Result) Entries(c Class) []Entry {
	switch c {
	case Added:
		return r.Added
	case Removed:
		return r.Removed
	case Changed:
		return r.Changed
	case Unchanged:
		return r.Unchanged
	}
	return nil
}

// Paths returns the paths of one class.
func (r *Result) Paths(c Class) []string {
	entries := r.Entries(c)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

// Changes returns the added, removed and changed entries sorted by path.
func (r *Result) Changes() []Entry {
	out := make([]Entry, 0, len(r.Added)+len(r.Removed)+len(r.Changed))
	out = append(out, r.Added...)
	out = append(out, r.Removed...)
	out = append(out, r.Changed...)
	slices.SortFunc(out, func(a, b Entry) int {
		return strings.Compare(a.Path, b.Path)
	})
	return out
}

// All returns every entry, including unchanged ones, sorted by path.
func (r *Result) All() []Entry {
	out := append(r.Changes(), r.Unchanged...)
	slices.SortFunc(out, func(a, b Entry) int {
		return strings.Compare(a.Path, b.Path)
	})
	return out
}

// HasChanges reports whether anything was added, removed or changed.
func (r *Result) HasChanges() bool {
	return len(r.Added)+len(r.Removed)+len(r.Changed) > 0
}

// Lookup finds the entry for path in any class.
func (r *Result) Lookup(path string) (Entry, bool) {
	for _, c := range Classes {
		entries := r.Entries(c)
		i, ok := slices.BinarySearchFunc(entries, path, func(e Entry, p string) int {
			return strings.Compare(e.Path, p)
		})
		if ok {
			return entries[i], true
		}
	}
	return Entry{}, false
}

// Kind returns the entry kind, preferring the target side.
func (e Entry) Kind() manifest.Kind {
	if e.Target != nil {
		return e.Target.Kind
	}
	if e.Source != nil {
		return e.Source.Kind
	}
	return ""
}
