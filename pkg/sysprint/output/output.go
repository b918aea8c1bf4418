// Package output renders manifest comparisons in the formats offered by
// `sysprint diff -f` and the service's Export operation.
//
// The package uses a registry so formatters can be selected by name at
// runtime:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, result); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/sysprint/pkg/sysprint/diff"
	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
)

// Side identifies one of the two compared manifests.
type Side struct {
	// Name is the project id or archive path.
	Name string `json:"name" yaml:"name"`

	// Host is the machine the scan ran on.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Created is when the scan ran.
	Created time.Time `json:"created" yaml:"created"`

	Platform      string `json:"platform,omitempty" yaml:"platform,omitempty"`
	HashAlgorithm string `json:"hash_algorithm,omitempty" yaml:"hash_algorithm,omitempty"`
	Mode          string `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// SideOf describes m under the given name.
func SideOf(name string, m *manifest.Manifest) Side {
	return Side{
		Name:          name,
		Host:          m.Header.Host,
		Created:       m.Header.Created,
		Platform:      m.Header.Platform,
		HashAlgorithm: m.Header.HashAlgorithm,
		Mode:          m.Header.Config.Mode.String(),
	}
}

// Warnings describes differences between the two scans that affect how a
// comparison reads. Fields unknown on either side are not compared.
func Warnings(source, target Side) []string {
	var warnings []string
	differ := func(a, b string) bool { return a != "" && b != "" && a != b }

	if differ(source.HashAlgorithm, target.HashAlgorithm) {
		warnings = append(warnings, fmt.Sprintf(
			"digests use different algorithms (%s vs %s); every file will compare as changed",
			source.HashAlgorithm, target.HashAlgorithm))
	}
	if differ(source.Platform, target.Platform) {
		warnings = append(warnings, fmt.Sprintf("scans ran on different platforms (%s vs %s)",
			source.Platform, target.Platform))
	}
	if differ(source.Mode, target.Mode) {
		warnings = append(warnings, fmt.Sprintf("scans used different modes (%s vs %s)",
			source.Mode, target.Mode))
	}
	if source.Created.After(target.Created) && !target.Created.IsZero() {
		warnings = append(warnings, "source scan is newer than target scan")
	}
	return warnings
}

// Result is the data handed to a formatter.
type Result struct {
	Source Side
	Target Side
	Diff   *diff.Result

	// ComparedAt is when the comparison was made.
	ComparedAt time.Time

	// ShowUnchanged includes unchanged entries in listings.
	ShowUnchanged bool

	// Warnings are printed by the human-oriented formatters.
	Warnings []string
}

// Entries returns the entries to list, sorted by path.
func (r *Result) Entries() []diff.Entry {
	if r.ShowUnchanged {
		return r.Diff.All()
	}
	return r.Diff.Changes()
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry, replacing any
// formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// ChangeLabel is the capitalised class name used in exports.
func ChangeLabel(c diff.Class) string {
	switch c {
	case diff.Added:
		return "Added"
	case diff.Removed:
		return "Deleted"
	case diff.Changed:
		return "Modified"
	case diff.Unchanged:
		return "Unchanged"
	}
	return string(c)
}

// marker is the one-character prefix shown for each class.
func marker(c diff.Class) string {
	switch c {
	case diff.Added:
		return "+"
	case diff.Removed:
		return "-"
	case diff.Changed:
		return "~"
	}
	return "="
}

// sizeField returns the size column for e, or "" when e is absent or a
// directory.
func sizeField(e *manifest.FileEntry) string {
	if e == nil || e.IsDir() {
		return ""
	}
	return strconv.FormatInt(e.Metadata.Size, 10)
}

func hashField(e *manifest.FileEntry) string {
	if e == nil {
		return ""
	}
	return e.Digest
}

// describe summarises one side of an entry for the human formatters.
func describe(e *manifest.FileEntry) string {
	switch e.Kind {
	case manifest.KindDirectory:
		return "directory"
	case manifest.KindSymlink:
		return "-> " + e.Metadata.LinkTarget
	}
	return humanize.IBytes(uint64(e.Metadata.Size))
}

// detail explains why an entry is in its class.
func detail(e diff.Entry) string {
	switch e.Class {
	case diff.Added:
		return describe(e.Target)
	case diff.Removed, diff.Unchanged:
		return describe(e.Source)
	}

	if e.Source.Kind != e.Target.Kind {
		return fmt.Sprintf("%s -> %s", e.Source.Kind, e.Target.Kind)
	}
	var parts []string
	switch e.Source.Kind {
	case manifest.KindSymlink:
		parts = append(parts, fmt.Sprintf("%s -> %s", e.Source.Metadata.LinkTarget, e.Target.Metadata.LinkTarget))
	default:
		if e.Source.Metadata.Size != e.Target.Metadata.Size {
			parts = append(parts, fmt.Sprintf("%s -> %s",
				humanize.IBytes(uint64(e.Source.Metadata.Size)), humanize.IBytes(uint64(e.Target.Metadata.Size))))
		} else {
			parts = append(parts, "content")
		}
	}
	var other []string
	for _, f := range e.MetadataDelta {
		if f != diff.FieldSize && f != diff.FieldLinkTarget {
			other = append(other, f)
		}
	}
	if len(other) > 0 {
		parts = append(parts, "("+strings.Join(other, ", ")+")")
	}
	return strings.Join(parts, " ")
}
