package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/sysprint/pkg/sysprint/diff"
	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
)

var stamp = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func build(t *testing.T, host string, entries ...manifest.FileEntry) *manifest.Manifest {
	t.Helper()
	b := manifest.NewBuilder(manifest.Header{Version: manifest.FormatVersion, Created: stamp, Host: host, HashAlgorithm: "sha256"})
	for _, e := range entries {
		e.Metadata.ModTime = stamp
		require.NoError(t, b.Add(e))
	}
	return b.Build()
}

func regular(path, digest string, size int64, mode manifest.Mode) manifest.FileEntry {
	return manifest.FileEntry{Path: path, Kind: manifest.KindRegular, Digest: digest,
		Metadata: manifest.Metadata{Size: size, Mode: manifest.ModeRegular | mode}}
}

func symlink(path, target string) manifest.FileEntry {
	return manifest.FileEntry{Path: path, Kind: manifest.KindSymlink,
		Metadata: manifest.Metadata{Size: 2, Mode: manifest.ModeSymlink | 0o777, IsSymlink: true, LinkTarget: target}}
}

func dir(path string) manifest.FileEntry {
	return manifest.FileEntry{Path: path, Kind: manifest.KindDirectory, Metadata: manifest.Metadata{Mode: manifest.ModeDir | 0o755}}
}

func sampleResult(t *testing.T) *Result {
	t.Helper()
	before := build(t, "web-01",
		dir("/etc"),
		regular("/etc/hosts", "aa", 12, 0o644),
		regular("/etc/app.conf", "bb", 6, 0o644),
		regular("/etc/old", "cc", 3, 0o644),
		symlink("/etc/link", "/a"),
	)
	after := build(t, "web-02",
		dir("/etc"),
		regular("/etc/hosts", "aa", 12, 0o644),
		regular("/etc/app.conf", "dd", 8, 0o600),
		regular("/etc/new", "ee", 4, 0o644),
		symlink("/etc/link", "/b"),
	)
	return &Result{
		Source:     SideOf("before", before),
		Target:     SideOf("after", after),
		Diff:       diff.Compare(before, after),
		ComparedAt: stamp,
	}
}

func format(t *testing.T, name string, r *Result) string {
	t.Helper()
	f, err := Get(name)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, r))
	return buf.String()
}

func TestRegistry(t *testing.T) {
	assert.Equal(t,
		[]string{"csv", "json", "jsonl", "markdown", "null", "paths", "plain", "pretty", "template", "yaml"},
		Available())

	_, err := Get("xml")
	assert.ErrorContains(t, err, "unknown formatter: xml")

	r := NewRegistry()
	r.Register("paths", func() Formatter { return &PathsFormatter{} })
	assert.Equal(t, []string{"paths"}, r.Available())
}

func TestResultEntries(t *testing.T) {
	r := sampleResult(t)

	var paths []string
	for _, e := range r.Entries() {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"/etc/app.conf", "/etc/link", "/etc/new", "/etc/old"}, paths)

	r.ShowUnchanged = true
	assert.Len(t, r.Entries(), 6)
}

func TestChangeLabel(t *testing.T) {
	assert.Equal(t, "Added", ChangeLabel(diff.Added))
	assert.Equal(t, "Deleted", ChangeLabel(diff.Removed))
	assert.Equal(t, "Modified", ChangeLabel(diff.Changed))
	assert.Equal(t, "Unchanged", ChangeLabel(diff.Unchanged))
}

func TestDetail(t *testing.T) {
	r := sampleResult(t)

	tests := map[string]string{
		"/etc/app.conf": "6 B -> 8 B (mode)",
		"/etc/link":     "/a -> /b",
		"/etc/new":      "4 B",
		"/etc/old":      "3 B",
	}
	for path, want := range tests {
		e, ok := r.Diff.Lookup(path)
		require.True(t, ok, path)
		assert.Equal(t, want, detail(e), path)
	}

	e, _ := r.Diff.Lookup("/etc")
	assert.Equal(t, "directory", detail(e))
}

func TestCSVFormatter(t *testing.T) {
	got := format(t, "csv", sampleResult(t))
	want := "Change Type,File Path,Size Before,Size After,Hash Before,Hash After\n" +
		"Modified,/etc/app.conf,6,8,bb,dd\n" +
		"Modified,/etc/link,2,2,,\n" +
		"Added,/etc/new,,4,,ee\n" +
		"Deleted,/etc/old,3,,cc,\n"
	assert.Equal(t, want, got)
}

func TestCSVFormatter_ShowUnchanged(t *testing.T) {
	r := sampleResult(t)
	r.ShowUnchanged = true
	got := format(t, "csv", r)
	assert.Contains(t, got, "Unchanged,/etc,,,,\n")
	assert.Contains(t, got, "Unchanged,/etc/hosts,12,12,aa,aa\n")
}

func TestJSONFormatter(t *testing.T) {
	out := format(t, "json", sampleResult(t))

	var doc struct {
		Source     Side      `json:"source"`
		ComparedAt time.Time `json:"compared_at"`
		Statistics struct {
			TotalBefore int `json:"total_files_before"`
			TotalAfter  int `json:"total_files_after"`
			Added       int `json:"added"`
			Removed     int `json:"removed"`
			Changed     int `json:"changed"`
			Unchanged   int `json:"unchanged"`
		} `json:"statistics"`
		Changes map[string][]map[string]any `json:"changes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))

	assert.Equal(t, "before", doc.Source.Name)
	assert.Equal(t, "web-01", doc.Source.Host)
	assert.True(t, stamp.Equal(doc.ComparedAt))
	assert.Equal(t, 5, doc.Statistics.TotalBefore)
	assert.Equal(t, 5, doc.Statistics.TotalAfter)
	assert.Equal(t, 1, doc.Statistics.Added)
	assert.Equal(t, 1, doc.Statistics.Removed)
	assert.Equal(t, 2, doc.Statistics.Changed)
	assert.Equal(t, 2, doc.Statistics.Unchanged)

	assert.NotContains(t, doc.Changes, "unchanged")
	require.Len(t, doc.Changes["added"], 1)
	added := doc.Changes["added"][0]
	assert.Equal(t, "/etc/new", added["path"])
	assert.Equal(t, "regular", added["kind"])
	assert.Equal(t, float64(4), added["size_after"])
	assert.NotContains(t, added, "size_before")
	assert.Equal(t, "ee", added["hash_after"])

	changed := doc.Changes["changed"][0]
	assert.Equal(t, "/etc/app.conf", changed["path"])
	assert.Equal(t, []any{"size", "mode"}, changed["metadata_delta"])
}

func TestJSONLFormatter(t *testing.T) {
	out := format(t, "jsonl", sampleResult(t))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 4)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "/etc/app.conf", first["path"])
	assert.Equal(t, "changed", first["change"])
}

func TestYAMLFormatter(t *testing.T) {
	r := sampleResult(t)
	r.ShowUnchanged = true
	out := format(t, "yaml", r)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	stats := doc["statistics"].(map[string]any)
	assert.Equal(t, 1, stats["added"])
	assert.Equal(t, 5, stats["total_files_before"])

	changes := doc["changes"].(map[string]any)
	assert.Len(t, changes["unchanged"], 2)
	assert.Contains(t, out, "path: /etc/new")
}

func TestPlainFormatter(t *testing.T) {
	out := format(t, "plain", sampleResult(t))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"CHANGE", "KIND", "PATH", "DETAIL"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"added", "regular", "/etc/new", "4", "B"}, strings.Fields(lines[3]))
	assert.NotContains(t, out, "\x1b[")
}

func TestMarkdownFormatter(t *testing.T) {
	out := format(t, "markdown", sampleResult(t))
	assert.True(t, strings.HasPrefix(out, "| CHANGE | PATH | DETAIL |\n|--------|------|--------|\n"))
	assert.Contains(t, out, "| Deleted | /etc/old | 3 B |\n")
	assert.Equal(t, `a\|b`, escapeMarkdownPipe("a|b"))
}

func TestPathsFormatters(t *testing.T) {
	r := sampleResult(t)
	assert.Equal(t, "/etc/app.conf\n/etc/link\n/etc/new\n/etc/old\n", format(t, "paths", r))
	assert.Equal(t, "/etc/app.conf\x00/etc/link\x00/etc/new\x00/etc/old\x00", format(t, "null", r))
}

func TestTemplateFormatter(t *testing.T) {
	r := sampleResult(t)
	assert.Equal(t, "~ /etc/app.conf\n~ /etc/link\n+ /etc/new\n- /etc/old\n", format(t, "template", r))

	f := NewTemplateFormatter(`{{.Source.Name}}..{{.Target.Name}} {{.Counts.Changed}} {{date .ComparedAt "2006-01-02"}}` +
		`{{range .Entries}} {{label .Class}}:{{.Path}}{{end}}`)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, r))
	assert.Equal(t, "before..after 2 2026-02-01 Modified:/etc/app.conf Modified:/etc/link Added:/etc/new Deleted:/etc/old", buf.String())

	f.SetTemplate(`{{short "0123456789abcdef"}} {{bytes 2048}}`)
	buf.Reset()
	require.NoError(t, f.Format(&buf, r))
	assert.Equal(t, "0123456789ab 2.0 KiB", buf.String())

	f.SetTemplate(`{{.Missing`)
	assert.Error(t, f.Format(&buf, r))
}

func TestPrettyFormatter(t *testing.T) {
	r := sampleResult(t)
	r.Warnings = []string{"2 scan errors in before"}
	out := format(t, "pretty", r)

	for _, want := range []string{"before", "after", "web-01", "/etc/app.conf", "/etc/new", "6 B -> 8 B", "added", "removed", "Warnings:", "2 scan errors in before"} {
		assert.Contains(t, out, want)
	}
}

func TestPrettyFormatter_NoDifferences(t *testing.T) {
	m := build(t, "web-01", dir("/etc"), regular("/etc/hosts", "aa", 12, 0o644))
	r := &Result{Source: SideOf("a", m), Target: SideOf("b", m), Diff: diff.Compare(m, m)}

	out := format(t, "pretty", r)
	assert.Contains(t, out, "No differences found")
	assert.Contains(t, out, "identical")
}

func TestWarnings(t *testing.T) {
	base := Side{Name: "a", Created: stamp, Platform: "linux/amd64", HashAlgorithm: "sha256", Mode: "broad"}

	assert.Empty(t, Warnings(base, base))

	other := base
	other.HashAlgorithm = "highway"
	other.Platform = "darwin/arm64"
	other.Mode = "targeted"
	other.Created = stamp.Add(-time.Hour)

	warnings := Warnings(base, other)
	require.Len(t, warnings, 4)
	assert.Contains(t, warnings[0], "sha256 vs highway")
	assert.Contains(t, warnings[1], "linux/amd64 vs darwin/arm64")
	assert.Contains(t, warnings[2], "broad vs targeted")
	assert.Contains(t, warnings[3], "newer")

	unknown := Side{Name: "b", Created: stamp}
	assert.Empty(t, Warnings(base, unknown), "fields missing on one side are not compared")
}
