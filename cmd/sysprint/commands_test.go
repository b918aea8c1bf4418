package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sysprintv1 "github.com/jamesainslie/sysprint/pkg/api/sysprint/v1"
	"github.com/jamesainslie/sysprint/pkg/sysprint/archive/archivetest"
	"github.com/jamesainslie/sysprint/pkg/sysprint/compare"
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/diff"
	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
	"github.com/jamesainslie/sysprint/pkg/sysprint/output"
	"github.com/jamesainslie/sysprint/pkg/sysprint/textdiff"
)

func beforeFiles() []archivetest.File {
	return []archivetest.File{
		archivetest.Dir("/etc"),
		archivetest.Regular("/etc/app.conf", "port=80\n", true),
		archivetest.Regular("/etc/hosts", "127.0.0.1 localhost\n", false),
	}
}

func afterFiles() []archivetest.File {
	return []archivetest.File{
		archivetest.Dir("/etc"),
		archivetest.Regular("/etc/app.conf", "port=8080\n", true),
		archivetest.Regular("/etc/new.conf", "fresh\n", true),
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"record", "generate-config", "diff", "show", "filediff", "project", "daemon", "config", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("command %q not registered", name)
		}
	}

	for _, sub := range []string{"upload", "list", "get", "compare", "filediff", "export", "delete", "watch"} {
		if cmd, _, err := rootCmd.Find([]string{"project", sub}); err != nil || cmd.Name() != sub {
			t.Errorf("project %s not registered", sub)
		}
	}
}

func TestRecordFlags(t *testing.T) {
	for _, name := range []string{"config", "mode", "output", "workers", "no-interactive"} {
		if recordCmd.Flags().Lookup(name) == nil {
			t.Errorf("record is missing --%s", name)
		}
	}
	if got := recordCmd.Flags().Lookup("output").DefValue; got != "output" {
		t.Errorf("--output default = %q, want output", got)
	}
	if recordCmd.Flags().Lookup("mode").Shorthand != "m" {
		t.Error("--mode should have shorthand -m")
	}
}

func TestRecordRejectsBadProject(t *testing.T) {
	if err := runRecord(recordCmd, []string{"../escape"}); err == nil {
		t.Error("runRecord() should reject a project name containing a separator")
	}
}

func TestRunGenerate(t *testing.T) {
	dir := t.TempDir()
	before := archivetest.WriteFile(t, filepath.Join(dir, "before.tar.gz"), "web-01", beforeFiles()...)
	after := archivetest.WriteFile(t, filepath.Join(dir, "after.tar.gz"), "web-01", afterFiles()...)

	generateOutput = filepath.Join(dir, "targeted.yaml")
	generateExclude = []string{"/etc/ssl/**"}
	defer func() { generateOutput, generateExclude = "", nil }()

	if err := runGenerate(generateCmd, []string{before, after}); err != nil {
		t.Fatalf("runGenerate() error: %v", err)
	}

	cfg, err := config.LoadScanConfig(generateOutput)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if cfg.Mode != config.ModeTargeted {
		t.Errorf("Mode = %s, want targeted", cfg.Mode)
	}
	if len(cfg.Paths.Scan) != 1 || cfg.Paths.Scan[0] != "/etc" {
		t.Errorf("Scan = %v, want [/etc]", cfg.Paths.Scan)
	}
	if len(cfg.Archive.Patterns) != 1 || cfg.Archive.Patterns[0] != "*.conf" {
		t.Errorf("Archive.Patterns = %v, want [*.conf]", cfg.Archive.Patterns)
	}

	found := false
	for _, e := range cfg.Paths.Exclude {
		if e == "/etc/ssl/**" {
			found = true
		}
	}
	if !found {
		t.Errorf("Exclude = %v, want it to contain /etc/ssl/**", cfg.Paths.Exclude)
	}
}

func TestRunGenerateMissingArchive(t *testing.T) {
	dir := t.TempDir()
	generateOutput = filepath.Join(dir, "targeted.yaml")
	defer func() { generateOutput = "" }()

	err := runGenerate(generateCmd, []string{filepath.Join(dir, "a.tar.gz"), filepath.Join(dir, "b.tar.gz")})
	if err == nil {
		t.Error("runGenerate() should fail for missing archives")
	}
}

func compareResult(t *testing.T) *output.Result {
	t.Helper()
	before := archivetest.Open(t, "before", "web-01", beforeFiles()...)
	after := archivetest.Open(t, "after", "web-01", afterFiles()...)
	return &output.Result{
		Source:     output.SideOf("before", before.Manifest),
		Target:     output.SideOf("after", after.Manifest),
		Diff:       diff.Compare(before.Manifest, after.Manifest),
		ComparedAt: time.Now(),
	}
}

func TestWriteResult(t *testing.T) {
	defer func() { diffFormat, diffTemplate = "pretty", "" }()

	tests := []struct {
		format   string
		template string
		contains []string
	}{
		{format: "paths", contains: []string{"/etc/app.conf", "/etc/hosts", "/etc/new.conf"}},
		{format: "csv", contains: []string{"Change Type,File Path", "Added,/etc/new.conf"}},
		{format: "template", template: `{{range .Entries}}{{.Path}};{{end}}`, contains: []string{"/etc/app.conf;", "/etc/new.conf;"}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			diffFormat, diffTemplate = tt.format, tt.template

			var buf bytes.Buffer
			if err := writeResult(&buf, compareResult(t)); err != nil {
				t.Fatalf("writeResult() error: %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestWriteResultErrors(t *testing.T) {
	defer func() { diffFormat, diffTemplate = "pretty", "" }()

	diffFormat = "xml"
	if err := writeResult(&bytes.Buffer{}, compareResult(t)); err == nil {
		t.Error("writeResult() should reject an unknown format")
	}

	diffFormat, diffTemplate = "template", ""
	if err := writeResult(&bytes.Buffer{}, compareResult(t)); err == nil {
		t.Error("writeResult() should require --template")
	}
}

func TestWriteResultJSON(t *testing.T) {
	defer func() { diffFormat = "pretty" }()
	diffFormat = "json"

	var buf bytes.Buffer
	if err := writeResult(&buf, compareResult(t)); err != nil {
		t.Fatalf("writeResult() error: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("json output does not parse: %v", err)
	}
	if _, ok := doc["statistics"]; !ok {
		t.Error("json output is missing statistics")
	}
}

func TestWriteFileDiff(t *testing.T) {
	before := archivetest.Open(t, "before", "web-01", beforeFiles()...)
	after := archivetest.Open(t, "after", "web-01", afterFiles()...)

	fd, err := compare.Files(before, after, "/etc/app.conf", textdiff.Options{})
	if err != nil {
		t.Fatalf("compare.Files() error: %v", err)
	}
	var buf bytes.Buffer
	writeFileDiff(&buf, fd)
	if !strings.Contains(buf.String(), "+port=8080") {
		t.Errorf("unified diff missing insertion:\n%s", buf.String())
	}

	fd, err = compare.Files(before, after, "/etc/hosts", textdiff.Options{})
	if err != nil {
		t.Fatalf("compare.Files() error: %v", err)
	}
	buf.Reset()
	writeFileDiff(&buf, fd)
	if !strings.Contains(buf.String(), "content unavailable") {
		t.Errorf("expected content unavailable, got:\n%s", buf.String())
	}
}

func TestProjectTable(t *testing.T) {
	projects := []*sysprintv1.Project{
		{ID: "before", Host: "web-01", Mode: "broad", Size: 2048, Summary: manifest.Summary{TotalFiles: 1200}},
		{ID: "after", Host: "web-02", Mode: "targeted", Size: 4096},
	}

	out := projectTable(projects)
	for _, want := range []string{"ID", "before", "after", "web-02", "targeted", "1,200", "2.0 KiB"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestSettingsView(t *testing.T) {
	s := &config.Settings{}
	s.Repository.Retention = 30 * 24 * time.Hour
	s.Daemon.AutoStart = true
	s.Defaults.Exclude = []string{"/proc/**"}

	v := newSettingsView(s)
	if v.Repository.Retention != "720h0m0s" {
		t.Errorf("Retention = %q", v.Repository.Retention)
	}
	if !v.Daemon.AutoStart {
		t.Error("AutoStart should be carried over")
	}
	if len(v.Defaults.Exclude) != 1 {
		t.Errorf("Exclude = %v", v.Defaults.Exclude)
	}
}
