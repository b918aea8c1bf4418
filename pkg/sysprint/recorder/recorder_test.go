package recorder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sysprint/pkg/sysprint/archive"
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

func tree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "etc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "etc", "a.conf"), []byte("hello\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "etc", "b.bin"), []byte{0, 1, 2}, 0o644))
	return dir
}

func scanConfig(root string) config.ScanConfig {
	cfg := config.DefaultScanConfig()
	cfg.Paths.Scan = []string{root}
	cfg.Paths.Exclude = nil
	cfg.Archive.Patterns = []string{"*.conf"}
	cfg.Performance.Workers = 2
	return cfg
}

func TestRecordTargeted(t *testing.T) {
	root := tree(t)
	out := filepath.Join(t.TempDir(), "out")

	res, err := Record(context.Background(), Options{
		Project:   "baseline",
		OutputDir: out,
		Config:    scanConfig(root),
		Mode:      config.ModeTargeted,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "baseline.tar.gz"), res.Path)
	assert.Positive(t, res.Size)

	info, err := os.Stat(res.Path)
	require.NoError(t, err)
	assert.Equal(t, res.Size, info.Size())

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	a, err := archive.OpenFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, res.Manifest, a.Manifest)
	assert.Equal(t, config.ModeTargeted, a.Manifest.Header.Config.Mode)

	content, err := a.Content(root + "/etc/a.conf")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(content))

	_, err = a.Content(root + "/etc/b.bin")
	assert.ErrorIs(t, err, types.ErrNotDiffable)
}

func TestRecordBroadArchivesNothing(t *testing.T) {
	root := tree(t)

	res, err := Record(context.Background(), Options{
		Project:   "broad",
		OutputDir: t.TempDir(),
		Config:    scanConfig(root),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Manifest.ArchivedPaths())
	assert.Equal(t, 2, res.Manifest.Summary().TotalFiles)
}

func TestRecordCancelledLeavesNothing(t *testing.T) {
	root := tree(t)
	out := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Record(ctx, Options{Project: "p", OutputDir: out, Config: scanConfig(root)})
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecordInvalidConfig(t *testing.T) {
	cfg := scanConfig(filepath.Join(t.TempDir(), "missing"))
	_, err := Record(context.Background(), Options{Project: "p", OutputDir: t.TempDir(), Config: cfg})
	assert.True(t, types.IsConfigError(err))
}

func TestValidateProject(t *testing.T) {
	for _, name := range []string{"baseline", "after-upgrade", "host_01.v2"} {
		assert.NoError(t, ValidateProject(name), name)
	}
	for _, name := range []string{"", "  ", ".", "..", "a/b", `a\b`, ".hidden"} {
		assert.ErrorIs(t, ValidateProject(name), ErrInvalidProject, name)
	}
}
