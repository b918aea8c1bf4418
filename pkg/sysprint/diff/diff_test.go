package diff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
)

var (
	t0 = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func dir(p string) manifest.FileEntry {
	return manifest.FileEntry{Path: p, Kind: manifest.KindDirectory, Metadata: manifest.Metadata{Mode: manifest.ModeDir | 0o755, ModTime: t0}}
}

func file(p, digest string, size int64) manifest.FileEntry {
	return manifest.FileEntry{Path: p, Kind: manifest.KindRegular, Digest: digest, Metadata: manifest.Metadata{Size: size, Mode: manifest.ModeRegular | 0o644, ModTime: t0}}
}

func link(p, target string) manifest.FileEntry {
	return manifest.FileEntry{Path: p, Kind: manifest.KindSymlink, Metadata: manifest.Metadata{Mode: manifest.ModeSymlink | 0o777, IsSymlink: true, LinkTarget: target, ModTime: t0}}
}

func build(t *testing.T, entries ...manifest.FileEntry) *manifest.Manifest {
	t.Helper()
	b := manifest.NewBuilder(manifest.NewHeader("sha256"))
	for _, e := range entries {
		require.NoError(t, b.Add(e))
	}
	return b.Build()
}

func baseline(t *testing.T) *manifest.Manifest {
	return build(t,
		dir("/etc"),
		file("/etc/hosts", "aa", 10),
		file("/etc/app.conf", "bb", 20),
		link("/etc/localtime", "/usr/share/zoneinfo/UTC"),
		dir("/var"),
		dir("/var/log"),
	)
}

func TestCompareIdentity(t *testing.T) {
	a := baseline(t)
	r := Compare(a, a)

	assert.Empty(t, r.Added)
	assert.Empty(t, r.Removed)
	assert.Empty(t, r.Changed)
	assert.Equal(t, a.Paths(), r.Paths(Unchanged))
	assert.False(t, r.HasChanges())
	assert.Equal(t, Counts{SourceTotal: 6, TargetTotal: 6, Unchanged: 6}, r.Counts)
}

func TestCompareAddedFile(t *testing.T) {
	before := baseline(t)
	after := build(t,
		dir("/etc"),
		file("/etc/hosts", "aa", 10),
		file("/etc/app.conf", "bb", 20),
		link("/etc/localtime", "/usr/share/zoneinfo/UTC"),
		dir("/var"),
		dir("/var/log"),
		file("/var/log/x.log", "cc", 5),
	)

	r := Compare(before, after)
	assert.Equal(t, []string{"/var/log/x.log"}, r.Paths(Added))
	assert.Empty(t, r.Removed)
	assert.Empty(t, r.Changed)
	assert.Nil(t, r.Added[0].Source)
	assert.Equal(t, "cc", r.Added[0].Target.Digest)
	assert.Equal(t, 1, r.Counts.Added)
	assert.Equal(t, 7, r.Counts.TargetTotal)
}

func TestCompareSymmetry(t *testing.T) {
	a := baseline(t)
	b := build(t,
		dir("/etc"),
		file("/etc/hosts", "a2", 11),
		link("/etc/localtime", "/usr/share/zoneinfo/Europe/Oslo"),
		dir("/opt"),
		file("/opt/tool", "dd", 1),
	)

	ab, ba := Compare(a, b), Compare(b, a)
	assert.Equal(t, ab.Paths(Added), ba.Paths(Removed))
	assert.Equal(t, ab.Paths(Removed), ba.Paths(Added))
	assert.Equal(t, ab.Paths(Changed), ba.Paths(Changed))
	assert.Equal(t, ab.Paths(Unchanged), ba.Paths(Unchanged))

	assert.Equal(t, []string{"/opt", "/opt/tool"}, ab.Paths(Added))
	assert.Equal(t, []string{"/etc/app.conf", "/var", "/var/log"}, ab.Paths(Removed))
	assert.Equal(t, []string{"/etc/hosts", "/etc/localtime"}, ab.Paths(Changed))
	assert.Equal(t, []string{"/etc"}, ab.Paths(Unchanged))
}

func TestCompareClassification(t *testing.T) {
	touchedDir := dir("/srv")
	touchedDir.Metadata.ModTime = t1

	chmodded := file("/srv/same", "ee", 3)
	chmodded.Metadata.Mode = manifest.ModeRegular | 0o600
	chmodded.Metadata.UID = 1000

	unreadableA := file("/srv/unreadable", "", 4)
	unreadableB := file("/srv/unreadable", "", 4)
	unreadableB.Metadata.ModTime = t1

	a := build(t,
		dir("/srv"),
		file("/srv/same", "ee", 3),
		file("/srv/kind", "ff", 1),
		unreadableA,
	)
	b := build(t,
		touchedDir,
		chmodded,
		dir("/srv/kind"),
		unreadableB,
	)

	r := Compare(a, b)
	assert.Equal(t, []string{"/srv", "/srv/same"}, r.Paths(Unchanged))
	assert.Equal(t, []string{"/srv/kind", "/srv/unreadable"}, r.Paths(Changed))

	srv, ok := r.Lookup("/srv")
	require.True(t, ok)
	assert.Equal(t, []string{FieldModTime}, srv.MetadataDelta, "directories compare by presence only")

	same, _ := r.Lookup("/srv/same")
	assert.Equal(t, []string{FieldMode, FieldUID}, same.MetadataDelta)

	kind, _ := r.Lookup("/srv/kind")
	assert.Equal(t, manifest.KindDirectory, kind.Kind())
	assert.Equal(t, manifest.KindRegular, kind.Source.Kind)
}

func TestSame(t *testing.T) {
	assert.True(t, Same(ptr(file("/a", "x", 1)), ptr(file("/a", "x", 2))))
	assert.False(t, Same(ptr(file("/a", "x", 1)), ptr(file("/a", "y", 1))))
	assert.False(t, Same(ptr(file("/a", "x", 1)), ptr(file("/a", "", 1))))
	assert.True(t, Same(ptr(file("/a", "", 1)), ptr(file("/a", "", 1))))
	assert.True(t, Same(ptr(link("/l", "t")), ptr(link("/l", "t"))))
	assert.False(t, Same(ptr(link("/l", "t")), ptr(link("/l", "u"))))
	assert.False(t, Same(ptr(link("/l", "t")), ptr(file("/l", "x", 1))))
}

func ptr(e manifest.FileEntry) *manifest.FileEntry {
	return &e
}

func TestHide(t *testing.T) {
	a := baseline(t)
	b := build(t,
		dir("/etc"),
		file("/etc/hosts", "changed", 10),
		file("/etc/app.conf", "bb", 20),
		dir("/var"),
		dir("/var/log"),
		file("/var/log/x.log", "cc", 5),
		file("/var/log/y.log", "dd", 5),
	)
	r := Compare(a, b)
	before := *r

	h, err := r.Hide([]string{"*.log"})
	require.NoError(t, err)
	assert.Empty(t, h.Added)
	assert.Equal(t, []string{"/etc/hosts"}, h.Paths(Changed))
	assert.Equal(t, 2, h.Counts.Hidden)
	assert.Equal(t, 0, h.Counts.Added)
	assert.Equal(t, r.Counts.SourceTotal, h.Counts.SourceTotal)

	assert.Equal(t, before, *r, "receiver must not change")
	assert.Len(t, r.Added, 2)

	one, err := r.Hide([]string{"/etc/*"})
	require.NoError(t, err)
	oneThenTwo, err := one.Hide([]string{"*.log"})
	require.NoError(t, err)
	two, err := r.Hide([]string{"*.log"})
	require.NoError(t, err)
	twoThenOne, err := two.Hide([]string{"/etc/*"})
	require.NoError(t, err)
	both, err := r.Hide([]string{"*.log", "/etc/*"})
	require.NoError(t, err)

	assert.Equal(t, oneThenTwo, twoThenOne)
	assert.Equal(t, both, oneThenTwo)

	_, err = r.Hide([]string{"[a-"})
	assert.Error(t, err)
}

func TestChangesAndAll(t *testing.T) {
	a := build(t, file("/b", "1", 1), file("/d", "1", 1), file("/e", "1", 1))
	b := build(t, file("/a", "1", 1), file("/b", "2", 1), file("/e", "1", 1))

	r := Compare(a, b)
	var paths []string
	for _, e := range r.Changes() {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"/a", "/b", "/d"}, paths)
	assert.Len(t, r.All(), 4)
	assert.Equal(t, "/e", r.All()[3].Path)

	_, ok := r.Lookup("/zzz")
	assert.False(t, ok)
}
