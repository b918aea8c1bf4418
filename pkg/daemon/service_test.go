package daemon_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	sysprintv1 "github.com/jamesainslie/sysprint/pkg/api/sysprint/v1"
	"github.com/jamesainslie/sysprint/pkg/daemon"
	"github.com/jamesainslie/sysprint/pkg/sysprint/archive/archivetest"
	"github.com/jamesainslie/sysprint/pkg/sysprint/compare"
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

// socketDir returns a short temporary directory; unix socket paths are
// limited to about 100 bytes.
func socketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "sp")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

type harness struct {
	srv    *daemon.Server
	client *sysprintv1.ComparisonClient
	drop   string
	socket string
}

func startServer(t *testing.T, mutate ...func(*daemon.Config)) *harness {
	t.Helper()

	dataDir := t.TempDir()
	cfg := daemon.Config{
		SocketPath: filepath.Join(socketDir(t), "sysprint.sock"),
		DataDir:    dataDir,
		Version:    "test",
		Repository: config.RepositoryConfig{
			MaxUploadSize: types.ByteSize(config.DefaultMaxUploadSize),
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	srv, err := daemon.NewServer(cfg)
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()
	t.Cleanup(func() {
		_ = srv.Close()
		<-served
	})

	conn, err := grpc.NewClient("unix://"+cfg.SocketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{
		srv:    srv,
		client: sysprintv1.NewComparisonClient(conn),
		drop:   t.TempDir(),
		socket: cfg.SocketPath,
	}
}

func (h *harness) upload(t *testing.T, id string, files ...archivetest.File) *sysprintv1.Project {
	t.Helper()
	path := archivetest.WriteFile(t, filepath.Join(h.drop, id+".tar.gz"), "web-01", files...)
	p, err := h.client.Upload(context.Background(), &sysprintv1.UploadRequest{Path: path, ProjectID: id})
	require.NoError(t, err)
	return p
}

func (h *harness) uploadPair(t *testing.T) {
	t.Helper()
	h.upload(t, "before",
		archivetest.Dir("/etc"),
		archivetest.Regular("/etc/app.conf", "port=80\n", true),
		archivetest.Regular("/etc/hosts", "127.0.0.1 localhost\n", false),
	)
	h.upload(t, "after",
		archivetest.Dir("/etc"),
		archivetest.Regular("/etc/app.conf", "port=8080\n", true),
		archivetest.Regular("/etc/new.conf", "fresh\n", true),
	)
}

func TestServiceUploadListGet(t *testing.T) {
	h := startServer(t)
	ctx := context.Background()

	p := h.upload(t, "before",
		archivetest.Dir("/etc"),
		archivetest.Regular("/etc/app.conf", "port=80\n", true),
	)
	assert.Equal(t, "before", p.ID)
	assert.Equal(t, "web-01", p.Host)
	assert.Equal(t, 1, p.Summary.TotalFiles)
	assert.Equal(t, 1, p.Summary.ArchivedFiles)

	list, err := h.client.List(ctx, &sysprintv1.ListRequest{})
	require.NoError(t, err)
	require.Len(t, list.Projects, 1)
	assert.Equal(t, "before", list.Projects[0].ID)

	got, err := h.client.Get(ctx, &sysprintv1.GetRequest{ID: "before"})
	require.NoError(t, err)
	assert.Equal(t, p.Size, got.Size)
	assert.True(t, got.Created.Equal(archivetest.Created))
	assert.False(t, got.LastAccess.Before(got.StoredAt))
}

func TestServiceCompare(t *testing.T) {
	h := startServer(t)
	h.uploadPair(t)

	resp, err := h.client.Compare(context.Background(), &sysprintv1.CompareRequest{Source: "before", Target: "after"})
	require.NoError(t, err)
	assert.Equal(t, "before", resp.Source.Name)
	assert.Equal(t, "after", resp.Target.Name)
	assert.Equal(t, []string{"/etc/new.conf"}, resp.Diff.Paths("added"))
	assert.Equal(t, []string{"/etc/hosts"}, resp.Diff.Paths("removed"))
	assert.Equal(t, []string{"/etc/app.conf"}, resp.Diff.Paths("changed"))
	assert.False(t, resp.ComparedAt.IsZero())

	hidden, err := h.client.Compare(context.Background(), &sysprintv1.CompareRequest{
		Source: "before", Target: "after", Hide: []string{"/etc/hosts"},
	})
	require.NoError(t, err)
	assert.Zero(t, hidden.Diff.Counts.Removed)
	assert.Equal(t, 1, hidden.Diff.Counts.Hidden)

	result := resp.Result()
	assert.Equal(t, 3, len(result.Entries()))
}

func TestServiceFileDiff(t *testing.T) {
	h := startServer(t)
	h.uploadPair(t)
	ctx := context.Background()

	fd, err := h.client.FileDiff(ctx, &sysprintv1.FileDiffRequest{Source: "before", Target: "after", Path: "/etc/app.conf"})
	require.NoError(t, err)
	assert.Equal(t, compare.Modified, fd.Type)
	assert.True(t, fd.Diffable)
	assert.Contains(t, fd.Unified, "+port=8080")
	require.NotEmpty(t, fd.Script)

	fd, err = h.client.FileDiff(ctx, &sysprintv1.FileDiffRequest{Source: "before", Target: "after", Path: "/etc/hosts"})
	require.NoError(t, err, "undiffable content is a result, not an error")
	assert.Equal(t, compare.Deleted, fd.Type)
	assert.False(t, fd.Diffable)
	assert.NotEmpty(t, fd.Reason)

	_, err = h.client.FileDiff(ctx, &sysprintv1.FileDiffRequest{Source: "before", Target: "after", Path: "/nope"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServiceExport(t *testing.T) {
	h := startServer(t)
	h.uploadPair(t)
	ctx := context.Background()

	resp, err := h.client.Export(ctx, &sysprintv1.ExportRequest{Source: "before", Target: "after", Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "csv", resp.Format)
	assert.True(t, strings.HasPrefix(resp.Data, "Change Type,File Path,Size Before,Size After,Hash Before,Hash After\n"))

	resp, err = h.client.Export(ctx, &sysprintv1.ExportRequest{Source: "before", Target: "after"})
	require.NoError(t, err)
	assert.Equal(t, "json", resp.Format)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Data), &doc))
	assert.Contains(t, doc, "statistics")

	_, err = h.client.Export(ctx, &sysprintv1.ExportRequest{Source: "before", Target: "after", Format: "xml"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServiceDelete(t *testing.T) {
	h := startServer(t)
	h.uploadPair(t)
	ctx := context.Background()

	resp, err := h.client.Delete(ctx, &sysprintv1.DeleteRequest{ID: "after"})
	require.NoError(t, err)
	assert.Equal(t, "after", resp.ID)

	_, err = h.client.Get(ctx, &sysprintv1.GetRequest{ID: "after"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = h.client.Delete(ctx, &sysprintv1.DeleteRequest{ID: "after"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServiceUploadErrors(t *testing.T) {
	h := startServer(t, func(c *daemon.Config) { c.Repository.MaxUploadSize = 16 })
	ctx := context.Background()

	big := archivetest.WriteFile(t, filepath.Join(h.drop, "big.tar.gz"), "web-01",
		archivetest.Regular("/etc/app.conf", strings.Repeat("x", 4096), true))
	_, err := h.client.Upload(ctx, &sysprintv1.UploadRequest{Path: big, ProjectID: "big"})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	junk := filepath.Join(h.drop, "junk.tar.gz")
	require.NoError(t, os.WriteFile(junk, []byte("junk"), 0o644))
	_, err = h.client.Upload(ctx, &sysprintv1.UploadRequest{Path: junk, ProjectID: "junk"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.Upload(ctx, &sysprintv1.UploadRequest{Path: "relative.tar.gz"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.Upload(ctx, &sysprintv1.UploadRequest{Path: junk, ProjectID: "../escape"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.Upload(ctx, &sysprintv1.UploadRequest{Path: filepath.Join(h.drop, "absent.tar.gz")})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServiceCompareUnknownProject(t *testing.T) {
	h := startServer(t)

	_, err := h.client.Compare(context.Background(), &sysprintv1.CompareRequest{Source: "a", Target: "b"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServiceStatus(t *testing.T) {
	h := startServer(t)
	h.uploadPair(t)

	st, err := h.client.Status(context.Background(), &sysprintv1.StatusRequest{})
	require.NoError(t, err)
	assert.True(t, st.Healthy)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.Equal(t, "test", st.Version)
	assert.Equal(t, 2, st.Projects)
}

func TestServiceWatchProjects(t *testing.T) {
	h := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := h.client.WatchProjects(ctx, &sysprintv1.WatchRequest{})
	require.NoError(t, err)

	// The subscription is made when the server handles the stream; poll
	// until it is registered.
	require.Eventually(t, func() bool {
		st, err := h.client.Status(ctx, &sysprintv1.StatusRequest{})
		return err == nil && st.Subscribers == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.upload(t, "web-01", archivetest.Dir("/etc"))

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "uploaded", ev.Type)
	assert.Equal(t, "web-01", ev.ProjectID)
}

func TestServiceShutdown(t *testing.T) {
	h := startServer(t)

	resp, err := h.client.Shutdown(context.Background(), &sysprintv1.ShutdownRequest{})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Message)

	select {
	case <-h.srv.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed after shutdown request")
	}
}
