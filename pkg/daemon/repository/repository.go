// Package repository stores uploaded project archives for sysprintd and
// serves comparisons between them.
//
// Archives are kept as blobs behind an afs storage URL and catalogued in
// the badger store. Every project has its own RWMutex: uploads, deletes and
// reclamation take the write lock, reads take the read lock.
package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/jamesainslie/sysprint/pkg/daemon/broadcaster"
	"github.com/jamesainslie/sysprint/pkg/daemon/store"
	"github.com/jamesainslie/sysprint/pkg/sysprint/archive"
	"github.com/jamesainslie/sysprint/pkg/sysprint/compare"
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/diff"
	"github.com/jamesainslie/sysprint/pkg/sysprint/logging"
	"github.com/jamesainslie/sysprint/pkg/sysprint/output"
	"github.com/jamesainslie/sysprint/pkg/sysprint/textdiff"
	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

// diffCacheTTL bounds how long a cached comparison is kept.
const diffCacheTTL = 24 * time.Hour

var (
	// ErrProjectNotFound is returned for an id with no stored archive.
	ErrProjectNotFound = errors.New("project not found")

	// ErrInvalidProjectID is returned for ids that cannot name a blob.
	ErrInvalidProjectID = errors.New("invalid project id")

	// ErrUnsupportedExtension is returned for uploads that are not tar files.
	ErrUnsupportedExtension = errors.New("archive must end in .tar, .tar.gz, .tgz or .gz")

	// ErrUnsupportedFormat is returned by Export for formats other than
	// json and csv.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Repository is the project store of sysprintd.
type Repository struct {
	store     *store.Store
	fs        afs.Service
	baseURL   string
	maxUpload int64
	retention time.Duration
	locks     *lockTable
	events    *broadcaster.Broadcaster
	log       *logging.Logger

	// now is replaced in tests.
	now func() time.Time
}

// New returns a repository over st that keeps blobs under cfg.URL.
// events may be nil.
func New(st *store.Store, cfg config.RepositoryConfig, events *broadcaster.Broadcaster) *Repository {
	maxUpload := cfg.MaxUploadSize.Int64()
	if maxUpload <= 0 {
		maxUpload = config.DefaultMaxUploadSize
	}
	return &Repository{
		store:     st,
		fs:        afs.New(),
		baseURL:   cfg.URL,
		maxUpload: maxUpload,
		retention: cfg.Retention,
		locks:     newLockTable(),
		events:    events,
		log:       logging.Get("repository"),
		now:       time.Now,
	}
}

// ValidateID checks a caller-supplied project id. An empty id is replaced
// with a generated one.
func ValidateID(id string) (string, error) {
	if id == "" {
		return uuid.New().String(), nil
	}
	if !idPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidProjectID, id)
	}
	return id, nil
}

// Extensions lists the accepted archive file extensions, longest first.
// Plain and gzip-compressed tars are both read.
var Extensions = []string{".tar.gz", ".tgz", ".gz", ".tar"}

// IDFromPath derives a project id from an archive file name.
func IDFromPath(path string) string {
	name := filepath.Base(path)
	for _, ext := range Extensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// SupportedExtension reports whether path ends in one of Extensions.
func SupportedExtension(path string) bool {
	for _, ext := range Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func (r *Repository) blobURL(id string) string {
	return url.Join(r.baseURL, id+".tar.gz")
}

func (r *Repository) notify(t broadcaster.EventType, id string) {
	if r.events != nil {
		r.events.Notify(t, id)
	}
}

func notFound(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return err
}

// Upload validates the archive at path and stores it as project id,
// replacing any project of the same id. Oversized archives are rejected
// with a *types.CapacityError before they are read.
func (r *Repository) Upload(ctx context.Context, path, id string) (*store.Project, error) {
	id, err := ValidateID(id)
	if err != nil {
		return nil, err
	}
	if !SupportedExtension(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, filepath.Base(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if info.Size() > r.maxUpload {
		return nil, &types.CapacityError{Size: info.Size(), Limit: r.maxUpload}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > r.maxUpload {
		return nil, &types.CapacityError{Size: int64(len(data)), Limit: r.maxUpload}
	}

	a, err := archive.OpenBytes(filepath.Base(path), data)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.lock(id)
	defer unlock()

	blob := r.blobURL(id)
	if err := r.fs.Upload(ctx, blob, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("storing archive: %w", err)
	}

	now := r.now()
	h := a.Manifest.Header
	p := &store.Project{
		ID:            id,
		Name:          filepath.Base(path),
		URL:           blob,
		Size:          int64(len(data)),
		Host:          h.Host,
		Platform:      h.Platform,
		Created:       h.Created,
		HashAlgorithm: h.HashAlgorithm,
		Mode:          h.Config.Mode.String(),
		Roots:         h.Config.Paths.Scan,
		Summary:       a.Manifest.Summary(),
		StoredAt:      now,
		LastAccess:    now,
	}
	if err := r.store.PutProject(p); err != nil {
		return nil, fmt.Errorf("cataloguing %s: %w", id, err)
	}
	if n, err := r.store.InvalidateDiffs(id); err != nil {
		r.log.Warn("failed to invalidate cached diffs", "project", id, "error", err)
	} else if n > 0 {
		r.log.Debug("invalidated cached diffs", "project", id, "count", n)
	}

	r.log.Info("project uploaded", "project", id, "host", p.Host, "files", p.Summary.TotalFiles, "size", p.Size)
	r.notify(broadcaster.EventUploaded, id)
	return p, nil
}

// List returns every stored project, oldest upload first.
func (r *Repository) List(ctx context.Context) ([]*store.Project, error) {
	return r.store.ListProjects()
}

// Count returns the number of stored projects.
func (r *Repository) Count() (int, error) {
	return r.store.CountProjects()
}

// Get returns the catalog record of id and marks it accessed.
func (r *Repository) Get(ctx context.Context, id string) (*store.Project, error) {
	unlock := r.locks.rlock(id)
	defer unlock()

	return r.get(id)
}

// get loads and touches id. The caller holds a lock on id.
func (r *Repository) get(id string) (*store.Project, error) {
	p, err := r.store.GetProject(id)
	if err != nil {
		return nil, notFound(id, err)
	}
	now := r.now()
	if err := r.store.TouchProject(id, now); err != nil {
		return nil, notFound(id, err)
	}
	p.LastAccess = now
	return p, nil
}

// open downloads and opens the archive of p. The caller holds a lock on p.
func (r *Repository) open(ctx context.Context, p *store.Project) (*archive.Archive, error) {
	data, err := r.fs.DownloadWithURL(ctx, p.URL)
	if err != nil {
		return nil, fmt.Errorf("loading archive %s: %w", p.ID, err)
	}
	return archive.OpenBytes(p.ID, data)
}

// Open returns the stored archive of id.
func (r *Repository) Open(ctx context.Context, id string) (*archive.Archive, error) {
	unlock := r.locks.rlock(id)
	defer unlock()

	p, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return r.open(ctx, p)
}

func side(p *store.Project) output.Side {
	return output.Side{
		Name:          p.ID,
		Host:          p.Host,
		Created:       p.Created,
		Platform:      p.Platform,
		HashAlgorithm: p.HashAlgorithm,
		Mode:          p.Mode,
	}
}

// Compare diffs source against target. Results are cached per ordered
// pair; hide patterns are applied to the cached result.
func (r *Repository) Compare(ctx context.Context, source, target string, hide []string) (*output.Result, error) {
	unlock := r.locks.rlock(source, target)
	defer unlock()

	return r.compare(ctx, source, target, hide)
}

func (r *Repository) compare(ctx context.Context, source, target string, hide []string) (*output.Result, error) {
	sp, err := r.get(source)
	if err != nil {
		return nil, err
	}
	tp, err := r.get(target)
	if err != nil {
		return nil, err
	}

	result, hit, err := r.store.GetDiff(source, target)
	if err != nil {
		r.log.Warn("diff cache read failed", "source", source, "target", target, "error", err)
		hit = false
	}
	if !hit {
		sa, err := r.open(ctx, sp)
		if err != nil {
			return nil, err
		}
		ta, err := r.open(ctx, tp)
		if err != nil {
			return nil, err
		}
		result = diff.Compare(sa.Manifest, ta.Manifest)
		if err := r.store.PutDiff(source, target, result, diffCacheTTL); err != nil {
			r.log.Warn("diff cache write failed", "source", source, "target", target, "error", err)
		}
	}

	if len(hide) > 0 {
		result, err = result.Hide(hide)
		if err != nil {
			return nil, err
		}
	}

	r.log.Debug("compared projects", "source", source, "target", target, "cached", hit,
		"added", result.Counts.Added, "removed", result.Counts.Removed, "changed", result.Counts.Changed)
	res := &output.Result{
		Source:     side(sp),
		Target:     side(tp),
		Diff:       result,
		ComparedAt: r.now(),
	}
	res.Warnings = output.Warnings(res.Source, res.Target)
	return res, nil
}

// FileDiff compares the archived content of path in source and target.
func (r *Repository) FileDiff(ctx context.Context, source, target, path string, opts textdiff.Options) (*compare.FileDiff, error) {
	unlock := r.locks.rlock(source, target)
	defer unlock()

	sp, err := r.get(source)
	if err != nil {
		return nil, err
	}
	tp, err := r.get(target)
	if err != nil {
		return nil, err
	}
	sa, err := r.open(ctx, sp)
	if err != nil {
		return nil, err
	}
	ta, err := r.open(ctx, tp)
	if err != nil {
		return nil, err
	}
	return compare.Files(sa, ta, path, opts)
}

// Export renders the comparison of source and target as json or csv.
func (r *Repository) Export(ctx context.Context, source, target, format string) ([]byte, error) {
	if format != "json" && format != "csv" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	f, err := output.Get(format)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.rlock(source, target)
	defer unlock()

	result, err := r.compare(ctx, source, target, nil)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := f.Format(&buf, result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Delete removes project id with its blob and cached comparisons.
func (r *Repository) Delete(ctx context.Context, id string) error {
	unlock := r.locks.lock(id)
	defer unlock()

	p, err := r.store.GetProject(id)
	if err != nil {
		return notFound(id, err)
	}
	if err := r.remove(ctx, p); err != nil {
		return err
	}

	r.log.Info("project deleted", "project", id)
	r.notify(broadcaster.EventDeleted, id)
	return nil
}

// remove deletes the blob and catalog entries of p. The caller holds the
// write lock on p.
func (r *Repository) remove(ctx context.Context, p *store.Project) error {
	if ok, _ := r.fs.Exists(ctx, p.URL); ok {
		if err := r.fs.Delete(ctx, p.URL); err != nil {
			return fmt.Errorf("removing archive %s: %w", p.ID, err)
		}
	}
	if err := r.store.DeleteProject(p.ID); err != nil {
		return fmt.Errorf("removing %s from catalog: %w", p.ID, err)
	}
	return nil
}
