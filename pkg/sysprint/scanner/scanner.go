package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/sysprint/pkg/sysprint/archive"
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/hasher"
	"github.com/jamesainslie/sysprint/pkg/sysprint/logging"
	"github.com/jamesainslie/sysprint/pkg/sysprint/manifest"
	"github.com/jamesainslie/sysprint/pkg/sysprint/matcher"
	"github.com/jamesainslie/sysprint/pkg/sysprint/pathset"
	"github.com/jamesainslie/sysprint/pkg/sysprint/tuner"
	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

// specialTypes are entry types that are neither recorded nor hashed.
const specialTypes = fs.ModeDevice | fs.ModeCharDevice | fs.ModeNamedPipe | fs.ModeSocket | fs.ModeIrregular

// Result is the outcome of a scan.
type Result struct {
	Manifest *manifest.Manifest
	Stats    Stats
}

// Stats summarizes a scan.
type Stats struct {
	Roots       []string
	Workers     int
	Directories int64
	Files       int64
	Archived    int64
	Errors      int64
	BytesHashed int64
	Elapsed     time.Duration
}

// root is one validated scan root.
type root struct {
	path   string
	ignore *matcher.Ignore
}

// Scanner walks the configured roots and builds a manifest.
type Scanner struct {
	opts     Options
	cfg      config.ScanConfig
	roots    []root
	rules    *matcher.Rules
	hasher   *hasher.Hasher
	selector *archive.Selector
	workers  int
	queue    int
	log      *logging.Logger

	// Atomic counters for thread-safe progress reporting.
	dirsScanned  atomic.Int64
	filesScanned atomic.Int64
	archived     atomic.Int64
	bytesHashed  atomic.Int64
	errorCount   atomic.Int64

	// currentPath is the path most recently visited (for progress).
	currentPath atomic.Value

	// lastProgress tracks when we last reported progress to avoid excessive callbacks.
	lastProgress atomic.Int64

	walkComplete atomic.Bool
}

// New validates opts and prepares a scanner. Invalid settings and roots that
// are missing, unreadable or not directories fail with *types.ConfigError.
func New(opts Options) (*Scanner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cfg := opts.Config

	rules, err := matcher.NewRules(cfg.Paths.Include, cfg.Paths.Exclude)
	if err != nil {
		return nil, &types.ConfigError{Field: "paths", Err: err}
	}

	h, err := hasher.New(
		hasher.WithAlgorithm(cfg.Performance.HashAlgorithm),
		hasher.WithChunkSize(int(cfg.Performance.HashChunkSize)),
	)
	if err != nil {
		return nil, &types.ConfigError{Field: "performance", Err: err}
	}

	s := &Scanner{
		opts:   opts,
		cfg:    cfg,
		rules:  rules,
		hasher: h,
		log:    logging.Get("scanner"),
	}
	s.currentPath.Store("")

	if cfg.Mode == config.ModeTargeted {
		sel, err := archive.NewSelector(cfg.Archive)
		if err != nil {
			return nil, &types.ConfigError{Field: "archive", Err: err}
		}
		s.selector = sel
	}

	if err := s.resolveRoots(); err != nil {
		return nil, err
	}
	s.sizePool()

	return s, nil
}

// resolveRoots absolutises the configured roots, drops roots nested in
// other roots and loads each root's ignore file.
func (s *Scanner) resolveRoots() error {
	abs := make([]string, 0, len(s.cfg.Paths.Scan))
	for _, p := range s.cfg.Paths.Scan {
		expanded, err := config.ExpandPath(p)
		if err != nil {
			return types.NewConfigError("paths.scan", p, "%v", err)
		}
		a, err := filepath.Abs(expanded)
		if err != nil {
			return types.NewConfigError("paths.scan", p, "%v", err)
		}
		abs = append(abs, filepath.ToSlash(a))
	}

	for _, p := range pathset.Reduce(abs) {
		info, err := os.Stat(filepath.FromSlash(p))
		if err != nil {
			return &types.ConfigError{Field: "paths.scan", Value: p, Err: err}
		}
		if !info.IsDir() {
			return types.NewConfigError("paths.scan", p, "not a directory")
		}

		ig, err := matcher.LoadIgnore(filepath.FromSlash(p), s.cfg.IgnoreFile)
		if err != nil {
			return &types.ConfigError{Field: "ignore_file", Value: s.cfg.IgnoreFile, Err: err}
		}
		s.roots = append(s.roots, root{path: p, ignore: ig})
	}
	return nil
}

// sizePool picks the hashing pool size: the explicit override, the
// configured count, or the tuner's estimate for this host.
func (s *Scanner) sizePool() {
	resources, err := tuner.Detect()
	if err != nil {
		s.log.Debug("resource detection failed", "error", err)
	}

	override := s.opts.Workers
	if override <= 0 {
		override = s.cfg.Performance.Workers
	}
	tuned := tuner.CalculateWithOverrides(resources, s.cfg.Performance.HashChunkSize.Int64(), override)
	s.workers = tuned.HashWorkers
	s.queue = tuned.JobQueueSize
}

// Roots returns the reduced, absolute scan roots.
func (s *Scanner) Roots() []string {
	out := make([]string, len(s.roots))
	for i, r := range s.roots {
		out[i] = r.path
	}
	return out
}

// Workers returns the hashing pool size.
func (s *Scanner) Workers() int {
	return s.workers
}

// Scan walks every root and returns the manifest.
// It blocks until complete or ctx is cancelled, in which case ctx.Err()
// is returned.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	startTime := time.Now()

	header := manifest.NewHeader(s.hasher.Algorithm())
	header.Config = s.cfg
	header.Config.Paths.Scan = s.Roots()

	s.log.Info("scan starting",
		"roots", len(s.roots),
		"mode", s.cfg.Mode.String(),
		"workers", s.workers,
		"algorithm", s.hasher.Algorithm())
	s.reportProgressForce()

	jobs := make(chan job, s.queue)
	shards := make([]*shard, s.workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = newShard()
		wg.Add(1)
		go func(sh *shard) {
			defer wg.Done()
			s.worker(ctx, jobs, sh)
		}(shards[i])
	}

	walkErr := s.walkRoots(ctx, jobs)
	close(jobs)
	wg.Wait()

	s.walkComplete.Store(true)
	s.reportProgressForce()

	if err := ctx.Err(); err != nil {
		s.log.Warn("scan cancelled", "elapsed", time.Since(startTime))
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}

	b := manifest.NewBuilder(header)
	for _, sh := range shards {
		sh.mergeInto(b)
	}
	m := b.Build()

	stats := Stats{
		Roots:       header.Config.Paths.Scan,
		Workers:     s.workers,
		Directories: s.dirsScanned.Load(),
		Files:       s.filesScanned.Load(),
		Archived:    s.archived.Load(),
		Errors:      int64(len(m.Errors())),
		BytesHashed: s.bytesHashed.Load(),
		Elapsed:     time.Since(startTime),
	}
	s.log.Info("scan complete",
		"directories", stats.Directories,
		"files", stats.Files,
		"archived", stats.Archived,
		"errors", stats.Errors,
		"bytes", stats.BytesHashed,
		"elapsed", stats.Elapsed)

	return &Result{Manifest: m, Stats: stats}, nil
}

// walkRoots runs fastwalk over each root in turn.
func (s *Scanner) walkRoots(ctx context.Context, jobs chan<- job) error {
	conf := fastwalk.Config{
		Follow: false, // Don't follow symlinks.
	}

	for _, r := range s.roots {
		err := fastwalk.Walk(&conf, filepath.FromSlash(r.path), s.walkCallback(ctx, r, jobs))
		if err != nil && !errors.Is(err, fastwalk.ErrSkipFiles) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
	return nil
}

// walkCallback returns the callback function for fastwalk.Walk. It runs
// on fastwalk's goroutines and only decides and dispatches; all recording
// happens in the workers.
func (s *Scanner) walkCallback(ctx context.Context, r root, jobs chan<- job) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		// Check for cancellation.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p := filepath.ToSlash(path)
		isRoot := p == r.path

		// A second call for a directory reports its ReadDir failure.
		if err != nil {
			return s.dispatch(ctx, jobs, job{path: p, err: err})
		}

		typ := d.Type()
		isDir := d.IsDir()

		if !isRoot && s.skip(r, p, isDir) {
			if isDir {
				return fastwalk.SkipDir
			}
			return nil
		}

		if typ&specialTypes != 0 {
			s.log.Debug("skipping special file", "path", p, "type", typ.String())
			return nil
		}

		k := manifest.KindRegular
		switch {
		case isDir:
			k = manifest.KindDirectory
		case typ&fs.ModeSymlink != 0:
			k = manifest.KindSymlink
		}
		return s.dispatch(ctx, jobs, job{path: p, kind: k, root: isRoot})
	}
}

// skip applies the exclude rules and the root's ignore file. Directories
// are tested against excludes only; include rules select files.
func (s *Scanner) skip(r root, p string, isDir bool) bool {
	if r.ignore.Ignored(filepath.FromSlash(p), isDir) {
		return true
	}
	if isDir {
		return s.rules.Excluded(p)
	}
	return !s.rules.Included(p)
}

func (s *Scanner) dispatch(ctx context.Context, jobs chan<- job, j job) error {
	select {
	case jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reportProgress calls the progress callback if configured.
// Throttles calls to avoid excessive overhead.
func (s *Scanner) reportProgress() {
	if s.opts.OnProgress == nil {
		return
	}

	// Throttle progress updates to every 10ms.
	now := time.Now().UnixMilli()
	last := s.lastProgress.Load()
	if now-last < 10 {
		return
	}
	if !s.lastProgress.CompareAndSwap(last, now) {
		return // Another goroutine updated it.
	}

	s.sendProgress()
}

// reportProgressForce calls the progress callback immediately, bypassing throttle.
// Use for important state changes like scan start/end.
func (s *Scanner) reportProgressForce() {
	if s.opts.OnProgress == nil {
		return
	}
	s.lastProgress.Store(time.Now().UnixMilli())
	s.sendProgress()
}

// sendProgress sends the current progress to the callback.
func (s *Scanner) sendProgress() {
	currentPath, _ := s.currentPath.Load().(string)

	s.opts.OnProgress(types.ScanProgress{
		DirsScanned:  s.dirsScanned.Load(),
		FilesScanned: s.filesScanned.Load(),
		BytesHashed:  s.bytesHashed.Load(),
		Errors:       s.errorCount.Load(),
		CurrentPath:  currentPath,
		WalkComplete: s.walkComplete.Load(),
	})
}
