// Package daemon implements sysprintd: the project repository served over
// gRPC on a unix socket, with the inbox watcher and the reclaimer running
// alongside.
package daemon

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/grpc"

	sysprintv1 "github.com/jamesainslie/sysprint/pkg/api/sysprint/v1"
	"github.com/jamesainslie/sysprint/pkg/daemon/broadcaster"
	"github.com/jamesainslie/sysprint/pkg/daemon/lifecycle"
	"github.com/jamesainslie/sysprint/pkg/daemon/repository"
	"github.com/jamesainslie/sysprint/pkg/daemon/store"
	"github.com/jamesainslie/sysprint/pkg/daemon/watcher"
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/logging"
)

// Config holds daemon configuration.
type Config struct {
	SocketPath string
	// DataDir holds the catalog database.
	DataDir    string
	Repository config.RepositoryConfig
	Version    string
}

// Server is the sysprintd gRPC server.
type Server struct {
	cfg      Config
	grpc     *grpc.Server
	listener net.Listener

	store       *store.Store
	broadcaster *broadcaster.Broadcaster
	repo        *repository.Repository
	service     *Service
	watcher     *watcher.Watcher

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
	close    sync.Once
}

// NewServer opens the catalog, sets up the repository and listens on the
// socket. Nothing is served until Serve is called.
func NewServer(cfg Config) (*Server, error) {
	log := logging.Get("daemon")

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	if cfg.Repository.URL == "" {
		cfg.Repository.URL = "file://" + filepath.ToSlash(filepath.Join(cfg.DataDir, "projects"))
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, lifecycle.CatalogDir))
	if err != nil {
		return nil, err
	}

	events := broadcaster.New()
	repo := repository.New(st, cfg.Repository, events)

	var w *watcher.Watcher
	if cfg.Repository.InboxDir != "" {
		w, err = watcher.New(cfg.Repository.InboxDir, repo)
		if err != nil {
			events.Close()
			_ = st.Close()
			return nil, err
		}
	}

	// Remove stale socket if exists
	if err := os.RemoveAll(cfg.SocketPath); err != nil {
		closeAll(w, events, st)
		return nil, err
	}

	// Ensure socket directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755); err != nil {
		closeAll(w, events, st)
		return nil, err
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "unix", cfg.SocketPath)
	if err != nil {
		closeAll(w, events, st)
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		cfg:         cfg,
		grpc:        grpc.NewServer(),
		listener:    listener,
		store:       st,
		broadcaster: events,
		repo:        repo,
		watcher:     w,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	srv.service = NewService(repo, events, cfg.Version)
	srv.service.SetShutdownFunc(srv.requestShutdown)

	sysprintv1.RegisterComparisonServer(srv.grpc, srv.service)

	log.Info("daemon configured",
		"socket", cfg.SocketPath,
		"repository", cfg.Repository.URL,
		"inbox", cfg.Repository.InboxDir,
		"retention", cfg.Repository.Retention)
	return srv, nil
}

func closeAll(w *watcher.Watcher, events *broadcaster.Broadcaster, st *store.Store) {
	if w != nil {
		_ = w.Close()
	}
	events.Close()
	_ = st.Close()
}

// Repository returns the project repository the server serves.
func (s *Server) Repository() *repository.Repository {
	return s.repo
}

// Serve starts the background workers and the gRPC server. Blocks until
// stopped.
func (s *Server) Serve() error {
	if s.watcher != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.watcher.Run(s.ctx, nil)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.repo.RunReclaimer(s.ctx, s.cfg.Repository.ReclaimInterval)
	}()

	err := s.grpc.Serve(s.listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Done is closed when a client requests shutdown.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) requestShutdown() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Close stops the server and cleans up.
func (s *Server) Close() error {
	var err error
	s.close.Do(func() {
		s.cancel()
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
		// Ends WatchProjects streams so GracefulStop does not wait on them.
		s.broadcaster.Close()
		s.grpc.GracefulStop()
		s.wg.Wait()

		err = s.store.Close()
		if rmErr := os.RemoveAll(s.cfg.SocketPath); rmErr != nil && err == nil {
			err = rmErr
		}
	})
	return err
}
