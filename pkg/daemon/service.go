package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	sysprintv1 "github.com/jamesainslie/sysprint/pkg/api/sysprint/v1"
	"github.com/jamesainslie/sysprint/pkg/daemon/broadcaster"
	"github.com/jamesainslie/sysprint/pkg/daemon/repository"
	"github.com/jamesainslie/sysprint/pkg/daemon/store"
	"github.com/jamesainslie/sysprint/pkg/sysprint/compare"
	"github.com/jamesainslie/sysprint/pkg/sysprint/logging"
	"github.com/jamesainslie/sysprint/pkg/sysprint/textdiff"
	"github.com/jamesainslie/sysprint/pkg/sysprint/types"
)

// Service implements the sysprint.v1.Comparison gRPC service.
type Service struct {
	sysprintv1.UnimplementedComparisonServer

	repo        *repository.Repository
	broadcaster *broadcaster.Broadcaster
	version     string
	startTime   time.Time

	shutdownOnce sync.Once
	shutdown     func()
}

// NewService creates a new gRPC service over repo. b may be nil, in which
// case WatchProjects is unavailable.
func NewService(repo *repository.Repository, b *broadcaster.Broadcaster, version string) *Service {
	return &Service{
		repo:        repo,
		broadcaster: b,
		version:     version,
		startTime:   time.Now(),
	}
}

// SetShutdownFunc sets the function called once when a client requests
// shutdown.
func (s *Service) SetShutdownFunc(fn func()) {
	s.shutdown = fn
}

// toStatus maps repository and codec errors to gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	switch {
	case errors.Is(err, repository.ErrProjectNotFound),
		errors.Is(err, compare.ErrPathNotFound),
		errors.Is(err, os.ErrNotExist):
		code = codes.NotFound
	case types.IsFormatError(err),
		errors.Is(err, repository.ErrInvalidProjectID),
		errors.Is(err, repository.ErrUnsupportedExtension),
		errors.Is(err, repository.ErrUnsupportedFormat),
		errors.Is(err, textdiff.ErrUnknownEncoding):
		code = codes.InvalidArgument
	case types.IsCapacityError(err):
		code = codes.ResourceExhausted
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

func projectToAPI(p *store.Project) *sysprintv1.Project {
	return &sysprintv1.Project{
		ID:            p.ID,
		Name:          p.Name,
		URL:           p.URL,
		Size:          p.Size,
		Host:          p.Host,
		Platform:      p.Platform,
		Created:       p.Created,
		HashAlgorithm: p.HashAlgorithm,
		Mode:          p.Mode,
		Roots:         p.Roots,
		Summary:       p.Summary,
		StoredAt:      p.StoredAt,
		LastAccess:    p.LastAccess,
	}
}

// Upload stores the archive at req.Path. The path is read by the daemon.
func (s *Service) Upload(ctx context.Context, req *sysprintv1.UploadRequest) (*sysprintv1.Project, error) {
	if req.Path == "" || !filepath.IsAbs(req.Path) {
		return nil, status.Error(codes.InvalidArgument, "upload path must be absolute")
	}
	p, err := s.repo.Upload(ctx, req.Path, req.ProjectID)
	if err != nil {
		logging.Get("daemon").Warn("upload rejected", "path", req.Path, "error", err)
		return nil, toStatus(err)
	}
	return projectToAPI(p), nil
}

// List returns every stored project.
func (s *Service) List(ctx context.Context, _ *sysprintv1.ListRequest) (*sysprintv1.ListResponse, error) {
	projects, err := s.repo.List(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &sysprintv1.ListResponse{Projects: make([]*sysprintv1.Project, 0, len(projects))}
	for _, p := range projects {
		resp.Projects = append(resp.Projects, projectToAPI(p))
	}
	return resp, nil
}

// Get returns one project summary.
func (s *Service) Get(ctx context.Context, req *sysprintv1.GetRequest) (*sysprintv1.Project, error) {
	p, err := s.repo.Get(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return projectToAPI(p), nil
}

// Compare diffs two stored projects.
func (s *Service) Compare(ctx context.Context, req *sysprintv1.CompareRequest) (*sysprintv1.CompareResponse, error) {
	res, err := s.repo.Compare(ctx, req.Source, req.Target, req.Hide)
	if err != nil {
		return nil, toStatus(err)
	}
	return &sysprintv1.CompareResponse{
		Source:     res.Source,
		Target:     res.Target,
		ComparedAt: res.ComparedAt,
		Diff:       res.Diff,
	}, nil
}

// FileDiff compares the archived content of one path. Undiffable content
// is reported in the response, not as an error.
func (s *Service) FileDiff(ctx context.Context, req *sysprintv1.FileDiffRequest) (*compare.FileDiff, error) {
	opts := textdiff.Options{Encoding: req.Encoding, Context: req.Context}
	fd, err := s.repo.FileDiff(ctx, req.Source, req.Target, req.Path, opts)
	if err != nil {
		return nil, toStatus(err)
	}
	return fd, nil
}

// Export renders a comparison as json or csv.
func (s *Service) Export(ctx context.Context, req *sysprintv1.ExportRequest) (*sysprintv1.ExportResponse, error) {
	format := req.Format
	if format == "" {
		format = "json"
	}
	data, err := s.repo.Export(ctx, req.Source, req.Target, format)
	if err != nil {
		return nil, toStatus(err)
	}
	return &sysprintv1.ExportResponse{Format: format, Data: string(data)}, nil
}

// Delete removes a stored project.
func (s *Service) Delete(ctx context.Context, req *sysprintv1.DeleteRequest) (*sysprintv1.DeleteResponse, error) {
	if err := s.repo.Delete(ctx, req.ID); err != nil {
		return nil, toStatus(err)
	}
	return &sysprintv1.DeleteResponse{ID: req.ID}, nil
}

// Status returns daemon health information.
func (s *Service) Status(_ context.Context, _ *sysprintv1.StatusRequest) (*sysprintv1.StatusResponse, error) {
	count, err := s.repo.Count()
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &sysprintv1.StatusResponse{
		Healthy:       true,
		PID:           os.Getpid(),
		Version:       s.version,
		StartedAt:     s.startTime,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Projects:      count,
	}
	if s.broadcaster != nil {
		resp.Subscribers = s.broadcaster.SubscriberCount()
	}
	return resp, nil
}

// Shutdown asks the daemon to stop. The reply is sent before the server
// begins its graceful stop.
func (s *Service) Shutdown(_ context.Context, _ *sysprintv1.ShutdownRequest) (*sysprintv1.ShutdownResponse, error) {
	if s.shutdown == nil {
		return nil, status.Error(codes.Unavailable, "shutdown not available")
	}
	logging.Get("daemon").Info("shutdown requested")
	s.shutdownOnce.Do(func() {
		go s.shutdown()
	})
	return &sysprintv1.ShutdownResponse{Message: "shutting down"}, nil
}

// WatchProjects streams project events until the client disconnects or the
// daemon stops.
func (s *Service) WatchProjects(req *sysprintv1.WatchRequest, stream sysprintv1.EventSender) error {
	if s.broadcaster == nil {
		return status.Error(codes.Unavailable, "project watching not available")
	}

	sub := s.broadcaster.Subscribe(req.Projects...)
	if sub == nil {
		return status.Error(codes.Unavailable, "failed to subscribe")
	}
	defer s.broadcaster.Unsubscribe(sub.ID)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if err := stream.Send(&sysprintv1.ProjectEvent{
				Type:      event.Type.String(),
				ProjectID: event.ProjectID,
				Time:      event.Time,
			}); err != nil {
				return err
			}
		}
	}
}
