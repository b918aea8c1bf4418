// Package client provides a client for connecting to the sysprintd daemon.
// It wraps the gRPC client with convenience methods and manages the daemon
// process.
package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	sysprintv1 "github.com/jamesainslie/sysprint/pkg/api/sysprint/v1"
	"github.com/jamesainslie/sysprint/pkg/daemon/lifecycle"
	"github.com/jamesainslie/sysprint/pkg/sysprint/compare"
	"github.com/jamesainslie/sysprint/pkg/sysprint/config"
	"github.com/jamesainslie/sysprint/pkg/sysprint/output"
	"github.com/jamesainslie/sysprint/pkg/sysprint/textdiff"
)

const (
	startTimeout = 5 * time.Second
	stopTimeout  = 5 * time.Second
	pollInterval = 100 * time.Millisecond
)

// Client connects to the sysprintd daemon via gRPC.
type Client struct {
	conn   *grpc.ClientConn
	client *sysprintv1.ComparisonClient
}

// DefaultSocketPath returns the default Unix socket path for sysprintd.
func DefaultSocketPath() string {
	return config.DefaultSocketPath()
}

// DefaultPIDPath returns the default PID file path for sysprintd.
func DefaultPIDPath() string {
	return config.DefaultPIDPath()
}

// DaemonPaths configures paths for daemon operations.
// Empty fields use defaults.
type DaemonPaths struct {
	Binary   string // Path to sysprintd binary (auto-discovered if empty)
	Socket   string // Unix socket path
	PID      string // PID file path
	Settings string // Settings file passed to the daemon
}

// withDefaults returns a copy with empty fields filled with defaults.
func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.Socket == "" {
		p.Socket = DefaultSocketPath()
	}
	if p.PID == "" {
		p.PID = DefaultPIDPath()
	}
	return p
}

// PathsFromSettings builds DaemonPaths from the daemon section of settings.
func PathsFromSettings(s *config.Settings, settingsFile string) DaemonPaths {
	return DaemonPaths{
		Binary:   s.Daemon.BinaryPath,
		Socket:   s.Daemon.SocketPath,
		PID:      s.Daemon.PIDPath,
		Settings: settingsFile,
	}.withDefaults()
}

// args returns the sysprintd command line for these paths.
func (p DaemonPaths) args() []string {
	args := []string{"--socket", p.Socket, "--pid", p.PID}
	if p.Settings != "" {
		args = append(args, "--settings", p.Settings)
	}
	return args
}

// Connect establishes a connection to the sysprintd daemon.
// Uses a default timeout of 5 seconds.
func Connect(socketPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, socketPath)
}

// ConnectWithContext establishes a connection to the sysprintd daemon with a custom context.
func ConnectWithContext(ctx context.Context, socketPath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon socket not found at %s", socketPath)
	}

	//nolint:staticcheck // grpc.DialContext is deprecated but NewClient doesn't support blocking
	conn, err := grpc.DialContext(
		ctx,
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}

	return &Client{
		conn:   conn,
		client: sysprintv1.NewComparisonClient(conn),
	}, nil
}

// Close closes the connection to the daemon.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Upload asks the daemon to store the archive at path under id. An empty
// id lets the daemon generate one. Relative paths are resolved against the
// working directory since the daemon reads the file itself.
func (c *Client) Upload(ctx context.Context, path, id string) (*sysprintv1.Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return c.client.Upload(ctx, &sysprintv1.UploadRequest{Path: abs, ProjectID: id})
}

// List returns every stored project.
func (c *Client) List(ctx context.Context) ([]*sysprintv1.Project, error) {
	resp, err := c.client.List(ctx, &sysprintv1.ListRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// Get returns one stored project.
func (c *Client) Get(ctx context.Context, id string) (*sysprintv1.Project, error) {
	return c.client.Get(ctx, &sysprintv1.GetRequest{ID: id})
}

// Compare diffs two stored projects, dropping entries matching hide.
func (c *Client) Compare(ctx context.Context, source, target string, hide []string) (*output.Result, error) {
	resp, err := c.client.Compare(ctx, &sysprintv1.CompareRequest{Source: source, Target: target, Hide: hide})
	if err != nil {
		return nil, err
	}
	return resp.Result(), nil
}

// FileDiff compares the archived content of path in two stored projects.
func (c *Client) FileDiff(ctx context.Context, source, target, path string, opts textdiff.Options) (*compare.FileDiff, error) {
	return c.client.FileDiff(ctx, &sysprintv1.FileDiffRequest{
		Source:   source,
		Target:   target,
		Path:     path,
		Encoding: opts.Encoding,
		Context:  opts.Context,
	})
}

// Export renders a comparison of two stored projects as json or csv.
func (c *Client) Export(ctx context.Context, source, target, format string) ([]byte, error) {
	resp, err := c.client.Export(ctx, &sysprintv1.ExportRequest{Source: source, Target: target, Format: format})
	if err != nil {
		return nil, err
	}
	return []byte(resp.Data), nil
}

// Delete removes a stored project.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.client.Delete(ctx, &sysprintv1.DeleteRequest{ID: id})
	return err
}

// Status returns the daemon's current status.
func (c *Client) Status(ctx context.Context) (*sysprintv1.StatusResponse, error) {
	return c.client.Status(ctx, &sysprintv1.StatusRequest{})
}

// Shutdown requests the daemon to shut down gracefully.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.client.Shutdown(ctx, &sysprintv1.ShutdownRequest{})
	return err
}

// WatchProjects subscribes to repository events for the given projects,
// or all projects when none are given. The channel is closed when the
// stream ends or ctx is cancelled.
func (c *Client) WatchProjects(ctx context.Context, projects ...string) (<-chan sysprintv1.ProjectEvent, error) {
	stream, err := c.client.WatchProjects(ctx, &sysprintv1.WatchRequest{Projects: projects})
	if err != nil {
		return nil, fmt.Errorf("WatchProjects RPC failed: %w", err)
	}

	events := make(chan sysprintv1.ProjectEvent, 100)
	go func() {
		defer close(events)
		for {
			event, err := stream.Recv()
			if err != nil {
				return // Stream closed or error
			}
			select {
			case events <- *event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// EnsureDaemon ensures the daemon is running, starting it if necessary.
// Idempotent: returns nil if daemon is already running.
func EnsureDaemon(paths DaemonPaths) error {
	return StartDaemon(paths)
}

// StartDaemon starts the sysprintd daemon in the background.
// Idempotent: returns nil if daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find sysprintd: %w", err)
	}

	_ = lifecycle.RemoveStatus(lifecycle.StatusPath(paths.Socket))

	// Use exec.Command (not CommandContext) intentionally: daemon must outlive caller
	cmd := exec.Command(binary, paths.args()...) //nolint:gosec // binary path is validated
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	return lifecycle.WaitReady(ctx, paths.Socket, pollInterval)
}

// StopDaemon stops the daemon gracefully via RPC.
// Idempotent: returns nil if daemon is not running.
func StopDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	pid, running := lifecycle.Running(paths.PID)
	if !running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer client.Close()

	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown daemon: %w", err)
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		time.Sleep(pollInterval)
		if !lifecycle.ProcessRunning(pid) {
			return nil
		}
	}

	return errors.New("daemon did not stop within timeout")
}

// RestartDaemon stops and starts the daemon.
func RestartDaemon(paths DaemonPaths) error {
	if err := StopDaemon(paths); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if err := StartDaemon(paths); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// resolveBinary finds the sysprintd binary path.
// Priority: configured path > same directory as executable > GOBIN/GOPATH > PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), "sysprintd")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if goBinPath := config.DefaultBinaryPath(); goBinPath != "" {
		return goBinPath, nil
	}

	if path, err := exec.LookPath("sysprintd"); err == nil {
		return path, nil
	}

	return "", errors.New("sysprintd not found")
}

// IsDaemonRunning checks if the daemon is running based on the PID file.
func IsDaemonRunning(pidPath string) bool {
	_, running := lifecycle.Running(pidPath)
	return running
}
