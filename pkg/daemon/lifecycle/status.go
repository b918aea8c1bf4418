package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Startup states written to the status file.
const (
	StateReady = "ready"
	StateError = "error"
)

// ErrStartTimeout is returned by WaitReady when the daemon neither opened
// its socket nor reported a failure in time.
var ErrStartTimeout = errors.New("daemon did not become ready within timeout")

// StatusFile reports how daemon startup went to the process that launched it.
type StatusFile struct {
	State  string    `json:"status"`
	PID    int       `json:"pid,omitempty"`
	Socket string    `json:"socket,omitempty"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

// StatusPath returns the status file path that pairs with a socket path.
func StatusPath(socketPath string) string {
	return strings.TrimSuffix(socketPath, ".sock") + ".status"
}

// WriteStatusReady records that the daemon is serving on socketPath.
func WriteStatusReady(path, socketPath string) error {
	return writeStatus(path, &StatusFile{
		State:  StateReady,
		PID:    os.Getpid(),
		Socket: socketPath,
		Time:   time.Now(),
	})
}

// WriteStatusError records that startup failed with err.
func WriteStatusError(path string, err error) error {
	return writeStatus(path, &StatusFile{
		State: StateError,
		Error: err.Error(),
		Time:  time.Now(),
	})
}

func writeStatus(path string, status *StatusFile) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadStatus reads a status file.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status StatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RemoveStatus removes the status file. A missing file is not an error.
func RemoveStatus(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WaitReady polls until the socket appears or the status file reports a
// result. A reported failure is returned as an error.
func WaitReady(ctx context.Context, socketPath string, poll time.Duration) error {
	statusPath := StatusPath(socketPath)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if status, err := ReadStatus(statusPath); err == nil {
			switch status.State {
			case StateReady:
				return nil
			case StateError:
				return fmt.Errorf("daemon failed to start: %s", status.Error)
			}
		}
		if _, err := os.Stat(socketPath); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrStartTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
