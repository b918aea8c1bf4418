package lifecycle

import (
	"os"
	"path/filepath"

	"github.com/jamesainslie/sysprint/pkg/sysprint/logging"
)

// CatalogDir is the catalog database directory inside the data directory.
const CatalogDir = "catalog.db"

// RecoverFromStaleDaemon removes the PID file, socket, status file and
// catalog lock left behind by a daemon that exited without cleaning up.
// It returns ErrDaemonAlreadyRunning if the recorded process is alive, and
// nil when there was nothing to recover.
func RecoverFromStaleDaemon(pidPath, socketPath, dataDir string) error {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return nil //nolint:nilerr // a missing or unreadable PID file leaves nothing to recover
	}

	if ProcessRunning(pid) {
		return ErrDaemonAlreadyRunning
	}

	log := logging.Get("daemon")
	log.Warn("cleaning up stale daemon files", "stale_pid", pid)

	for _, path := range []string{
		pidPath,
		socketPath,
		StatusPath(socketPath),
		filepath.Join(dataDir, CatalogDir, "LOCK"),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove stale file", "path", path, "error", err)
		}
	}

	return nil
}
