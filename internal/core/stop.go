package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dbnest/dbnest/internal/lockstore"
	"github.com/dbnest/dbnest/internal/registry"
)

// StopByDirectory signals the instance that owns dataDir to shut down. The
// pid comes from the directory's lock file; a missing or stale lock yields
// ErrNotRunning. The signal is fire-and-forget: the owning process runs its
// own teardown and this call does not wait for it.
func StopByDirectory(locks *lockstore.Store, dataDir string, log *slog.Logger) error {
	if log == nil {
		log = Logger()
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return fmt.Errorf("resolve data directory %q: %w", dataDir, err)
	}

	rec, err := locks.Inspect(abs)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrNotRunning, abs)
	}

	log.Info("stopping instance by directory", "dir", abs, "pid", rec.PID, "port", rec.Port)
	return signalStop(rec.PID)
}

// StopByPort signals the instance registered on port to shut down. The pid
// comes from the registry; no live entry yields ErrNotFound. When several
// instances ever claimed the same port, the first live registration wins.
func StopByPort(ctx context.Context, reg registry.Store, port int, log *slog.Logger) error {
	if log == nil {
		log = Logger()
	}

	rec, ok, err := reg.FindByPort(ctx, port)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: port %d", ErrNotFound, port)
	}

	log.Info("stopping instance by port", "dir", rec.DataDir, "pid", rec.PID, "port", port)
	return signalStop(rec.PID)
}

// signalStop sends SIGTERM to pid. The target's signal handler funnels into
// the same shutdown path as Instance.Stop.
func signalStop(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}
	return nil
}
