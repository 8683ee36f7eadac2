// Package engineexec runs a pre-built database engine binary as a child
// process. The engine serves a unix domain socket inside the data directory;
// dbnest's socket server relays TCP client traffic to it.
package engineexec

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dbnest/dbnest/engine"
	"github.com/dbnest/dbnest/internal/process"
)

// SocketFileName is the fixed name of the engine's unix socket inside the
// data directory.
const SocketFileName = "engine.sock"

// readinessPollInterval is the interval between consecutive dial attempts
// while waiting for the engine socket to accept connections.
const readinessPollInterval = 10 * time.Millisecond

// readinessDialTimeout is the per-attempt timeout for the readiness dial.
// Generous for a local socket; early attempts fail immediately with
// connection-refused while the engine is still starting.
const readinessDialTimeout = time.Second

// Compile-time interface satisfaction checks.
var (
	_ engine.Opener = (*Opener)(nil)
	_ engine.Engine = (*Engine)(nil)
)

// Opener launches engine processes. It implements engine.Opener.
type Opener struct {
	// Binary is the engine executable, resolved via PATH when not absolute.
	Binary string
	// ReadyTimeout bounds the wait for the engine socket to accept
	// connections after launch.
	ReadyTimeout time.Duration
	// StopTimeout bounds the SIGTERM-then-SIGKILL stop sequence on Close.
	StopTimeout time.Duration
	// Logger is optional and defaults to slog.Default().
	Logger *slog.Logger
}

// Engine is a handle to a running engine process.
type Engine struct {
	base        process.BaseProcess
	socketPath  string
	stopTimeout time.Duration
	log         *slog.Logger
}

// Open launches the engine over dataDir and waits until its socket accepts
// connections. Construction failures are terminal: the half-started process
// is stopped and the error is returned to the caller with no retry.
func (o *Opener) Open(ctx context.Context, dataDir string, tuning engine.Tuning) (engine.Engine, error) {
	if o.Binary == "" {
		return nil, errors.New("engine binary path must not be empty")
	}
	if dataDir == "" {
		return nil, errors.New("data dir must not be empty")
	}

	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	readyTimeout := o.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = 30 * time.Second
	}
	stopTimeout := o.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = process.DefaultStopTimeout
	}

	socketPath := filepath.Join(dataDir, SocketFileName)
	// A socket file left behind by a crashed engine would make the new
	// bind fail.
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale engine socket %s: %w", socketPath, err)
	}

	args := []string{
		"serve",
		"--data-dir", dataDir,
		"--unix-socket", socketPath,
		"--workers", strconv.Itoa(tuning.Workers),
		"--pool-size", strconv.Itoa(tuning.PoolSize),
		"--cache-mb", strconv.Itoa(tuning.CacheSizeMB),
	}

	e := &Engine{
		base:        process.NewBaseProcess("engine", log, stopTimeout),
		socketPath:  socketPath,
		stopTimeout: stopTimeout,
		log:         log,
	}

	// ctx bounds construction only. The child must not inherit it: a
	// CommandContext watchdog would kill the engine the moment the caller
	// cancels its startup deadline. The stop sequence owns the child's
	// lifetime.
	cmd := exec.Command(o.Binary, args...)
	if err := e.base.SetupAndStart(cmd, dataDir); err != nil {
		return nil, fmt.Errorf("start engine process: %w", err)
	}

	if err := e.waitReady(ctx, readyTimeout); err != nil {
		if stopErr := e.Close(context.Background()); stopErr != nil {
			log.Warn("stop engine after failed readiness wait", "error", stopErr)
		}
		return nil, err
	}

	log.Debug("engine ready", "socket", socketPath, "pid", e.base.PID())
	return e, nil
}

// waitReady polls the engine socket until it accepts a connection. The wait
// aborts early if the engine process exits, so a crash-on-start does not
// burn the full timeout.
func (e *Engine) waitReady(ctx context.Context, timeout time.Duration) error {
	return process.WaitReady(ctx, process.WaitReadyConfig{
		Interval:      readinessPollInterval,
		Timeout:       timeout,
		Name:          "engine",
		Logger:        e.log,
		ProcessExited: e.base.Exited(),
	}, func(_ context.Context, _ int) (bool, error) {
		conn, err := net.DialTimeout("unix", e.socketPath, readinessDialTimeout)
		if err != nil {
			return false, nil
		}
		_ = conn.Close()
		return true, nil
	})
}

// Addr implements engine.Engine.
func (e *Engine) Addr() (network, addr string) {
	return "unix", e.socketPath
}

// PID returns the engine process id, or 0 when not running.
func (e *Engine) PID() int {
	return e.base.PID()
}

// Close implements engine.Engine. The stop sequence sends SIGTERM and
// escalates to SIGKILL; an exit caused by either signal is the engine's
// expected termination and is not reported as an error.
func (e *Engine) Close(ctx context.Context) error {
	timeout := e.stopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}

	err := e.base.Stop(timeout)
	e.base.Close()
	if err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	return nil
}
