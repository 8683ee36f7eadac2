package process

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/dbnest/dbnest/internal/sentinel"
)

// ErrAlreadyStarted is returned when Start is called on a process that is
// already running. Callers must Stop before starting again.
const ErrAlreadyStarted = sentinel.Error("process already started")

// ErrNilCmd is returned when SetupAndStart receives a nil *exec.Cmd.
const ErrNilCmd = sentinel.Error("cmd must not be nil")

// ErrEmptyCmdPath is returned when SetupAndStart receives an empty cmd.Path.
const ErrEmptyCmdPath = sentinel.Error("cmd.Path must not be empty")

// ErrEmptyDataDir is returned when SetupAndStart receives an empty data directory.
const ErrEmptyDataDir = sentinel.Error("data directory must not be empty")

// BaseProcess provides common child-process lifecycle management. Embed it
// in a concrete process type to reuse the start/stop/close plumbing.
//
// BaseProcess is not safe for concurrent use; callers serialize access to
// all methods.
type BaseProcess struct {
	cmd         *exec.Cmd
	waitDone    <-chan error    // receives the single cmd.Wait result
	exited      <-chan struct{} // closed on process exit; multi-reader
	logFiles    LogFiles
	name        string
	log         *slog.Logger
	stopTimeout time.Duration // auto-stop timeout in Close; zero uses DefaultStopTimeout
}

// NewBaseProcess creates a BaseProcess. A nil logger defaults to
// slog.Default(). Panics on an empty name, which would make every later log
// and error message useless.
func NewBaseProcess(name string, logger *slog.Logger, stopTimeout time.Duration) BaseProcess {
	if name == "" {
		panic("dbnest: process name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return BaseProcess{name: name, log: logger, stopTimeout: stopTimeout}
}

// IsStarted reports whether the process has been started and not yet stopped.
func (b *BaseProcess) IsStarted() bool {
	return b.cmd != nil
}

// PID returns the started process's pid, or 0 when not running.
func (b *BaseProcess) PID() int {
	if b.cmd == nil || b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// Logger returns the logger used by this process.
func (b *BaseProcess) Logger() *slog.Logger {
	return b.log
}

// Exited returns a channel closed when the process exits, or nil when the
// process has not been started. Safe to select on from multiple goroutines.
func (b *BaseProcess) Exited() <-chan struct{} {
	return b.exited
}

// SetupAndStart wires output capture, starts the command, and launches the
// single goroutine that owns cmd.Wait. Returns ErrAlreadyStarted when a
// process is already running.
func (b *BaseProcess) SetupAndStart(cmd *exec.Cmd, dataDir string) error {
	if cmd == nil {
		return ErrNilCmd
	}
	if cmd.Path == "" {
		return ErrEmptyCmdPath
	}
	if dataDir == "" {
		return ErrEmptyDataDir
	}
	if b.cmd != nil {
		return ErrAlreadyStarted
	}

	cmd.Dir = dataDir
	configureSysProcAttr(cmd)

	logFiles, err := StartCmd(cmd, dataDir, b.name)
	if err != nil {
		return fmt.Errorf("start command: %w", err)
	}
	b.cmd = cmd
	b.logFiles = logFiles

	// cmd.Wait must be called exactly once per started process. The done
	// channel delivers its result to Stop; exited broadcasts the exit to
	// readiness pollers.
	done := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		done <- cmd.Wait()
		close(exited)
	}()
	b.waitDone = done
	b.exited = exited

	return nil
}

// Stop terminates the process with the given timeout. After Stop returns,
// IsStarted reports false whether or not the stop succeeded — the process
// is no longer in a known-running state either way. Safe to call when no
// process is running.
func (b *BaseProcess) Stop(timeout time.Duration) error {
	if b.cmd == nil || b.cmd.Process == nil {
		b.cmd = nil
		b.waitDone = nil
		b.exited = nil
		return nil
	}
	pid := b.cmd.Process.Pid
	err := stopWithDone(b.cmd, b.waitDone, timeout, b.name)
	if err != nil {
		b.log.Warn("process stop failed; process may be orphaned",
			"process", b.name, "pid", pid, "error", err)
	}
	b.cmd = nil
	b.waitDone = nil
	b.exited = nil
	return err
}

// Close closes the output capture files. If the process is still running,
// Close stops it first as a safety net; callers should normally Stop before
// Close.
func (b *BaseProcess) Close() {
	if b.cmd != nil {
		b.log.Warn("process.Close called without Stop; stopping automatically",
			"process", b.name)
		timeout := b.stopTimeout
		if timeout <= 0 {
			timeout = DefaultStopTimeout
		}
		if err := b.Stop(timeout); err != nil {
			b.log.Warn("auto-stop during Close failed",
				"process", b.name, "error", err)
		}
	}
	b.logFiles.Close()
}
