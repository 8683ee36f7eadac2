// Package process manages child process lifecycle for the external engine:
// launching with captured output, readiness polling, and a graceful
// SIGTERM-then-SIGKILL stop sequence that treats signal-caused exits as the
// engine's expected termination rather than a failure.
package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// DefaultStopTimeout is the fallback timeout for stopping a process when no
// explicit stop timeout is configured.
const DefaultStopTimeout = 10 * time.Second

// termGracePeriod is the maximum time to wait for a process to exit after
// SIGTERM before escalating to SIGKILL. Capped at the overall timeout.
const termGracePeriod = 5 * time.Second

// killDrainTimeout bounds waiting on the done channel after SIGKILL was sent
// or the process already exited. SIGKILL cannot be caught, so this is a
// safety net against cmd.Wait never returning.
const killDrainTimeout = 10 * time.Second

// LogFiles manages the stdout/stderr capture files for a process.
type LogFiles struct {
	stdoutFile *os.File
	stderrFile *os.File
	dataDir    string
	stdoutName string
	stderrName string
}

// NewLogFiles creates capture files for a process inside dataDir. The
// processName forms the file names (e.g. "engine" -> "engine-stdout.log").
func NewLogFiles(dataDir, processName string) (LogFiles, error) {
	l := LogFiles{
		dataDir:    dataDir,
		stdoutName: processName + "-stdout.log",
		stderrName: processName + "-stderr.log",
	}
	stdoutFile, err := os.Create(l.StdoutPath())
	if err != nil {
		return LogFiles{}, fmt.Errorf("create stdout log: %w", err)
	}
	stderrFile, err := os.Create(l.StderrPath())
	if err != nil {
		_ = stdoutFile.Close()
		return LogFiles{}, fmt.Errorf("create stderr log: %w", err)
	}
	l.stdoutFile = stdoutFile
	l.stderrFile = stderrFile
	return l, nil
}

// Close closes both capture files and nils them to prevent double-close.
func (l *LogFiles) Close() {
	if l.stdoutFile != nil {
		_ = l.stdoutFile.Close()
		l.stdoutFile = nil
	}
	if l.stderrFile != nil {
		_ = l.stderrFile.Close()
		l.stderrFile = nil
	}
}

// StdoutPath returns the absolute path of the stdout capture file.
func (l *LogFiles) StdoutPath() string {
	return filepath.Join(l.dataDir, l.stdoutName)
}

// StderrPath returns the absolute path of the stderr capture file.
func (l *LogFiles) StderrPath() string {
	return filepath.Join(l.dataDir, l.stderrName)
}

// StartCmd creates capture files, wires them to the command, and starts it.
// On success the caller owns the LogFiles; on failure they are closed here.
func StartCmd(cmd *exec.Cmd, dataDir, processName string) (LogFiles, error) {
	logFiles, err := NewLogFiles(dataDir, processName)
	if err != nil {
		return LogFiles{}, fmt.Errorf("create %s logs: %w", processName, err)
	}

	cmd.Stdout = logFiles.stdoutFile
	cmd.Stderr = logFiles.stderrFile

	if err := cmd.Start(); err != nil {
		logFiles.Close()
		return LogFiles{}, fmt.Errorf("start %s process: %w", processName, err)
	}
	return logFiles, nil
}

// drainDone reads from the done channel with timeout as a hard upper bound.
// Returns true and the cmd.Wait error when the channel delivered in time.
func drainDone(done <-chan error, timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		return true, err
	case <-t.C:
		return false, nil
	}
}

// stopWithDone runs the SIGTERM-then-SIGKILL shutdown sequence against a
// pre-existing done channel whose goroutine owns the single cmd.Wait call.
//
//  1. SIGTERM for graceful shutdown.
//  2. SIGKILL scheduled after a grace period, canceled if the process
//     exits first.
//  3. Wait for exit or the total timeout.
//
// The caller clears cmd and the channel references after this returns.
func stopWithDone(cmd *exec.Cmd, done <-chan error, timeout time.Duration, name string) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if done == nil {
		return fmt.Errorf("%s: done channel must not be nil", name)
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already exited; just collect the wait result.
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out draining process after signal failure", name)
		}
		return expectTerminationExit(waitErr, name)
	}

	// grace is clamped to timeout so SIGKILL always fires while the total
	// timer is still running.
	grace := min(termGracePeriod, timeout)
	killTimer := time.AfterFunc(grace, func() {
		// Kill on an already-finished process is harmless.
		_ = cmd.Process.Kill()
	})
	defer killTimer.Stop()

	totalTimer := time.NewTimer(timeout)
	defer totalTimer.Stop()

	select {
	case err := <-done:
		return expectTerminationExit(err, name)
	case <-totalTimer.C:
		ok, waitErr := drainDone(done, killDrainTimeout)
		if !ok {
			return fmt.Errorf("%s: timed out waiting for process to exit after SIGKILL", name)
		}
		if err := expectTerminationExit(waitErr, name); err != nil {
			return fmt.Errorf("%s stop timeout: %w", name, err)
		}
		return nil
	}
}

// expectTerminationExit interprets a cmd.Wait error after a termination
// signal was sent. An exit caused by SIGTERM or SIGKILL is the expected
// termination of a process we asked to stop, so it is swallowed.
func expectTerminationExit(err error, name string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			sig := status.Signal()
			if sig == syscall.SIGTERM || sig == syscall.SIGKILL {
				return nil
			}
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}
