package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func TestExpectTerminationExit(t *testing.T) {
	t.Parallel()

	t.Run("nil error is success", func(t *testing.T) {
		t.Parallel()
		if err := expectTerminationExit(nil, "engine"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("ordinary error propagates with name", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("boom")
		err := expectTerminationExit(cause, "engine")
		if err == nil {
			t.Fatal("expected error")
		}
		if !errors.Is(err, cause) {
			t.Errorf("error should wrap the cause, got %v", err)
		}
	})

	t.Run("sigterm exit is swallowed", func(t *testing.T) {
		t.Parallel()
		// Produce a real SIGTERM-caused ExitError.
		cmd := exec.Command("sleep", "60")
		if err := cmd.Start(); err != nil {
			t.Skipf("cannot start sleep: %v", err)
		}
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			t.Fatal(err)
		}
		waitErr := cmd.Wait()
		if waitErr == nil {
			t.Skip("process exited cleanly, cannot exercise signal path")
		}
		if err := expectTerminationExit(waitErr, "engine"); err != nil {
			t.Errorf("signal-caused exit should be swallowed, got %v", err)
		}
	})
}

func TestBaseProcessSetupAndStartValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := map[string]struct {
		cmd     *exec.Cmd
		dataDir string
		wantErr error
	}{
		"nil cmd":        {cmd: nil, dataDir: dir, wantErr: ErrNilCmd},
		"empty cmd path": {cmd: &exec.Cmd{}, dataDir: dir, wantErr: ErrEmptyCmdPath},
		"empty data dir": {cmd: exec.Command("sleep", "1"), dataDir: "", wantErr: ErrEmptyDataDir},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			b := NewBaseProcess("engine", nil, 0)
			err := b.SetupAndStart(tc.cmd, tc.dataDir)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestBaseProcessStartStop(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b := NewBaseProcess("engine", nil, time.Second)

	if err := b.SetupAndStart(exec.Command("sleep", "60"), dir); err != nil {
		t.Fatalf("SetupAndStart: %v", err)
	}
	if !b.IsStarted() {
		t.Error("IsStarted should report true after start")
	}
	if b.PID() <= 0 {
		t.Errorf("PID = %d, want positive", b.PID())
	}
	if err := b.SetupAndStart(exec.Command("sleep", "60"), dir); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second start err = %v, want ErrAlreadyStarted", err)
	}

	// SIGTERM kills sleep; the signal exit must count as a clean stop.
	if err := b.Stop(5 * time.Second); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if b.IsStarted() {
		t.Error("IsStarted should report false after stop")
	}
	b.Close()

	// Stop with nothing running is a no-op.
	if err := b.Stop(time.Second); err != nil {
		t.Errorf("idle Stop: %v", err)
	}
}

func TestBaseProcessExitedChannel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b := NewBaseProcess("engine", nil, time.Second)

	if err := b.SetupAndStart(exec.Command("true"), dir); err != nil {
		t.Fatalf("SetupAndStart: %v", err)
	}
	select {
	case <-b.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("exited channel should close when the process exits")
	}
	if err := b.Stop(time.Second); err != nil {
		t.Errorf("Stop after exit: %v", err)
	}
	b.Close()
}

func TestNewLogFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l, err := NewLogFiles(dir, "engine")
	if err != nil {
		t.Fatalf("NewLogFiles: %v", err)
	}
	defer l.Close()

	for _, path := range []string{l.StdoutPath(), l.StderrPath()} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("capture file %s should exist: %v", path, err)
		}
	}

	// Double close must be harmless.
	l.Close()
	l.Close()
}
