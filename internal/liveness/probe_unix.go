//go:build !windows

package liveness

import (
	"errors"
	"os"
	"syscall"
)

// Compile-time interface satisfaction check.
var _ Prober = OS{}

// OS probes real process liveness via the null signal.
type OS struct{}

// Alive reports whether pid refers to a running process. Signal 0 performs
// the kernel's existence and permission checks without delivering anything.
// EPERM means the process exists but belongs to another user, which still
// counts as alive.
func (OS) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
