//go:build windows

package liveness

import "os"

// Compile-time interface satisfaction check.
var _ Prober = OS{}

// OS probes real process liveness.
type OS struct{}

// Alive reports whether pid refers to a running process. On Windows,
// os.FindProcess opens a handle and fails for pids that no longer exist.
func (OS) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = proc.Release()
	return true
}
