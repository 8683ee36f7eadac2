// Package liveness answers one question: does a pid currently refer to a
// running process? Lock files and registry entries record pids of instances
// that may have crashed without cleanup, so liveness is always re-probed at
// read time rather than trusted from disk.
package liveness

// Prober reports whether a pid refers to a running process.
type Prober interface {
	Alive(pid int) bool
}

// Func adapts an ordinary function to the Prober interface. Tests use it to
// script liveness answers without spawning real processes.
type Func func(pid int) bool

// Alive implements Prober.
func (f Func) Alive(pid int) bool {
	return f(pid)
}
