package dbnest

import "github.com/dbnest/dbnest/internal/core"

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrAlreadyRunning is returned by Start when the data directory is
	// already owned by a live instance. The error message carries the
	// directory, pid and port of the current owner.
	ErrAlreadyRunning = core.ErrAlreadyRunning

	// ErrNotRunning is returned by StopByDirectory when the directory has
	// no live lock file.
	ErrNotRunning = core.ErrNotRunning

	// ErrNotFound is returned by StopByPort when no live instance is
	// registered on the port.
	ErrNotFound = core.ErrNotFound
)
