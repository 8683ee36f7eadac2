package core

import "github.com/dbnest/dbnest/internal/sentinel"

const (
	// ErrAlreadyRunning is returned by Start when the data directory is
	// already owned by a live instance. The wrapping error carries the
	// directory, pid and port of the current owner.
	ErrAlreadyRunning = sentinel.Error("instance already running")

	// ErrNotRunning is returned by StopByDirectory when the data
	// directory has no live lock.
	ErrNotRunning = sentinel.Error("no instance running in directory")

	// ErrNotFound is returned by StopByPort when no live instance is
	// registered on the port.
	ErrNotFound = sentinel.Error("no instance found")
)
