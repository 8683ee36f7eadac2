package dbnest

import "time"

// Default configuration values for Start. Exported so callers can build
// custom configurations relative to them.
const (
	// DefaultHost is the address the socket server binds.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the TCP port the socket server binds. Pass
	// WithPort(0) to have the kernel pick a free port instead.
	DefaultPort = 5432

	// DefaultEngineBinary is the binary name used to locate the database
	// engine in PATH.
	DefaultEngineBinary = "dbengine"

	// DefaultStartTimeout bounds engine startup and readiness.
	DefaultStartTimeout = 30 * time.Second

	// DefaultStopTimeout bounds each teardown step during shutdown.
	DefaultStopTimeout = 10 * time.Second
)
