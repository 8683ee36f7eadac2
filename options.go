package dbnest

import (
	"fmt"
	"time"

	"github.com/dbnest/dbnest/engine"
	"github.com/dbnest/dbnest/hardware"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("dbnest: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("dbnest: %s must not be empty", name))
	}
}

// Option configures a Start, StopByPort or List call.
//
// Several With* functions panic on invalid input (empty paths, non-positive
// durations). These panics are intentional: option values are typically
// compile-time constants, so an invalid value is a programmer error rather
// than a runtime condition, and failing fast beats returning errors that
// would be universally fatal anyway.
type Option func(*startConfig)

// WithHost sets the address the socket server binds.
// Default: DefaultHost. Panics if host is empty.
func WithHost(host string) Option {
	requireNonEmpty("host", host)
	return func(c *startConfig) {
		c.Host = host
	}
}

// WithPort sets the TCP port the socket server binds. Port 0 requests a
// free port from the kernel; the chosen port is reported by Instance.Port
// and recorded in the lock file and the registry.
//
// Default: DefaultPort. Panics if port is negative.
func WithPort(port int) Option {
	if port < 0 {
		panic(fmt.Sprintf("dbnest: port must not be negative, got %d", port))
	}
	return func(c *startConfig) {
		c.Port = port
	}
}

// WithEngineBinary sets the database engine executable to launch.
// Default: DefaultEngineBinary, located in PATH. Panics if binPath is empty.
func WithEngineBinary(binPath string) Option {
	requireNonEmpty("engine binary path", binPath)
	return func(c *startConfig) {
		c.EngineBinary = binPath
	}
}

// WithRegistryPath sets the location of the instance registry database.
// Every process that should see the same set of instances must use the
// same path. Default: the XDG state directory. Panics if path is empty.
func WithRegistryPath(path string) Option {
	requireNonEmpty("registry path", path)
	return func(c *startConfig) {
		c.RegistryPath = path
	}
}

// WithProtocolInspection enables debug logging of relayed protocol traffic
// (message tag and size per chunk; payloads are never logged).
func WithProtocolInspection() Option {
	return func(c *startConfig) {
		c.InspectProtocol = true
	}
}

// WithStartTimeout bounds engine startup and readiness.
// Default: DefaultStartTimeout. Panics if d <= 0.
func WithStartTimeout(d time.Duration) Option {
	requirePositive("start timeout", d)
	return func(c *startConfig) {
		c.StartTimeout = d
	}
}

// WithStopTimeout bounds each teardown step during shutdown.
// Default: DefaultStopTimeout. Panics if d <= 0.
func WithStopTimeout(d time.Duration) Option {
	requirePositive("stop timeout", d)
	return func(c *startConfig) {
		c.StopTimeout = d
	}
}

// WithEngineOpener substitutes the engine construction path. The default
// launches the configured engine binary as a child process. Intended for
// tests and for embedding engines that are not separate executables.
// Panics if opener is nil.
func WithEngineOpener(opener engine.Opener) Option {
	if opener == nil {
		panic("dbnest: engine opener must not be nil")
	}
	return func(c *startConfig) {
		c.opener = opener
	}
}

// WithServerFactory substitutes the socket server construction path. The
// default relays TCP connections to the engine's local socket. Intended for
// tests. Panics if factory is nil.
func WithServerFactory(factory engine.ServerFactory) Option {
	if factory == nil {
		panic("dbnest: server factory must not be nil")
	}
	return func(c *startConfig) {
		c.servers = factory
	}
}

// WithHardwareProbe substitutes the host measurements feeding the engine
// sizing recommendation. The default probes the real host. Intended for
// tests and for callers that want to pin the engine configuration.
// Panics if probe is nil.
func WithHardwareProbe(probe hardware.Probe) Option {
	if probe == nil {
		panic("dbnest: hardware probe must not be nil")
	}
	return func(c *startConfig) {
		c.probe = probe
	}
}
