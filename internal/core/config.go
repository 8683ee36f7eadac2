package core

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the configuration for one instance start.
//
// Concurrency contract: all fields are immutable after construction. The
// supervisor and the instance's shutdown goroutine read them without
// synchronization, relying on this guarantee.
type Config struct {
	// DataDir is the directory the engine serves. Created if missing.
	// Relative paths are resolved to absolute before any lock or registry
	// operation so the same directory always maps to the same key.
	DataDir string

	// Host and Port form the TCP address the socket server binds. Port 0
	// requests a free port from the kernel; the allocated port is
	// recorded in the lock file and the registry.
	Host string
	Port int

	// EngineBinary is the database engine executable to launch.
	EngineBinary string

	// RegistryPath is the location of the instance registry database.
	RegistryPath string

	// InspectProtocol enables debug logging of relayed protocol traffic.
	InspectProtocol bool

	// StartTimeout bounds engine construction and readiness.
	// Default: 30 seconds.
	StartTimeout time.Duration

	// StopTimeout bounds each teardown step during shutdown.
	// Default: 10 seconds.
	StopTimeout time.Duration
}

// Validate checks all Config invariants and returns an error describing
// every violation found, joined so callers can fix all problems in one pass.
func (c Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data directory must not be empty"))
	}
	if c.Host == "" {
		errs = append(errs, errors.New("host must not be empty"))
	}
	if c.Port < 0 {
		errs = append(errs, fmt.Errorf("port must not be negative, got %d", c.Port))
	}
	if c.EngineBinary == "" {
		errs = append(errs, errors.New("engine binary must not be empty"))
	}
	if c.RegistryPath == "" {
		errs = append(errs, errors.New("registry path must not be empty"))
	}
	if c.StartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("start timeout must be greater than 0, got %s", c.StartTimeout))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stop timeout must be greater than 0, got %s", c.StopTimeout))
	}

	return errors.Join(errs...)
}
