package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/dbnest/dbnest/engine"
	"github.com/dbnest/dbnest/hardware"
	"github.com/dbnest/dbnest/internal/lockstore"
	"github.com/dbnest/dbnest/internal/netutil"
	"github.com/dbnest/dbnest/internal/registry"
)

// Instance is a running engine plus its socket server, lock file and
// registry entry. Obtained from Supervisor.Start; released with Stop.
type Instance struct {
	cfg Config
	hw  hardware.Config

	eng   engine.Engine
	srv   engine.SocketServer
	locks *lockstore.Store
	reg   registry.Store
	ports *netutil.PortRegistry

	dataDir       string
	port          int
	portAllocated bool
	pid           int
	lockPath      string

	log      *slog.Logger
	signalCh chan os.Signal

	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
}

// Engine returns the running engine handle.
func (i *Instance) Engine() engine.Engine { return i.eng }

// Server returns the socket server fronting the engine.
func (i *Instance) Server() engine.SocketServer { return i.srv }

// DataDir returns the absolute data directory.
func (i *Instance) DataDir() string { return i.dataDir }

// Port returns the TCP port the socket server is bound to.
func (i *Instance) Port() int { return i.port }

// PID returns the pid recorded in the lock file and the registry. Sending
// SIGTERM to it triggers the same shutdown sequence as Stop.
func (i *Instance) PID() int { return i.pid }

// LockPath returns the path of the instance's lock file.
func (i *Instance) LockPath() string { return i.lockPath }

// Hardware returns the advisor configuration the engine was started with.
func (i *Instance) Hardware() hardware.Config { return i.hw }

// Endpoint returns the client-facing address, e.g. "tcp://127.0.0.1:5432".
func (i *Instance) Endpoint() string {
	return fmt.Sprintf("tcp://%s:%d", i.cfg.Host, i.port)
}

// Done returns a channel closed once the instance has fully shut down,
// whether via Stop or a termination signal.
func (i *Instance) Done() <-chan struct{} { return i.done }

// Stop shuts the instance down and blocks until teardown completes. It is
// idempotent and safe to call concurrently with a signal-triggered
// shutdown; every caller observes the same result.
func (i *Instance) Stop() error {
	i.shutdown()
	<-i.done
	return i.stopErr
}

// shutdown runs the ordered teardown exactly once: stop the socket server,
// close the engine, release the lock file, unregister. A failing step is
// logged and teardown continues, so one stuck resource cannot strand the
// others. The joined errors are reported through Stop.
func (i *Instance) shutdown() {
	i.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), i.cfg.StopTimeout)
		defer cancel()

		var errs []error
		fail := func(step string, err error) {
			i.log.Warn("shutdown step failed, continuing", "step", step, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step, err))
		}

		i.log.Info("shutting down instance", "port", i.port)

		if err := i.srv.Stop(ctx); err != nil {
			fail("stop socket server", err)
		}
		if err := i.eng.Close(ctx); err != nil {
			fail("close engine", err)
		}
		if err := i.locks.Release(i.dataDir); err != nil {
			fail("release lock file", err)
		}
		if err := i.reg.Unregister(ctx, i.dataDir); err != nil {
			fail("unregister instance", err)
		}
		if err := i.reg.Close(); err != nil {
			fail("close registry", err)
		}
		if i.portAllocated {
			i.ports.Release(i.port)
		}
		if i.signalCh != nil {
			signal.Stop(i.signalCh)
		}

		i.stopErr = errors.Join(errs...)
		close(i.done)
		i.log.Info("instance stopped", "port", i.port)
	})
}
