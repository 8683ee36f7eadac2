package dbnest

import (
	"context"
	"time"

	"github.com/dbnest/dbnest/engine"
	"github.com/dbnest/dbnest/hardware"
	"github.com/dbnest/dbnest/internal/core"
	"github.com/dbnest/dbnest/internal/engineexec"
	"github.com/dbnest/dbnest/internal/lockstore"
	"github.com/dbnest/dbnest/internal/netutil"
	"github.com/dbnest/dbnest/internal/registry"
	"github.com/dbnest/dbnest/internal/sockserv"
)

// ports is shared by every instance this process starts, so two concurrent
// Start calls with WithPort(0) cannot be handed the same kernel port.
var ports = netutil.NewPortRegistry(nil)

// Start launches a database engine over dataDir, binds the socket server,
// and records the instance in the directory's lock file and the machine-wide
// registry. The data directory is created if missing; relative paths are
// resolved to absolute. Returns ErrAlreadyRunning (wrapped with the owner's
// directory, pid and port) when a live instance already holds the directory.
//
// The returned Instance shuts down on Stop or on SIGINT/SIGTERM, whichever
// comes first; both run the same ordered teardown exactly once.
func Start(ctx context.Context, dataDir string, opts ...Option) (*Instance, error) {
	cfg := defaultStartConfig(dataDir)
	for _, opt := range opts {
		opt(&cfg)
	}

	log := core.Logger()

	reg, err := registry.Open(ctx, cfg.RegistryPath, nil, log)
	if err != nil {
		return nil, err
	}

	opener := cfg.opener
	if opener == nil {
		opener = &engineexec.Opener{
			Binary:       cfg.EngineBinary,
			ReadyTimeout: cfg.StartTimeout,
			StopTimeout:  cfg.StopTimeout,
			Logger:       log,
		}
	}
	servers := cfg.servers
	if servers == nil {
		servers = &sockserv.Factory{Logger: log}
	}

	sup := core.NewSupervisor(core.Params{
		Config:   cfg.Config,
		Locks:    lockstore.New(nil, log),
		Registry: reg,
		Opener:   opener,
		Servers:  servers,
		Ports:    ports,
		Probe:    cfg.probe,
		Logger:   log,
	})

	inst, err := sup.Start(ctx)
	if err != nil {
		// The instance owns the registry handle only once running.
		_ = reg.Close()
		return nil, err
	}
	return &Instance{inner: inst}, nil
}

// Instance is a running engine plus its socket server and bookkeeping.
type Instance struct {
	inner *core.Instance
}

// Engine returns the running engine handle.
func (i *Instance) Engine() engine.Engine { return i.inner.Engine() }

// Server returns the socket server fronting the engine.
func (i *Instance) Server() engine.SocketServer { return i.inner.Server() }

// DataDir returns the absolute data directory.
func (i *Instance) DataDir() string { return i.inner.DataDir() }

// Port returns the TCP port the socket server is bound to. With WithPort(0)
// this is the kernel-allocated port.
func (i *Instance) Port() int { return i.inner.Port() }

// PID returns the pid recorded in the lock file and the registry. Sending
// SIGTERM to it triggers the same shutdown sequence as Stop.
func (i *Instance) PID() int { return i.inner.PID() }

// LockPath returns the path of the instance's lock file.
func (i *Instance) LockPath() string { return i.inner.LockPath() }

// Hardware returns the engine sizing recommendation the instance was
// started with, plus the host measurements it was derived from.
func (i *Instance) Hardware() hardware.Config { return i.inner.Hardware() }

// Endpoint returns the client-facing address, e.g. "tcp://127.0.0.1:5432".
func (i *Instance) Endpoint() string { return i.inner.Endpoint() }

// Done returns a channel closed once the instance has fully shut down,
// whether via Stop or a termination signal.
func (i *Instance) Done() <-chan struct{} { return i.inner.Done() }

// Stop shuts the instance down: socket server, engine, lock file, registry
// entry, in that order. A failing step is logged and teardown continues; the
// joined step errors are returned. Idempotent and safe to call concurrently
// with a signal-triggered shutdown.
func (i *Instance) Stop() error { return i.inner.Stop() }

// StopByDirectory stops the instance that owns dataDir, looked up through
// the directory's lock file. Returns ErrNotRunning when no live instance
// holds the directory. The stop signal is fire-and-forget: the owning
// process runs its own teardown and this call does not wait for it.
func StopByDirectory(dataDir string) error {
	log := core.Logger()
	return core.StopByDirectory(lockstore.New(nil, log), dataDir, log)
}

// StopByPort stops the instance registered on port, looked up through the
// machine-wide registry. Returns ErrNotFound when no live instance is
// registered on the port. When several instances ever claimed the same
// port, the first live registration wins. Fire-and-forget, like
// StopByDirectory.
//
// Options other than WithRegistryPath are ignored.
func StopByPort(ctx context.Context, port int, opts ...Option) error {
	cfg := defaultStartConfig(".")
	for _, opt := range opts {
		opt(&cfg)
	}

	log := core.Logger()
	reg, err := registry.Open(ctx, cfg.RegistryPath, nil, log)
	if err != nil {
		return err
	}
	defer reg.Close() //nolint:errcheck // read-only use

	return core.StopByPort(ctx, reg, port, log)
}

// InstanceInfo describes one live registry entry.
type InstanceInfo struct {
	DataDir   string
	Port      int
	PID       int
	StartedAt time.Time
}

// List returns every live instance in the registry, in registration order.
// Entries whose process has exited are pruned as a side effect.
//
// Options other than WithRegistryPath are ignored.
func List(ctx context.Context, opts ...Option) ([]InstanceInfo, error) {
	cfg := defaultStartConfig(".")
	for _, opt := range opts {
		opt(&cfg)
	}

	log := core.Logger()
	reg, err := registry.Open(ctx, cfg.RegistryPath, nil, log)
	if err != nil {
		return nil, err
	}
	defer reg.Close() //nolint:errcheck // read-only use

	recs, err := reg.List(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]InstanceInfo, 0, len(recs))
	for _, rec := range recs {
		infos = append(infos, InstanceInfo{
			DataDir:   rec.DataDir,
			Port:      rec.Port,
			PID:       rec.PID,
			StartedAt: rec.StartedAt,
		})
	}
	return infos, nil
}
