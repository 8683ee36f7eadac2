package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dbnest/dbnest/engine"
	"github.com/dbnest/dbnest/hardware"
	"github.com/dbnest/dbnest/internal/fileutil"
	"github.com/dbnest/dbnest/internal/lockstore"
	"github.com/dbnest/dbnest/internal/netutil"
	"github.com/dbnest/dbnest/internal/registry"
)

// phase names a startup stage. Phases advance strictly forward; any failure
// is terminal for the attempt and unwinds whatever earlier phases built.
type phase string

const (
	phaseConfiguring        phase = "configuring"
	phaseCheckingLock       phase = "checking lock"
	phasePreparingDirectory phase = "preparing directory"
	phaseStartingEngine     phase = "starting engine"
	phaseBindingSocket      phase = "binding socket"
	phaseRegistering        phase = "registering"
	phaseRunning            phase = "running"
)

// Params carries the supervisor's collaborators. All fields are required.
type Params struct {
	Config Config

	Locks    *lockstore.Store
	Registry registry.Store
	Opener   engine.Opener
	Servers  engine.ServerFactory
	Ports    *netutil.PortRegistry

	// Probe feeds the hardware advisor. Nil means the real host probe.
	Probe hardware.Probe

	// Logger is optional and defaults to the package logger.
	Logger *slog.Logger
}

// Supervisor drives one instance through the startup phases and hands back
// a running Instance. It holds no state across Start calls; each call is an
// independent attempt.
type Supervisor struct {
	params Params
	log    *slog.Logger
}

// NewSupervisor creates a Supervisor. Nil collaborators are programmer
// errors and panic.
func NewSupervisor(params Params) *Supervisor {
	if params.Locks == nil {
		panic("core: Params.Locks must not be nil")
	}
	if params.Registry == nil {
		panic("core: Params.Registry must not be nil")
	}
	if params.Opener == nil {
		panic("core: Params.Opener must not be nil")
	}
	if params.Servers == nil {
		panic("core: Params.Servers must not be nil")
	}
	if params.Ports == nil {
		panic("core: Params.Ports must not be nil")
	}
	log := params.Logger
	if log == nil {
		log = Logger()
	}
	return &Supervisor{params: params, log: log}
}

// Start runs the startup sequence. On success the returned Instance owns the
// engine, the socket server, the lock file, the registry handle and the
// allocated port, and releases them all on Stop. On failure everything built
// so far is unwound and the error names the phase that failed. There are no
// retries at any phase.
func (s *Supervisor) Start(ctx context.Context) (*Instance, error) {
	cfg := s.params.Config

	// Phase: configuring.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", phaseConfiguring, err)
	}
	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("%s: resolve data directory %q: %w", phaseConfiguring, cfg.DataDir, err)
	}
	hw := hardware.Compute(s.params.Probe)
	log := s.log.With("dir", dataDir)
	log.Debug("computed engine configuration",
		"workers", hw.WorkerCount, "pool_size", hw.PoolSize, "cache_mb", hw.CacheSizeMB)

	// Phase: checking lock. A live lock is fatal; a stale or corrupt one
	// was already healed by Inspect. With no lock present, a leftover
	// registry row for this directory is the orphaned half of a previous
	// crash and is cleared so the two stores re-converge.
	log.Debug("startup phase", "phase", phaseCheckingLock)
	if rec, err := s.params.Locks.Inspect(dataDir); err != nil {
		return nil, fmt.Errorf("%s: %w", phaseCheckingLock, err)
	} else if rec != nil {
		return nil, fmt.Errorf("%w: directory %s held by pid %d on port %d",
			ErrAlreadyRunning, dataDir, rec.PID, rec.Port)
	}
	if rec, ok, err := s.params.Registry.FindByDirectory(ctx, dataDir); err != nil {
		return nil, fmt.Errorf("%s: %w", phaseCheckingLock, err)
	} else if ok {
		log.Warn("registry entry with no lock file, removing", "pid", rec.PID, "port", rec.Port)
		if err := s.params.Registry.Unregister(ctx, dataDir); err != nil {
			return nil, fmt.Errorf("%s: remove orphaned registry entry: %w", phaseCheckingLock, err)
		}
	}

	// Phase: preparing directory.
	log.Debug("startup phase", "phase", phasePreparingDirectory)
	if err := fileutil.EnsureDir(dataDir); err != nil {
		return nil, fmt.Errorf("%s: %w", phasePreparingDirectory, err)
	}
	port := cfg.Port
	portAllocated := false
	if port == 0 {
		port, err = s.params.Ports.Allocate()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", phasePreparingDirectory, err)
		}
		portAllocated = true
		log.Debug("allocated port", "port", port)
	}
	releasePort := func() {
		if portAllocated {
			s.params.Ports.Release(port)
		}
	}

	// Phase: starting engine. The error surfaces unmodified beyond phase
	// context; the engine binary's own message is the useful part.
	log.Debug("startup phase", "phase", phaseStartingEngine)
	startCtx, cancel := context.WithTimeout(ctx, cfg.StartTimeout)
	eng, err := s.params.Opener.Open(startCtx, dataDir, engine.Tuning{
		Workers:     hw.WorkerCount,
		PoolSize:    hw.PoolSize,
		CacheSizeMB: hw.CacheSizeMB,
	})
	cancel()
	if err != nil {
		releasePort()
		return nil, fmt.Errorf("%s: %w", phaseStartingEngine, err)
	}

	// Phase: binding socket. A bind failure (port in use) aborts the
	// attempt; the caller picks another port, there is no retry here.
	log.Debug("startup phase", "phase", phaseBindingSocket)
	srv, err := s.params.Servers.New(engine.ServerConfig{
		Engine:          eng,
		Host:            cfg.Host,
		Port:            port,
		InspectProtocol: cfg.InspectProtocol,
	})
	if err == nil {
		srv.OnError(func(serveErr error) {
			log.Warn("socket server error", "error", serveErr)
		})
		err = srv.Start(ctx)
	}
	if err != nil {
		s.closeEngine(eng, cfg.StopTimeout, log)
		releasePort()
		return nil, fmt.Errorf("%s: %w", phaseBindingSocket, err)
	}

	// Phase: registering. Lock file and registry entry are created
	// together; if the registry write fails the lock rolls back so no
	// half-registered instance survives the attempt.
	log.Debug("startup phase", "phase", phaseRegistering)
	pid := os.Getpid()
	lockPath, err := s.params.Locks.Acquire(dataDir, port, pid)
	if err != nil {
		s.stopServer(srv, cfg.StopTimeout, log)
		s.closeEngine(eng, cfg.StopTimeout, log)
		releasePort()
		return nil, fmt.Errorf("%s: %w", phaseRegistering, err)
	}
	err = s.params.Registry.Register(ctx, registry.Record{
		DataDir:   dataDir,
		Port:      port,
		PID:       pid,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		if releaseErr := s.params.Locks.Release(dataDir); releaseErr != nil {
			log.Warn("roll back lock file", "error", releaseErr)
		}
		s.stopServer(srv, cfg.StopTimeout, log)
		s.closeEngine(eng, cfg.StopTimeout, log)
		releasePort()
		return nil, fmt.Errorf("%s: %w", phaseRegistering, err)
	}

	// Phase: running.
	inst := &Instance{
		cfg:           cfg,
		hw:            hw,
		eng:           eng,
		srv:           srv,
		locks:         s.params.Locks,
		reg:           s.params.Registry,
		ports:         s.params.Ports,
		dataDir:       dataDir,
		port:          port,
		portAllocated: portAllocated,
		pid:           pid,
		lockPath:      lockPath,
		log:           log,
		done:          make(chan struct{}),
	}
	inst.watchSignals()

	log.Info("instance running",
		"phase", phaseRunning, "port", port, "pid", pid, "endpoint", inst.Endpoint())
	return inst, nil
}

// closeEngine closes an engine during startup unwinding, bounded by the
// configured stop timeout.
func (s *Supervisor) closeEngine(eng engine.Engine, timeout time.Duration, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := eng.Close(ctx); err != nil {
		log.Warn("close engine during startup unwind", "error", err)
	}
}

// stopServer stops a socket server during startup unwinding.
func (s *Supervisor) stopServer(srv engine.SocketServer, timeout time.Duration, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Warn("stop socket server during startup unwind", "error", err)
	}
}

// watchSignals funnels SIGINT and SIGTERM into the instance's shutdown path
// so an interactive ^C and a cross-process stop behave identically.
func (i *Instance) watchSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	i.signalCh = ch

	go func() {
		select {
		case sig := <-ch:
			i.log.Info("received signal, shutting down", "signal", sig.String())
			i.shutdown()
		case <-i.done:
		}
	}()
}
