package dbnest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dbnest/dbnest"
	"github.com/dbnest/dbnest/engine"
)

// fakeEngine satisfies engine.Engine without a real child process.
type fakeEngine struct {
	mu     sync.Mutex
	closed bool
}

func (e *fakeEngine) Addr() (network, addr string) { return "unix", "/tmp/fake.sock" }

func (e *fakeEngine) Close(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []*fakeEngine
}

func (o *fakeOpener) Open(_ context.Context, _ string, _ engine.Tuning) (engine.Engine, error) {
	e := &fakeEngine{}
	o.mu.Lock()
	o.opened = append(o.opened, e)
	o.mu.Unlock()
	return e, nil
}

type fakeServer struct {
	mu      sync.Mutex
	stopped bool
}

func (s *fakeServer) Start(_ context.Context) error { return nil }

func (s *fakeServer) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeServer) OnError(_ func(error)) {}

type fakeFactory struct{}

func (fakeFactory) New(_ engine.ServerConfig) (engine.SocketServer, error) {
	return &fakeServer{}, nil
}

type fixedProbe struct{}

func (fixedProbe) CPUCount() int                { return 8 }
func (fixedProbe) Memory() (total, free uint64) { return 16 << 30, 8 << 30 }

func testOptions(t *testing.T) (string, []dbnest.Option) {
	t.Helper()

	tmp := t.TempDir()
	dataDir := filepath.Join(tmp, "data")
	opts := []dbnest.Option{
		dbnest.WithPort(0),
		dbnest.WithRegistryPath(filepath.Join(tmp, "registry.db")),
		dbnest.WithEngineOpener(&fakeOpener{}),
		dbnest.WithServerFactory(fakeFactory{}),
		dbnest.WithHardwareProbe(fixedProbe{}),
	}
	return dataDir, opts
}

func TestStartAndStop(t *testing.T) {
	t.Parallel()

	dataDir, opts := testOptions(t)

	inst, err := dbnest.Start(context.Background(), dataDir, opts...)
	if err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}

	if inst.Port() <= 0 {
		t.Errorf("Port() = %d, want auto-allocated positive port", inst.Port())
	}
	if inst.PID() != os.Getpid() {
		t.Errorf("PID() = %d, want %d", inst.PID(), os.Getpid())
	}
	if _, err := os.Stat(inst.LockPath()); err != nil {
		t.Errorf("lock file missing while running: %v", err)
	}
	if inst.Hardware().WorkerCount != 4 {
		t.Errorf("Hardware().WorkerCount = %d, want 4", inst.Hardware().WorkerCount)
	}

	if err := inst.Stop(); err != nil {
		t.Fatalf("Stop() returned error: %v", err)
	}
	if _, err := os.Stat(inst.LockPath()); !os.IsNotExist(err) {
		t.Errorf("lock file still present after stop: %v", err)
	}
}

func TestDoubleStartSameDirectory(t *testing.T) {
	t.Parallel()

	dataDir, opts := testOptions(t)

	inst, err := dbnest.Start(context.Background(), dataDir, opts...)
	if err != nil {
		t.Fatalf("first Start() returned error: %v", err)
	}
	defer inst.Stop() //nolint:errcheck // test teardown

	if _, err := dbnest.Start(context.Background(), dataDir, opts...); !errors.Is(err, dbnest.ErrAlreadyRunning) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestListShowsRunningInstance(t *testing.T) {
	t.Parallel()

	dataDir, opts := testOptions(t)
	registryPath := filepath.Join(filepath.Dir(dataDir), "registry.db")

	inst, err := dbnest.Start(context.Background(), dataDir, opts...)
	if err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}

	infos, err := dbnest.List(context.Background(), dbnest.WithRegistryPath(registryPath))
	if err != nil {
		t.Fatalf("List() returned error: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("List() returned %d entries, want 1", len(infos))
	}
	if infos[0].DataDir != inst.DataDir() || infos[0].Port != inst.Port() {
		t.Errorf("List() entry = %+v, want dir %s port %d", infos[0], inst.DataDir(), inst.Port())
	}

	if err := inst.Stop(); err != nil {
		t.Fatalf("Stop() returned error: %v", err)
	}

	infos, err = dbnest.List(context.Background(), dbnest.WithRegistryPath(registryPath))
	if err != nil {
		t.Fatalf("List() after stop returned error: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("List() after stop returned %d entries, want 0", len(infos))
	}
}

func TestStopByDirectoryNotRunning(t *testing.T) {
	t.Parallel()

	if err := dbnest.StopByDirectory(t.TempDir()); !errors.Is(err, dbnest.ErrNotRunning) {
		t.Fatalf("StopByDirectory() error = %v, want ErrNotRunning", err)
	}
}

func TestStopByPortNotFound(t *testing.T) {
	t.Parallel()

	registryPath := filepath.Join(t.TempDir(), "registry.db")
	err := dbnest.StopByPort(context.Background(), 5432, dbnest.WithRegistryPath(registryPath))
	if !errors.Is(err, dbnest.ErrNotFound) {
		t.Fatalf("StopByPort() error = %v, want ErrNotFound", err)
	}
}
