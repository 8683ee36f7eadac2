package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/dbnest/dbnest/engine"
	"github.com/dbnest/dbnest/hardware"
	"github.com/dbnest/dbnest/internal/liveness"
	"github.com/dbnest/dbnest/internal/lockstore"
	"github.com/dbnest/dbnest/internal/netutil"
	"github.com/dbnest/dbnest/internal/registry"
)

// testProbe returns fixed host measurements so advisor output is stable.
type testProbe struct{}

func (testProbe) CPUCount() int                 { return 4 }
func (testProbe) Memory() (total, free uint64) { return 16 << 30, 4 << 30 }

var _ hardware.Probe = testProbe{}

type fakeEngine struct {
	mu       sync.Mutex
	closed   bool
	closeErr error
}

func (e *fakeEngine) Addr() (network, addr string) { return "unix", "/tmp/fake.sock" }

func (e *fakeEngine) Close(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return e.closeErr
}

func (e *fakeEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type fakeOpener struct {
	openErr error

	mu     sync.Mutex
	opened []*fakeEngine
}

func (o *fakeOpener) Open(_ context.Context, _ string, _ engine.Tuning) (engine.Engine, error) {
	if o.openErr != nil {
		return nil, o.openErr
	}
	e := &fakeEngine{}
	o.mu.Lock()
	o.opened = append(o.opened, e)
	o.mu.Unlock()
	return e, nil
}

type fakeServer struct {
	startErr error
	stopErr  error

	mu      sync.Mutex
	started bool
	stopped bool
}

func (s *fakeServer) Start(_ context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeServer) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return s.stopErr
}

func (s *fakeServer) OnError(_ func(error)) {}

func (s *fakeServer) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeFactory struct {
	newErr   error
	startErr error
	stopErr  error

	mu      sync.Mutex
	servers []*fakeServer
}

func (f *fakeFactory) New(_ engine.ServerConfig) (engine.SocketServer, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	s := &fakeServer{startErr: f.startErr, stopErr: f.stopErr}
	f.mu.Lock()
	f.servers = append(f.servers, s)
	f.mu.Unlock()
	return s, nil
}

// failingRegistry wraps a Store and fails Register.
type failingRegistry struct {
	registry.Store
	registerErr error
}

func (r *failingRegistry) Register(ctx context.Context, rec registry.Record) error {
	if r.registerErr != nil {
		return r.registerErr
	}
	return r.Store.Register(ctx, rec)
}

type testDeps struct {
	dataDir string
	locks   *lockstore.Store
	reg     registry.Store
	opener  *fakeOpener
	factory *fakeFactory
	ports   *netutil.PortRegistry
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	return &testDeps{
		dataDir: filepath.Join(t.TempDir(), "data"),
		locks:   lockstore.New(liveness.OS{}, nil),
		reg:     registry.NewMemory(liveness.OS{}),
		opener:  &fakeOpener{},
		factory: &fakeFactory{},
		ports:   netutil.NewPortRegistry(nil),
	}
}

func (d *testDeps) config() Config {
	return Config{
		DataDir:      d.dataDir,
		Host:         "127.0.0.1",
		Port:         0,
		EngineBinary: "fake-engine",
		RegistryPath: filepath.Join(d.dataDir, "registry.db"),
		StartTimeout: 5 * time.Second,
		StopTimeout:  2 * time.Second,
	}
}

func (d *testDeps) supervisor(cfg Config) *Supervisor {
	return NewSupervisor(Params{
		Config:   cfg,
		Locks:    d.locks,
		Registry: d.reg,
		Opener:   d.opener,
		Servers:  d.factory,
		Ports:    d.ports,
		Probe:    testProbe{},
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		DataDir:      "/tmp/data",
		Host:         "127.0.0.1",
		Port:         5432,
		EngineBinary: "engine",
		RegistryPath: "/tmp/registry.db",
		StartTimeout: time.Second,
		StopTimeout:  time.Second,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() on valid config returned error: %v", err)
	}

	testCases := map[string]func(c *Config){
		"empty data dir":      func(c *Config) { c.DataDir = "" },
		"empty host":          func(c *Config) { c.Host = "" },
		"negative port":       func(c *Config) { c.Port = -1 },
		"empty engine binary": func(c *Config) { c.EngineBinary = "" },
		"empty registry path": func(c *Config) { c.RegistryPath = "" },
		"zero start timeout":  func(c *Config) { c.StartTimeout = 0 },
		"zero stop timeout":   func(c *Config) { c.StopTimeout = 0 },
	}

	for name, mutate := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := valid
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatal("Validate() returned nil error, want violation")
			}
		})
	}
}

func TestStartAndStop(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	inst, err := deps.supervisor(deps.config()).Start(context.Background())
	if err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}

	if inst.Port() <= 0 {
		t.Errorf("Port() = %d, want auto-allocated positive port", inst.Port())
	}
	if inst.PID() != os.Getpid() {
		t.Errorf("PID() = %d, want %d", inst.PID(), os.Getpid())
	}
	if got, want := inst.DataDir(), deps.dataDir; got != want {
		t.Errorf("DataDir() = %q, want %q", got, want)
	}
	if !strings.HasPrefix(inst.Endpoint(), "tcp://127.0.0.1:") {
		t.Errorf("Endpoint() = %q, want tcp://127.0.0.1:<port>", inst.Endpoint())
	}
	if inst.Hardware().WorkerCount != 2 {
		t.Errorf("Hardware().WorkerCount = %d, want 2", inst.Hardware().WorkerCount)
	}

	// The lock file records the starter's pid and port.
	rec, err := deps.locks.Inspect(inst.DataDir())
	if err != nil {
		t.Fatalf("Inspect() returned error: %v", err)
	}
	if rec == nil {
		t.Fatal("Inspect() returned nil record for running instance")
	}
	if rec.PID != inst.PID() || rec.Port != inst.Port() {
		t.Errorf("lock record = pid %d port %d, want pid %d port %d",
			rec.PID, rec.Port, inst.PID(), inst.Port())
	}

	// So does the registry.
	reg, ok, err := deps.reg.FindByDirectory(context.Background(), inst.DataDir())
	if err != nil || !ok {
		t.Fatalf("FindByDirectory() = ok %v, err %v, want live entry", ok, err)
	}
	if reg.Port != inst.Port() {
		t.Errorf("registry port = %d, want %d", reg.Port, inst.Port())
	}

	if err := inst.Stop(); err != nil {
		t.Fatalf("Stop() returned error: %v", err)
	}

	select {
	case <-inst.Done():
	default:
		t.Error("Done() not closed after Stop()")
	}

	// Both entries are gone.
	if rec, err := deps.locks.Inspect(inst.DataDir()); err != nil || rec != nil {
		t.Errorf("Inspect() after stop = %v, %v, want nil, nil", rec, err)
	}
	if _, ok, _ := deps.reg.FindByDirectory(context.Background(), inst.DataDir()); ok {
		t.Error("registry entry still present after stop")
	}
	if !deps.opener.opened[0].isClosed() {
		t.Error("engine not closed after stop")
	}
	if !deps.factory.servers[0].isStopped() {
		t.Error("socket server not stopped after stop")
	}
}

func TestStartSecondInstanceSameDirFails(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	inst, err := deps.supervisor(deps.config()).Start(context.Background())
	if err != nil {
		t.Fatalf("first Start() returned error: %v", err)
	}
	defer inst.Stop() //nolint:errcheck // test teardown

	_, err = deps.supervisor(deps.config()).Start(context.Background())
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	for _, want := range []string{inst.DataDir(), "pid", "port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestRestartAfterStop(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	inst, err := deps.supervisor(deps.config()).Start(context.Background())
	if err != nil {
		t.Fatalf("first Start() returned error: %v", err)
	}
	if err := inst.Stop(); err != nil {
		t.Fatalf("Stop() returned error: %v", err)
	}

	second, err := deps.supervisor(deps.config()).Start(context.Background())
	if err != nil {
		t.Fatalf("Start() after stop returned error: %v", err)
	}
	if err := second.Stop(); err != nil {
		t.Fatalf("second Stop() returned error: %v", err)
	}
}

func TestStopIsIdempotentAndConcurrent(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	inst, err := deps.supervisor(deps.config()).Start(context.Background())
	if err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := inst.Stop(); err != nil {
				t.Errorf("Stop() returned error: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestEngineOpenErrorSurfaces(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	cause := errors.New("engine binary crashed on startup")
	deps.opener.openErr = cause

	_, err := deps.supervisor(deps.config()).Start(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("Start() error = %v, want wrapped %v", err, cause)
	}

	// Nothing was left behind.
	if rec, _ := deps.locks.Inspect(deps.dataDir); rec != nil {
		t.Error("lock file present after failed start")
	}
	if _, ok, _ := deps.reg.FindByDirectory(context.Background(), deps.dataDir); ok {
		t.Error("registry entry present after failed start")
	}
}

func TestServerStartErrorUnwindsEngine(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	cause := errors.New("bind: address already in use")
	deps.factory.startErr = cause

	_, err := deps.supervisor(deps.config()).Start(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("Start() error = %v, want wrapped %v", err, cause)
	}
	if len(deps.opener.opened) != 1 || !deps.opener.opened[0].isClosed() {
		t.Error("engine not closed after bind failure")
	}
	if rec, _ := deps.locks.Inspect(deps.dataDir); rec != nil {
		t.Error("lock file present after failed start")
	}
}

func TestRegisterFailureRollsBackLock(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	cause := errors.New("registry database is read-only")
	deps.reg = &failingRegistry{Store: deps.reg, registerErr: cause}

	_, err := deps.supervisor(deps.config()).Start(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("Start() error = %v, want wrapped %v", err, cause)
	}

	if rec, _ := deps.locks.Inspect(deps.dataDir); rec != nil {
		t.Error("lock file not rolled back after registry failure")
	}
	if !deps.opener.opened[0].isClosed() {
		t.Error("engine not closed after registry failure")
	}
	if !deps.factory.servers[0].isStopped() {
		t.Error("socket server not stopped after registry failure")
	}
}

func TestTeardownContinuesPastServerStopFailure(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	cause := errors.New("listener close failed")
	deps.factory.stopErr = cause

	inst, err := deps.supervisor(deps.config()).Start(context.Background())
	if err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}

	err = inst.Stop()
	if !errors.Is(err, cause) {
		t.Fatalf("Stop() error = %v, want wrapped %v", err, cause)
	}

	// The failing step did not strand the rest of the teardown.
	if !deps.opener.opened[0].isClosed() {
		t.Error("engine not closed despite server stop failure")
	}
	if rec, _ := deps.locks.Inspect(deps.dataDir); rec != nil {
		t.Error("lock file still present despite server stop failure")
	}
	if _, ok, _ := deps.reg.FindByDirectory(context.Background(), deps.dataDir); ok {
		t.Error("registry entry still present despite server stop failure")
	}
}

func TestOrphanedRegistryEntryCleared(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)

	// A live-pid registry entry with no lock file is the orphaned half of
	// a crashed teardown; starting over the same directory clears it.
	orphan := registry.Record{
		DataDir:   deps.dataDir,
		Port:      9999,
		PID:       os.Getpid(),
		StartedAt: time.Now(),
	}
	if err := deps.reg.Register(context.Background(), orphan); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}

	inst, err := deps.supervisor(deps.config()).Start(context.Background())
	if err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	defer inst.Stop() //nolint:errcheck // test teardown

	rec, ok, err := deps.reg.FindByDirectory(context.Background(), deps.dataDir)
	if err != nil || !ok {
		t.Fatalf("FindByDirectory() = ok %v, err %v, want live entry", ok, err)
	}
	if rec.Port == orphan.Port {
		t.Errorf("registry still holds orphaned entry on port %d", orphan.Port)
	}
}

func TestFixedPortIsNotReleasedToKernel(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	cfg := deps.config()
	cfg.Port = 45832

	inst, err := deps.supervisor(cfg).Start(context.Background())
	if err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	if inst.Port() != 45832 {
		t.Errorf("Port() = %d, want the configured 45832", inst.Port())
	}
	if err := inst.Stop(); err != nil {
		t.Fatalf("Stop() returned error: %v", err)
	}
}

func TestSigtermTriggersShutdown(t *testing.T) {
	// Not parallel: delivers a real SIGTERM to the test process. The
	// instance's handler intercepts it; with no instance running the
	// signal would kill the test binary.
	deps := newTestDeps(t)
	inst, err := deps.supervisor(deps.config()).Start(context.Background())
	if err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}

	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("send SIGTERM: %v", err)
	}

	select {
	case <-inst.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("instance did not shut down after SIGTERM")
	}

	// The signal path runs the same teardown as Stop: both bookkeeping
	// entries are gone and Stop reports the same (nil) result.
	if rec, err := deps.locks.Inspect(deps.dataDir); err != nil || rec != nil {
		t.Errorf("Inspect() after signal shutdown = %v, %v, want nil, nil", rec, err)
	}
	if _, ok, _ := deps.reg.FindByDirectory(context.Background(), deps.dataDir); ok {
		t.Error("registry entry still present after signal shutdown")
	}
	if !deps.opener.opened[0].isClosed() {
		t.Error("engine not closed after signal shutdown")
	}
	if !deps.factory.servers[0].isStopped() {
		t.Error("socket server not stopped after signal shutdown")
	}
	if err := inst.Stop(); err != nil {
		t.Errorf("Stop() after signal shutdown returned error: %v", err)
	}
}

func TestNewSupervisorPanicsOnNilCollaborator(t *testing.T) {
	t.Parallel()

	deps := newTestDeps(t)
	defer func() {
		if recover() == nil {
			t.Fatal("NewSupervisor did not panic on nil registry")
		}
	}()
	NewSupervisor(Params{
		Config:  deps.config(),
		Locks:   deps.locks,
		Opener:  deps.opener,
		Servers: deps.factory,
		Ports:   deps.ports,
	})
}
