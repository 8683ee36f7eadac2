package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dbnest/dbnest"
)

// UpCmd is the 'dbnest up' command.
type UpCmd struct {
	Dir     string        `arg:"" help:"Data directory to serve." type:"path"`
	Host    string        `help:"Address to bind." default:"127.0.0.1"`
	Port    int           `short:"p" help:"TCP port to bind; 0 picks a free port." default:"5432"`
	Engine  string        `help:"Engine binary to launch." placeholder:"PATH"`
	Inspect bool          `help:"Log relayed protocol traffic at debug level."`
	Timeout time.Duration `help:"Engine startup timeout."`
}

// Run starts an instance over the data directory and serves in the
// foreground until SIGINT or SIGTERM. Shutdown warnings are logged but do
// not affect the exit status; only a failed start exits non-zero.
func (c *UpCmd) Run() error {
	opts := registryOptions()
	opts = append(opts, dbnest.WithHost(c.Host), dbnest.WithPort(c.Port))
	if c.Engine != "" {
		opts = append(opts, dbnest.WithEngineBinary(c.Engine))
	}
	if c.Inspect {
		opts = append(opts, dbnest.WithProtocolInspection())
	}
	if c.Timeout > 0 {
		opts = append(opts, dbnest.WithStartTimeout(c.Timeout))
	}

	inst, err := dbnest.Start(context.Background(), c.Dir, opts...)
	if err != nil {
		return err
	}

	fmt.Printf("dbnest: serving %s on %s (pid %d)\n", inst.DataDir(), inst.Endpoint(), inst.PID())

	// The instance shuts itself down on SIGINT/SIGTERM; wait for that,
	// then collect the teardown result.
	<-inst.Done()
	if err := inst.Stop(); err != nil {
		slog.Warn("shutdown finished with warnings", "error", err)
	}
	return nil
}
