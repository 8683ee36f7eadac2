package cli

import (
	"context"
	"fmt"

	"github.com/dbnest/dbnest"
)

// DownCmd is the 'dbnest down' command.
type DownCmd struct {
	Dir  string `help:"Data directory of the instance to stop." type:"path" xor:"target" required:""`
	Port int    `short:"p" help:"TCP port of the instance to stop." xor:"target" required:""`
}

// Run signals the selected instance to shut down. The signal is
// fire-and-forget; the owning process runs its own teardown.
func (c *DownCmd) Run() error {
	var err error
	switch {
	case c.Dir != "":
		err = dbnest.StopByDirectory(c.Dir)
	default:
		err = dbnest.StopByPort(context.Background(), c.Port, registryOptions()...)
	}
	if err != nil {
		return err
	}

	if c.Dir != "" {
		fmt.Printf("dbnest: stop signal sent to instance in %s\n", c.Dir)
	} else {
		fmt.Printf("dbnest: stop signal sent to instance on port %d\n", c.Port)
	}
	return nil
}
