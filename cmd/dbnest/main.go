package main

import (
	"log/slog"
	"os"

	"github.com/dbnest/dbnest/internal/cli"
)

// The entry point for the dbnest binary. Parses arguments and runs the
// selected subcommand; any error exits with a non-zero code.
func main() {
	if err := cli.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
