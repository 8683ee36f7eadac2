package cli

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/dbnest/dbnest"
)

// RootCmd is the root command for the dbnest binary.
var RootCmd struct {
	Quiet    bool   `short:"q" help:"Suppress informational output."`
	Debug    bool   `short:"d" help:"Enable debug output."`
	Registry string `help:"Override the instance registry database path." placeholder:"PATH"`

	Up      UpCmd      `cmd:"" help:"Start an instance and serve until interrupted."`
	Down    DownCmd    `cmd:"" help:"Stop a running instance."`
	Status  StatusCmd  `cmd:"" help:"List running instances."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Execute parses arguments, configures logging, and runs the selected
// subcommand.
func Execute() error {
	kongCtx := kong.Parse(&RootCmd,
		kong.Name("dbnest"),
		kong.Description("Manages the lifecycle of embedded database server instances."),
		kong.UsageOnError(),
	)

	configureLogger()

	return kongCtx.Run()
}

// configureLogger installs the global logger based on CLI flags.
func configureLogger() {
	level := slog.LevelInfo
	if RootCmd.Debug {
		level = slog.LevelDebug
	} else if RootCmd.Quiet {
		level = slog.LevelWarn
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	dbnest.SetLogger(logger.With("component", "dbnest"))
}

// registryOptions translates the --registry flag into library options.
func registryOptions() []dbnest.Option {
	if RootCmd.Registry == "" {
		return nil
	}
	return []dbnest.Option{dbnest.WithRegistryPath(RootCmd.Registry)}
}
