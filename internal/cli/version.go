package cli

import "fmt"

// version is overridden at build time via
// -ldflags "-X github.com/dbnest/dbnest/internal/cli.version=...".
var version = "dev"

// VersionCmd is the 'dbnest version' command.
type VersionCmd struct{}

// Run prints the build version.
func (c *VersionCmd) Run() error {
	fmt.Println("dbnest", version)
	return nil
}
