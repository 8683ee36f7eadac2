package dbnest

import (
	"github.com/dbnest/dbnest/engine"
	"github.com/dbnest/dbnest/hardware"
	"github.com/dbnest/dbnest/internal/core"
	"github.com/dbnest/dbnest/internal/registry"
)

// startConfig holds configuration for one Start call. This unexported type
// embeds core.Config, keeping internal/core out of the public API signature
// while avoiding field-by-field duplication. The extra fields are the
// injectable collaborators the options can substitute.
type startConfig struct {
	core.Config

	opener  engine.Opener
	servers engine.ServerFactory
	probe   hardware.Probe
}

func defaultStartConfig(dataDir string) startConfig {
	return startConfig{
		Config: core.Config{
			DataDir:      dataDir,
			Host:         DefaultHost,
			Port:         DefaultPort,
			EngineBinary: DefaultEngineBinary,
			RegistryPath: registry.DefaultPath(),
			StartTimeout: DefaultStartTimeout,
			StopTimeout:  DefaultStopTimeout,
		},
	}
}
