//go:build linux

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr sets Linux-specific attributes on cmd. Pdeathsig
// delivers SIGTERM to the engine if the supervising process dies abruptly,
// so a killed supervisor doesn't orphan its engine.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGTERM,
	}
}
