//go:build windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

const createNoWindow = 0x08000000

func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
}

// Windows has no SIGTERM; the grace period collapses to an immediate kill.
func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
