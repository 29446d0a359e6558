//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

func configure(cmd *exec.Cmd) {}

func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Signal(syscall.SIGTERM)
}
