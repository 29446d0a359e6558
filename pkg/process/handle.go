package process

import (
	"os/exec"
	"sync"
	"time"
)

// Handle is a live child process registered with a Tracker.
type Handle struct {
	Label string

	cmd  *exec.Cmd
	done chan struct{}
	once sync.Once
}

func newHandle(label string, cmd *exec.Cmd) *Handle {
	return &Handle{Label: label, cmd: cmd, done: make(chan struct{})}
}

// Pid returns the operating system process id.
func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Exited reports whether the process has been reaped.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Done is closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Terminate sends SIGTERM, waits up to grace for exit, then kills. Calling it
// on an exited process or more than once is a no-op.
func (h *Handle) Terminate(grace time.Duration) {
	h.once.Do(func() {
		if h.Exited() || h.cmd.Process == nil {
			return
		}
		_ = terminate(h.cmd.Process)

		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-h.done:
		case <-timer.C:
			_ = h.cmd.Process.Kill()
		}
	})
}

// Tracker records live handles so an owner can terminate them.
type Tracker interface {
	Track(h *Handle)
	Untrack(h *Handle)
}

type nopTracker struct{}

func (nopTracker) Track(*Handle)   {}
func (nopTracker) Untrack(*Handle) {}
