//go:build unix

package runner

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// killProcessGroup starts c in its own process group and makes context
// cancellation kill the group instead of only the direct child.
func killProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		if err := unix.Kill(-c.Process.Pid, unix.SIGKILL); err != nil {
			return c.Process.Kill()
		}
		return nil
	}
}
