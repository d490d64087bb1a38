//go:build !unix

package runner

import "os/exec"

// killProcessGroup is a no-op; WaitDelay still bounds the wait for pipes.
func killProcessGroup(c *exec.Cmd) {}
