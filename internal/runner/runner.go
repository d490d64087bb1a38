package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a command when its Command.Timeout is zero.
const DefaultTimeout = 5 * time.Minute

// ExecFunc runs a single process and captures its output.
// It receives the context, working directory, binary and argv.
// A non-zero exit is reported through an error implementing ExitCode() int.
type ExecFunc func(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)

// Command describes a single subprocess invocation. Arguments are passed
// as an argument vector; nothing is ever interpreted by a shell.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// String renders the command for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a single command.
type Result struct {
	Command  string        `json:"command"`
	Stdout   []byte        `json:"-"`
	Stderr   []byte        `json:"-"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
	Err      error         `json:"-"`
}

// OK is true when the process ran to completion with exit status 0.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0 && !r.TimedOut
}

// Started is true when the process ran and exited on its own,
// whatever its exit status. Tools that signal findings through a
// non-zero exit still produce usable output in that case.
func (r Result) Started() bool {
	if r.TimedOut {
		return false
	}
	if r.Err == nil {
		return true
	}
	var coded interface{ ExitCode() int }
	return errors.As(r.Err, &coded) && coded.ExitCode() > 0
}

// Output returns stdout followed by stderr.
func (r Result) Output() string {
	if len(r.Stderr) == 0 {
		return string(r.Stdout)
	}
	if len(r.Stdout) == 0 {
		return string(r.Stderr)
	}
	return string(r.Stdout) + "\n" + string(r.Stderr)
}

// Runner executes commands through an injectable ExecFunc.
type Runner struct {
	execFn ExecFunc
}

// New creates a Runner with the given exec function.
// A nil execFn falls back to OSExec.
func New(execFn ExecFunc) *Runner {
	if execFn == nil {
		execFn = OSExec
	}
	return &Runner{
		execFn: execFn,
	}
}

// Run executes cmd under its timeout. Errors are reported in the Result,
// never returned, so callers can decide how soft a failure is.
func (r *Runner) Run(ctx context.Context, cmd Command) Result {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, err := r.execFn(cmdCtx, cmd.Dir, cmd.Name, cmd.Args...)
	duration := time.Since(start)

	result := Result{
		Command:  cmd.String(),
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: duration,
	}

	if err == nil {
		return result
	}

	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		result.Err = fmt.Errorf("%s: timeout after %s", cmd.Name, timeout)
		return result
	}

	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		result.ExitCode = coded.ExitCode()
	} else {
		result.ExitCode = -1
	}
	result.Err = err
	return result
}

// WaitDelay bounds how long OSExec waits for output pipes after the
// process was killed. Descendants that inherited the pipes keep them open.
const WaitDelay = 2 * time.Second

// OSExec runs the process with os/exec. On timeout the whole process group
// is killed, so tools that spawn children (npx, npm run) stop too.
func OSExec(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	c := exec.CommandContext(ctx, name, args...)
	c.Dir = dir
	c.WaitDelay = WaitDelay
	killProcessGroup(c)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// FromArgv builds a Command from a configured argument vector
// such as ["npm", "audit", "--json"].
func FromArgv(argv []string, dir string, timeout time.Duration) (Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return Command{}, fmt.Errorf("empty command")
	}
	return Command{
		Name:    argv[0],
		Args:    append([]string(nil), argv[1:]...),
		Dir:     dir,
		Timeout: timeout,
	}, nil
}

// ExitStatus is an error carrying a process exit code.
// Fake ExecFuncs return it to simulate a non-zero exit.
type ExitStatus int

func (e ExitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// ExitCode implements the interface Run inspects.
func (e ExitStatus) ExitCode() int { return int(e) }
