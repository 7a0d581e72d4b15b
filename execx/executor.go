// Package execx is the uniform wrapper every external OS utility call in
// the fleet manager goes through: "ip", "iptables", "mount", "mkfs.ext4",
// "cp", "dd", "docker", "qemu-img", "firecracker".
package execx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// CommandFailure is returned when the external process started but exited
// with a non-zero status.
type CommandFailure struct {
	Command string
	Status  int
	Stdout  string
	Stderr  string
}

func (e *CommandFailure) Error() string {
	return fmt.Sprintf("command %q failed with status %d: %s", e.Command, e.Status, strings.TrimSpace(e.Stderr))
}

// ExecutionStartError is returned when the process itself could not be
// spawned (binary not found, permission denied, ...).
type ExecutionStartError struct {
	Command string
	Err     error
}

func (e *ExecutionStartError) Error() string {
	return fmt.Sprintf("could not start %q: %v", e.Command, e.Err)
}

func (e *ExecutionStartError) Unwrap() error { return e.Err }

// Result is the captured outcome of a completed command.
type Result struct {
	Stdout string
	Stderr string
}

// Cmd is a rendered external command, independent of how it is eventually
// executed.
type Cmd struct {
	Path string
	Args []string
	Dir  string
	Env  []string
	// Stdin, when set, is piped into the spawned process (the
	// `docker cp | tar x` pattern).
	Stdin io.Reader
}

// New builds a Cmd for program with the given arguments.
func New(program string, args ...string) *Cmd {
	return &Cmd{Path: program, Args: args}
}

// WithDir sets the working directory and returns the same Cmd for chaining.
func (c *Cmd) WithDir(dir string) *Cmd {
	c.Dir = dir
	return c
}

// WithStdin sets the stdin reader and returns the same Cmd for chaining.
func (c *Cmd) WithStdin(r io.Reader) *Cmd {
	c.Stdin = r
	return c
}

// String renders "<program> <arg1> <arg2> ..." for logs and test assertions.
func (c *Cmd) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Handle is a live, non-waited-on child process.
type Handle interface {
	// Stdout returns the pipe attached to the child's stdout; ExecSpawn
	// always attaches one.
	Stdout() io.ReadCloser
	// Wait blocks until the child exits.
	Wait() error
	// TryWait reports whether the child has already exited, without
	// blocking. exited is false while the child is still running; once
	// true, err is nil for a clean exit or the same error Wait would
	// return otherwise. Used by the supervision loop's 1-second poll
	// tick, which must never block on a still-running child.
	TryWait() (exited bool, err error)
	Kill() error
}

// Executor runs external commands. Every external-utility call in the
// system goes through one of these two methods so that it can be
// intercepted in tests, except foreground debug sessions, which use
// Interactive.RunInteractive when the executor implements it.
type Executor interface {
	// Exec runs cmd to completion, capturing stdout/stderr. It returns
	// *ExecutionStartError if the process could not be spawned, or
	// *CommandFailure if it exited non-zero.
	Exec(ctx context.Context, cmd *Cmd) (*Result, error)
	// ExecSpawn starts cmd and returns immediately with a live handle,
	// used when stdout must be piped into a downstream process.
	ExecSpawn(ctx context.Context, cmd *Cmd) (Handle, error)
}

type realExecutor struct{}

// Real returns an Executor that actually spawns OS processes.
func Real() Executor { return &realExecutor{} }

func (r *realExecutor) Exec(ctx context.Context, cmd *Cmd) (*Result, error) {
	ec := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	ec.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		ec.Env = cmd.Env
	}
	ec.Stdin = cmd.Stdin

	var stdout, stderr bytes.Buffer
	ec.Stdout = &stdout
	ec.Stderr = &stderr

	if err := ec.Start(); err != nil {
		return nil, &ExecutionStartError{Command: cmd.String(), Err: err}
	}
	err := ec.Wait()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		status := -1
		if ee, ok := err.(*exec.ExitError); ok {
			status = ee.ExitCode()
		}
		return res, &CommandFailure{
			Command: cmd.String(),
			Status:  status,
			Stdout:  res.Stdout,
			Stderr:  res.Stderr,
		}
	}
	return res, nil
}

type realHandle struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	done   chan error
}

func (h *realHandle) Stdout() io.ReadCloser { return h.stdout }

// Wait blocks until the background waiter goroutine records the child's
// exit, then returns that result (possibly already available).
func (h *realHandle) Wait() error { return <-h.done }

// TryWait peeks at the waiter channel without consuming it irrevocably:
// it re-buffers the result for any later Wait/TryWait call.
func (h *realHandle) TryWait() (bool, error) {
	select {
	case err := <-h.done:
		h.done <- err
		return true, err
	default:
		return false, nil
	}
}

func (h *realHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

func (r *realExecutor) ExecSpawn(ctx context.Context, cmd *Cmd) (Handle, error) {
	ec := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	ec.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		ec.Env = cmd.Env
	}
	ec.Stdin = cmd.Stdin

	stdout, err := ec.StdoutPipe()
	if err != nil {
		return nil, &ExecutionStartError{Command: cmd.String(), Err: err}
	}
	if err := ec.Start(); err != nil {
		return nil, &ExecutionStartError{Command: cmd.String(), Err: err}
	}

	h := &realHandle{cmd: ec, stdout: stdout, done: make(chan error, 1)}
	go func() { h.done <- ec.Wait() }()
	return h, nil
}

// Interactive is implemented by executors that can run a command in the
// foreground with a pty attached to the caller's own stdio, used for
// debug sessions where the hypervisor's serial console should behave as
// it would run directly at a terminal.
type Interactive interface {
	RunInteractive(ctx context.Context, cmd *Cmd) error
}

func (r *realExecutor) RunInteractive(ctx context.Context, cmd *Cmd) error {
	ec := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	ec.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		ec.Env = cmd.Env
	}

	f, err := pty.Start(ec)
	if err != nil {
		return &ExecutionStartError{Command: cmd.String(), Err: err}
	}
	defer f.Close()

	// Put the caller's own terminal into raw mode for the duration of the
	// session, the same way any interactive SSH/console client does, so
	// the hypervisor's serial console sees every keystroke (Ctrl-C
	// included) instead of having the local tty driver intercept it.
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err == nil {
			defer term.Restore(fd, oldState)
		}
	}

	go func() { _, _ = io.Copy(f, os.Stdin) }()
	go func() { _, _ = io.Copy(os.Stdout, f) }()

	return ec.Wait()
}
