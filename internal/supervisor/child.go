package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"go.olrik.dev/amman/internal/validator"
)

// killGrace is how long a process group gets to disappear after SIGKILL.
const killGrace = 5 * time.Second

// child is a process this supervisor spawned. A waiter goroutine reaps it
// and closes done; waitErr is only read after done is closed.
type child struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
	config  *validator.File
}

// spawn starts exe in its own process group so the whole amman tree
// (relay and validator) can be signaled at once.
func spawn(exe string, args []string, stdout, stderr io.Writer) (*child, error) {
	cmd := exec.Command(exe, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	c := &child{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.done)
	}()

	slog.Info("Spawned amman", "pid", cmd.Process.Pid, "executable", exe, "args", args)
	return c, nil
}

func (c *child) pid() int {
	return c.cmd.Process.Pid
}

func (c *child) exited() bool {
	select {
	case <-c.done:
		return true
	default:
	}
	return false
}

// exitError returns an ExitError once the process has exited, nil while it runs.
func (c *child) exitError() error {
	if !c.exited() {
		return nil
	}
	code := -1
	if c.cmd.ProcessState != nil {
		code = c.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	err := c.waitErr
	if errors.As(err, &exitErr) {
		// the exit code already says it
		err = nil
	}
	return &ExitError{Pid: c.pid(), Code: code, Err: err}
}

// waitFor blocks until the process exits or timeout elapses.
func (c *child) waitFor(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return true
	case <-timer.C:
		return false
	}
}

// signal sends sig to the child's process group. A group that is already
// gone is not an error.
func (c *child) signal(sig syscall.Signal) error {
	err := unix.Kill(-c.pid(), sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// terminate sends SIGTERM to the group, waits up to timeout for the child
// to exit and escalates to SIGKILL. The materialized config is removed in
// every case.
func (c *child) terminate(timeout time.Duration) error {
	defer c.removeConfig()

	if c.exited() {
		return nil
	}

	pid := c.pid()
	if err := c.signal(unix.SIGTERM); err != nil {
		slog.Warn("Failed to send SIGTERM to amman, forcing kill", "pid", pid, "error", err)
	} else if c.waitFor(timeout) {
		slog.Info("Amman terminated gracefully", "pid", pid)
		return nil
	} else {
		slog.Warn("Amman did not exit in time, forcing kill", "pid", pid, "timeout", timeout)
	}

	if err := c.signal(unix.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill amman process group %d: %w", pid, err)
	}
	if !c.waitFor(killGrace) {
		slog.Error("Amman survived SIGKILL", "pid", pid)
		return fmt.Errorf("amman process %d survived SIGKILL", pid)
	}
	return nil
}

func (c *child) removeConfig() {
	if c.config == nil {
		return
	}
	if err := c.config.Remove(); err != nil {
		slog.Warn("Failed to remove materialized config", "path", c.config.Path, "error", err)
	}
	c.config = nil
}
