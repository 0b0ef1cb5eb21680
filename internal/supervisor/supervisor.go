// Package supervisor starts, detects and stops the amman validator.
//
// A Supervisor either owns a validator it spawned, observes one the relay
// reports but somebody else started, or knows of none. It never assumes a
// state at construction: the relay is asked whenever a decision depends on
// it. The Supervisor is meant for a single owner and is not safe for
// concurrent use. Hand out an Observer for read-only access.
package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.olrik.dev/amman/internal/probe"
	"go.olrik.dev/amman/internal/relay"
	"go.olrik.dev/amman/internal/validator"
)

// Lifecycle events passed to the Recorder
const (
	EventStart        = "start"
	EventStartFailed  = "start_failed"
	EventAdopt        = "adopt"
	EventKill         = "kill"
	EventKillSkipped  = "kill_skipped"
	EventStopExternal = "stop_external"
	EventExited       = "exited"
	EventGone         = "gone"
)

// Recorder journals lifecycle events.
type Recorder interface {
	LogValidatorEvent(eventType string, pid int, owned bool, details string) error
}

// Supervisor controls the lifecycle of one amman validator.
type Supervisor struct {
	client *relay.Client
	prober *probe.Prober

	exe          string
	ports        []int
	startTimeout time.Duration
	stopTimeout  time.Duration
	pollInterval time.Duration
	config       *validator.Config
	recorder     Recorder
	tempDir      string
	stdout       io.Writer
	stderr       io.Writer

	state state
}

// New creates an idle supervisor talking to the relay through client.
func New(client *relay.Client, opts ...Option) *Supervisor {
	s := &Supervisor{
		client:       client,
		prober:       probe.New(),
		exe:          DefaultExecutable,
		ports:        probe.DefaultPorts(),
		startTimeout: DefaultStartTimeout,
		stopTimeout:  DefaultStopTimeout,
		pollInterval: DefaultPollInterval,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		state:        idle{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Started reports whether a validator is known to be running, owned or not.
func (s *Supervisor) Started() bool {
	return s.state.kind() != StateIdle
}

// State returns the last known state without contacting the relay.
func (s *Supervisor) State() State {
	return s.state.kind()
}

// Pid returns the spawned process's pid when owned, the relay reported pid
// when external and 0 when idle.
func (s *Supervisor) Pid() int {
	switch st := s.state.(type) {
	case owned:
		return st.child.pid()
	case external:
		return st.pid
	default:
		return 0
	}
}

// Client returns the relay client the supervisor uses.
func (s *Supervisor) Client() *relay.Client {
	return s.client
}

// EnsureStarted makes sure some validator is running. One already reported
// by the relay is adopted as external, otherwise one is spawned with the
// default config.
func (s *Supervisor) EnsureStarted(ctx context.Context) error {
	if _, ok := s.state.(owned); ok {
		return nil
	}
	if pid, ok := s.queryPid(ctx); ok {
		s.adopt(pid)
		return nil
	}
	return s.Start(ctx, nil)
}

// Start spawns `<exe> start [config]` and blocks until the relay reports a
// validator pid and every port accepts connections. A nil cfg falls back to
// the WithConfig default; with neither, amman uses its own defaults.
func (s *Supervisor) Start(ctx context.Context, cfg *validator.Config) error {
	if _, ok := s.state.(owned); ok {
		return ErrAlreadyStarted
	}
	// a failed pid query under a cancelled ctx says nothing about amman
	if err := ctx.Err(); err != nil {
		return err
	}
	if pid, ok := s.queryPid(ctx); ok {
		s.adopt(pid)
		return &AlreadyRunningError{Pid: pid}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// the relay no longer reports the validator we observed
	s.state = idle{}

	if cfg == nil {
		cfg = s.config
	}

	args := []string{"start"}
	var file *validator.File
	if cfg != nil {
		var err error
		file, err = validator.Materialize(s.tempDir, cfg)
		if err != nil {
			return err
		}
		args = append(args, file.Path)
	}

	c, err := spawn(s.exe, args, s.stdout, s.stderr)
	if err != nil {
		if rmErr := file.Remove(); rmErr != nil {
			slog.Warn("Failed to remove materialized config", "error", rmErr)
		}
		s.record(EventStartFailed, 0, true, err.Error())
		return fmt.Errorf("failed to spawn %s: %w", s.exe, err)
	}
	c.config = file

	if err := s.awaitStarted(ctx, c); err != nil {
		slog.Warn("Amman failed to start, terminating it", "pid", c.pid(), "error", err)
		if termErr := c.terminate(s.stopTimeout); termErr != nil {
			slog.Error("Failed to terminate amman after failed start", "pid", c.pid(), "error", termErr)
		}
		s.record(EventStartFailed, c.pid(), true, err.Error())
		return err
	}

	s.state = owned{child: c}
	s.record(EventStart, c.pid(), true, strings.Join(args, " "))
	slog.Info("Amman is ready", "pid", c.pid(), "ports", s.ports)
	return nil
}

// awaitStarted waits until the relay reports a pid, then until the ports
// accept connections, all within the start timeout.
func (s *Supervisor) awaitStarted(ctx context.Context, c *child) error {
	deadline := time.Now().Add(s.startTimeout)
	startCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if err := c.exitError(); err != nil {
			return err
		}
		if pid, ok := s.queryPid(startCtx); ok {
			slog.Debug("Relay reports validator", "pid", pid, "child", c.pid())
			break
		}

		select {
		case <-startCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.exitError(); err != nil {
				return err
			}
			return fmt.Errorf("%w: relay at %s reported no validator within %s", ErrStartTimeout, s.client.BaseURL(), s.startTimeout)
		case <-c.done:
			return c.exitError()
		case <-ticker.C:
		}
	}

	// AwaitReady treats zero as unbounded
	remaining := max(time.Until(deadline), time.Millisecond)
	if err := s.prober.AwaitReady(ctx, s.ports, remaining); err != nil {
		if exitErr := c.exitError(); exitErr != nil {
			return exitErr
		}
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", ErrStartTimeout, err)
	}

	if err := c.exitError(); err != nil {
		return err
	}
	return nil
}

// Restart stops whatever validator is running, including one started
// elsewhere, waits for its ports to be released and starts a new one.
func (s *Supervisor) Restart(ctx context.Context, cfg *validator.Config) error {
	if s.Started() {
		if err := s.Kill(ctx, true); err != nil {
			return fmt.Errorf("failed to stop amman for restart: %w", err)
		}
		if err := s.prober.AwaitReleased(ctx, s.ports, s.stopTimeout); err != nil {
			return fmt.Errorf("failed to restart amman: %w", err)
		}
	}
	return s.Start(ctx, cfg)
}

// Kill stops the validator. An owned validator is asked to shut down via
// the relay and its process group is terminated. An external one is only
// stopped when killExternal is set, by running `<exe> stop` and waiting
// for its ports to be released.
func (s *Supervisor) Kill(ctx context.Context, killExternal bool) error {
	switch st := s.state.(type) {
	case owned:
		return s.killOwned(ctx, st.child)
	case external:
		if !killExternal {
			slog.Warn("Refusing to kill amman that was not started by this supervisor, stop it with `amman stop`", "pid", st.pid)
			s.record(EventKillSkipped, st.pid, false, "")
			return nil
		}
		return s.stopExternal(ctx, st.pid)
	default:
		return ErrNotRunning
	}
}

func (s *Supervisor) killOwned(ctx context.Context, c *child) error {
	pid := c.pid()

	// whoever serves the relay now is not our child
	if c.exited() {
		exitErr := c.exitError()
		slog.Info("Amman already exited, skipping relay kill", "pid", pid, "error", exitErr)
		if err := c.terminate(s.stopTimeout); err != nil {
			slog.Warn("Failed to clean up exited amman", "pid", pid, "error", err)
		}
		s.state = idle{}
		details := ""
		if exitErr != nil {
			details = exitErr.Error()
		}
		s.record(EventExited, pid, true, details)
		return nil
	}

	// best effort, the process group is terminated either way
	if err := s.client.KillAmman(ctx); err != nil {
		slog.Warn("Relay did not accept kill request", "pid", pid, "error", err)
	}

	err := c.terminate(s.stopTimeout)
	s.state = idle{}
	if err != nil {
		s.record(EventKill, pid, true, err.Error())
		return fmt.Errorf("failed to kill amman: %w", err)
	}
	s.record(EventKill, pid, true, "")
	return nil
}

func (s *Supervisor) stopExternal(ctx context.Context, pid int) error {
	stopCtx, cancel := context.WithTimeout(ctx, s.stopTimeout)
	defer cancel()

	var output bytes.Buffer
	cmd := exec.CommandContext(stopCtx, s.exe, "stop")
	cmd.Stdout = &output
	cmd.Stderr = &output

	slog.Info("Stopping external amman", "pid", pid, "executable", s.exe)
	if err := cmd.Run(); err != nil {
		out := strings.TrimSpace(output.String())
		s.record(EventStopExternal, pid, false, err.Error())
		if out != "" {
			return fmt.Errorf("failed to run %s stop: %w: %s", s.exe, err, out)
		}
		return fmt.Errorf("failed to run %s stop: %w", s.exe, err)
	}

	if err := s.prober.AwaitReleased(ctx, s.ports, s.stopTimeout); err != nil {
		s.record(EventStopExternal, pid, false, err.Error())
		return fmt.Errorf("amman stop returned but validator is still listening: %w", err)
	}

	s.state = idle{}
	s.record(EventStopExternal, pid, false, "")
	return nil
}

// Refresh reconciles the state with reality. An owned process that exited
// on its own is reaped. Otherwise the relay decides between external and idle.
func (s *Supervisor) Refresh(ctx context.Context) State {
	if st, ok := s.state.(owned); ok {
		if err := st.child.exitError(); err != nil {
			slog.Warn("Amman exited on its own", "pid", st.child.pid(), "error", err)
			st.child.removeConfig()
			s.state = idle{}
			s.record(EventExited, st.child.pid(), true, err.Error())
		}
		return s.State()
	}

	if pid, ok := s.queryPid(ctx); ok {
		s.adopt(pid)
	} else if st, ok := s.state.(external); ok {
		slog.Info("External amman is gone", "pid", st.pid)
		s.state = idle{}
		s.record(EventGone, st.pid, false, "")
	}
	return s.State()
}

// Observer returns a read-only snapshot of the supervisor.
func (s *Supervisor) Observer() Observer {
	_, isOwned := s.state.(owned)
	return Observer{
		client:  s.client,
		pid:     s.Pid(),
		started: s.Started(),
		owned:   isOwned,
	}
}

// adopt records a validator the relay reports but this supervisor did not spawn.
func (s *Supervisor) adopt(pid int) {
	if st, ok := s.state.(external); ok && st.pid == pid {
		return
	}
	slog.Info("Found amman started elsewhere", "pid", pid)
	s.state = external{pid: pid}
	s.record(EventAdopt, pid, false, "")
}

// queryPid asks the relay for the validator pid. Any failure, whether the
// relay is down or says nothing runs, counts as not running.
func (s *Supervisor) queryPid(ctx context.Context) (int, bool) {
	pid, err := s.client.ValidatorPid(ctx)
	if err != nil {
		if !errors.Is(err, relay.ErrUnreachable) {
			slog.Debug("Relay reports no validator", "error", err)
		}
		return 0, false
	}
	if pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (s *Supervisor) record(eventType string, pid int, isOwned bool, details string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.LogValidatorEvent(eventType, pid, isOwned, details); err != nil {
		slog.Warn("Failed to record validator event", "event", eventType, "error", err)
	}
}
