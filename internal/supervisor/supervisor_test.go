package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.olrik.dev/amman/internal/probe"
	"go.olrik.dev/amman/internal/relay"
	"go.olrik.dev/amman/internal/testutil/fakerelay"
	"go.olrik.dev/amman/internal/validator"
)

func newTestSupervisor(t *testing.T, relayURL string, ports []int, opts ...Option) *Supervisor {
	t.Helper()
	client := relay.New(relayURL, relay.WithTimeout(time.Second))
	base := []Option{
		WithExecutable(testExecutable(t)),
		WithPorts(ports...),
		WithProber(probe.New(probe.WithInterval(20*time.Millisecond), probe.WithDialTimeout(100*time.Millisecond))),
		WithStartTimeout(10 * time.Second),
		WithStopTimeout(5 * time.Second),
		WithPollInterval(20 * time.Millisecond),
		WithTempDir(t.TempDir()),
		WithOutput(nil, nil),
	}
	return New(client, append(base, opts...)...)
}

// startExternalRelay runs a relay in this process that reports pid and
// holds ports, standing in for an amman someone else started.
func startExternalRelay(t *testing.T, pid int, ports []int) *fakerelay.Server {
	t.Helper()
	var srv *fakerelay.Server
	srv = fakerelay.New(fakerelay.Options{
		Pid: pid,
		OnKill: func() {
			srv.SetPid(0)
			srv.ReleasePorts()
		},
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("Failed to start relay: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	if err := srv.HoldPorts(ports); err != nil {
		t.Fatalf("Failed to hold ports: %v", err)
	}
	return srv
}

func TestSupervisor_InitialState(t *testing.T) {
	quietLogger(t)
	s := New(relay.New(""))

	if s.Started() {
		t.Error("New supervisor should not be started")
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle, got %s", s.State())
	}
	if s.Pid() != 0 {
		t.Errorf("Expected pid 0, got %d", s.Pid())
	}
	if s.exe != DefaultExecutable {
		t.Errorf("Expected default executable %q, got %q", DefaultExecutable, s.exe)
	}
	if len(s.ports) != 2 || s.ports[0] != 8899 || s.ports[1] != 8900 {
		t.Errorf("Expected default ports 8899/8900, got %v", s.ports)
	}
}

func TestSupervisor_KillIdle(t *testing.T) {
	quietLogger(t)
	rec := &memoryRecorder{}
	s := newTestSupervisor(t, "http://127.0.0.1:1", nil, WithRecorder(rec))

	err := s.Kill(context.Background(), true)
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Expected ErrNotRunning, got %v", err)
	}
	if s.Started() {
		t.Error("Supervisor should remain idle")
	}
	if len(rec.events) != 0 {
		t.Errorf("Expected no events, got %v", rec.types())
	}
}

func TestSupervisor_OwnedLifecycle(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeNormal)
	rec := &memoryRecorder{}
	cfg := &validator.Config{Validator: &validator.ValidatorConfig{KillRunningValidators: true}}
	s := newTestSupervisor(t, fake.relayURL, fake.ports, WithRecorder(rec))
	ctx := context.Background()

	if err := s.Start(ctx, cfg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		if s.State() == StateOwnedRunning {
			s.Kill(context.Background(), false)
		}
	})

	if s.State() != StateOwnedRunning || !s.Started() {
		t.Fatalf("Expected owned state, got %s", s.State())
	}
	pid := s.Pid()
	if pid == 0 || !processAlive(pid) {
		t.Fatalf("Expected a live child, got pid %d", pid)
	}

	reported, err := s.Client().ValidatorPid(ctx)
	if err != nil || reported != pid {
		t.Errorf("Relay reports pid %d (%v), expected %d", reported, err, pid)
	}
	for _, port := range fake.ports {
		if !probe.Probe(port) {
			t.Errorf("Port %d should accept connections", port)
		}
	}

	args := fake.args(t)
	if len(args) != 2 || args[0] != "start" {
		t.Fatalf("Expected `start <config>`, got %v", args)
	}
	configPath := args[1]
	if !strings.HasPrefix(filepath.Base(configPath), "amman-config_") || filepath.Ext(configPath) != ".json" {
		t.Errorf("Unexpected config path %s", configPath)
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Config should exist while running: %v", err)
	}
	if !strings.Contains(string(data), `"killRunningValidators": true`) {
		t.Errorf("Config does not carry the validator settings: %s", data)
	}

	if err := s.Start(ctx, cfg); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Second Start should fail with ErrAlreadyStarted, got %v", err)
	}
	if err := s.EnsureStarted(ctx); err != nil {
		t.Errorf("EnsureStarted on owned supervisor should be a no-op, got %v", err)
	}
	if s.Pid() != pid {
		t.Errorf("Pid changed from %d to %d", pid, s.Pid())
	}

	if err := s.Kill(ctx, false); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	if s.Started() || s.State() != StateIdle {
		t.Errorf("Expected idle after kill, got %s", s.State())
	}
	if processAlive(pid) {
		t.Errorf("Child %d still alive after kill", pid)
	}
	if _, err := os.Stat(configPath); !os.IsNotExist(err) {
		t.Errorf("Config %s should be removed after kill", configPath)
	}
	if err := probe.New().AwaitReleased(ctx, fake.ports, 5*time.Second); err != nil {
		t.Errorf("Ports not released after kill: %v", err)
	}

	if err := s.Kill(ctx, false); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Second kill should fail with ErrNotRunning, got %v", err)
	}

	got := strings.Join(rec.types(), ",")
	if got != "start,kill" {
		t.Errorf("Expected events start,kill, got %s", got)
	}
	if !rec.events[0].owned || rec.events[0].pid != pid {
		t.Errorf("Unexpected start event %+v", rec.events[0])
	}
}

func TestSupervisor_StartWithoutConfig(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeNormal)
	s := newTestSupervisor(t, fake.relayURL, fake.ports)
	ctx := context.Background()

	if err := s.EnsureStarted(ctx); err != nil {
		t.Fatalf("EnsureStarted failed: %v", err)
	}
	defer s.Kill(ctx, false)

	if s.State() != StateOwnedRunning {
		t.Fatalf("Expected owned, got %s", s.State())
	}
	if args := fake.args(t); len(args) != 1 || args[0] != "start" {
		t.Errorf("Expected bare `start`, got %v", args)
	}
}

func TestSupervisor_DefaultConfig(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeNormal)
	cfg := &validator.Config{AssetsFolder: ".amman"}
	s := newTestSupervisor(t, fake.relayURL, fake.ports, WithConfig(cfg))
	ctx := context.Background()

	if err := s.Start(ctx, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Kill(ctx, false)

	args := fake.args(t)
	if len(args) != 2 {
		t.Fatalf("Expected config argument, got %v", args)
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if !strings.Contains(string(data), `"assetsFolder": ".amman"`) {
		t.Errorf("Default config not used: %s", data)
	}
}

func TestSupervisor_StartWhenRunningExternally(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeNormal)
	ports := []int{freePort(t), freePort(t)}
	srv := startExternalRelay(t, 4242, ports)
	rec := &memoryRecorder{}
	s := newTestSupervisor(t, srv.URL(), ports, WithRecorder(rec))

	err := s.Start(context.Background(), nil)
	if !errors.Is(err, ErrAlreadyRunningExternally) {
		t.Fatalf("Expected ErrAlreadyRunningExternally, got %v", err)
	}
	var running *AlreadyRunningError
	if !errors.As(err, &running) || running.Pid != 4242 {
		t.Errorf("Expected AlreadyRunningError with pid 4242, got %v", err)
	}
	if !strings.Contains(err.Error(), "4242") {
		t.Errorf("Error should name the pid: %v", err)
	}

	if s.State() != StateExternallyRunning || s.Pid() != 4242 || !s.Started() {
		t.Errorf("Expected external state with pid 4242, got %s/%d", s.State(), s.Pid())
	}
	if args := fake.args(t); args != nil {
		t.Errorf("Nothing should have been spawned, got %v", args)
	}
	if got := strings.Join(rec.types(), ","); got != "adopt" {
		t.Errorf("Expected adopt event, got %s", got)
	}
}

func TestSupervisor_EnsureStartedAdoptsExternal(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeNormal)
	srv := startExternalRelay(t, 4242, nil)
	s := newTestSupervisor(t, srv.URL(), nil)

	if err := s.EnsureStarted(context.Background()); err != nil {
		t.Fatalf("EnsureStarted failed: %v", err)
	}
	if s.State() != StateExternallyRunning || s.Pid() != 4242 {
		t.Errorf("Expected external pid 4242, got %s/%d", s.State(), s.Pid())
	}
	if args := fake.args(t); args != nil {
		t.Errorf("Nothing should have been spawned, got %v", args)
	}
}

func TestSupervisor_KillExternalRefused(t *testing.T) {
	quietLogger(t)
	ports := []int{freePort(t), freePort(t)}
	srv := startExternalRelay(t, 4242, ports)
	rec := &memoryRecorder{}
	s := newTestSupervisor(t, srv.URL(), ports, WithRecorder(rec))

	if s.Refresh(context.Background()) != StateExternallyRunning {
		t.Fatalf("Expected external after refresh, got %s", s.State())
	}
	if err := s.Kill(context.Background(), false); err != nil {
		t.Fatalf("Refused kill should not fail: %v", err)
	}
	if s.State() != StateExternallyRunning || s.Pid() != 4242 {
		t.Errorf("State must not change, got %s/%d", s.State(), s.Pid())
	}
	if n := srv.Requests(relay.CommandKillAmman); n != 0 {
		t.Errorf("Relay must not be asked to kill, got %d requests", n)
	}
	for _, port := range ports {
		if !probe.Probe(port) {
			t.Errorf("External validator must keep port %d bound", port)
		}
	}
	if got := strings.Join(rec.types(), ","); got != "adopt,kill_skipped" {
		t.Errorf("Expected adopt,kill_skipped, got %s", got)
	}
}

func TestSupervisor_KillExternal(t *testing.T) {
	quietLogger(t)
	ports := []int{freePort(t), freePort(t)}
	srv := startExternalRelay(t, 4242, ports)
	t.Setenv(envHelper, "1")
	t.Setenv(envRelayURL, srv.URL())
	rec := &memoryRecorder{}
	s := newTestSupervisor(t, srv.URL(), ports, WithRecorder(rec))
	ctx := context.Background()

	s.Refresh(ctx)
	if err := s.Kill(ctx, true); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	if s.State() != StateIdle || s.Started() {
		t.Errorf("Expected idle, got %s", s.State())
	}
	if n := srv.Requests(relay.CommandKillAmman); n != 1 {
		t.Errorf("Expected `amman stop` to send one kill request, got %d", n)
	}
	for _, port := range ports {
		if probe.Probe(port) {
			t.Errorf("Port %d still bound", port)
		}
	}
	if got := strings.Join(rec.types(), ","); got != "adopt,stop_external" {
		t.Errorf("Expected adopt,stop_external, got %s", got)
	}
}

func TestSupervisor_KillExternalStopFails(t *testing.T) {
	quietLogger(t)
	srv := startExternalRelay(t, 4242, nil)
	t.Setenv(envHelper, "1")
	// nothing listens here so the fake `amman_ stop` exits non-zero
	t.Setenv(envRelayURL, "http://127.0.0.1:1")
	s := newTestSupervisor(t, srv.URL(), nil)
	ctx := context.Background()

	s.Refresh(ctx)
	if err := s.Kill(ctx, true); err == nil {
		t.Fatal("Expected failing stop to return an error")
	}
	if s.State() != StateExternallyRunning {
		t.Errorf("State must stay external after failed stop, got %s", s.State())
	}
}

func TestSupervisor_ChildExitsEarly(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeExit)
	rec := &memoryRecorder{}
	tempDir := t.TempDir()
	s := newTestSupervisor(t, fake.relayURL, fake.ports, WithRecorder(rec), WithTempDir(tempDir))

	err := s.Start(context.Background(), &validator.Config{})
	if !errors.Is(err, ErrExitedEarly) {
		t.Fatalf("Expected ErrExitedEarly, got %v", err)
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Errorf("Expected exit code 3, got %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle, got %s", s.State())
	}
	if entries, _ := os.ReadDir(tempDir); len(entries) != 0 {
		t.Errorf("Materialized config should be removed, found %d files", len(entries))
	}
	if got := strings.Join(rec.types(), ","); got != "start_failed" {
		t.Errorf("Expected start_failed, got %s", got)
	}
}

func TestSupervisor_StartTimeout(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeNoPorts)
	s := newTestSupervisor(t, fake.relayURL, fake.ports, WithStartTimeout(2*time.Second))

	started := time.Now()
	err := s.Start(context.Background(), nil)
	if !errors.Is(err, ErrStartTimeout) {
		t.Fatalf("Expected ErrStartTimeout, got %v", err)
	}
	if !errors.Is(err, probe.ErrNotReady) {
		t.Errorf("Expected the unready ports to be reported, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 8*time.Second {
		t.Errorf("Start took %s, timeout not honored", elapsed)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle, got %s", s.State())
	}

	// the child was torn down, so its relay is gone too
	if _, err := s.Client().ValidatorPid(context.Background()); !errors.Is(err, relay.ErrUnreachable) {
		t.Errorf("Expected child relay to be gone, got %v", err)
	}
}

func TestSupervisor_StartCancelled(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeNoPorts)
	s := newTestSupervisor(t, fake.relayURL, fake.ports)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := s.Start(ctx, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context error, got %v", err)
	}
	if errors.Is(err, ErrStartTimeout) {
		t.Errorf("Cancellation is not a start timeout: %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle, got %s", s.State())
	}
}

func TestSupervisor_StartWithCancelledContext(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeNormal)
	rec := &memoryRecorder{}
	s := newTestSupervisor(t, fake.relayURL, fake.ports, WithRecorder(rec))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Start(ctx, &validator.Config{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if args := fake.args(t); args != nil {
		t.Errorf("Nothing may be spawned under a cancelled context, got args %v", args)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle, got %s", s.State())
	}
	if len(rec.events) != 0 {
		t.Errorf("Expected no events, got %v", rec.types())
	}
	entries, _ := os.ReadDir(s.tempDir)
	if len(entries) != 0 {
		t.Errorf("No config may be materialized, found %d files", len(entries))
	}
}

func TestSupervisor_KillOwnedAfterChildDied(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeNormal)
	rec := &memoryRecorder{}
	s := newTestSupervisor(t, fake.relayURL, fake.ports, WithRecorder(rec))
	ctx := context.Background()

	if err := s.Start(ctx, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	c := s.state.(owned).child

	// amman dies without the supervisor noticing
	if err := syscall.Kill(-c.pid(), syscall.SIGKILL); err != nil {
		t.Fatalf("Failed to kill process group: %v", err)
	}
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("Child did not exit after SIGKILL")
	}

	// another amman takes over the relay address
	foreign := fakerelay.New(fakerelay.Options{
		Addr: strings.TrimPrefix(fake.relayURL, "http://"),
		Pid:  4242,
	})
	if err := foreign.Start(); err != nil {
		t.Fatalf("Failed to start foreign relay: %v", err)
	}
	t.Cleanup(func() { foreign.Close() })

	if err := s.Kill(ctx, false); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	if n := foreign.Requests(relay.CommandKillAmman); n != 0 {
		t.Errorf("A validator this supervisor did not spawn must not be killed, got %d kill requests", n)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle, got %s", s.State())
	}
	if got := strings.Join(rec.types(), ","); got != "start,exited" {
		t.Errorf("Expected start,exited, got %s", got)
	}
}

func TestSupervisor_KillEscalatesToSigkill(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeStubborn)
	s := newTestSupervisor(t, fake.relayURL, fake.ports, WithStopTimeout(300*time.Millisecond))
	ctx := context.Background()

	if err := s.Start(ctx, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pid := s.Pid()

	started := time.Now()
	if err := s.Kill(ctx, false); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	if elapsed := time.Since(started); elapsed < 300*time.Millisecond {
		t.Errorf("Kill returned after %s, before the stop timeout", elapsed)
	}
	if processAlive(pid) {
		t.Errorf("Stubborn child %d survived", pid)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle, got %s", s.State())
	}
}

func TestSupervisor_Restart(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeNormal)
	rec := &memoryRecorder{}
	s := newTestSupervisor(t, fake.relayURL, fake.ports, WithRecorder(rec))
	ctx := context.Background()

	if err := s.Start(ctx, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	first := s.Pid()

	if err := s.Restart(ctx, nil); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	defer s.Kill(ctx, false)

	if s.State() != StateOwnedRunning {
		t.Fatalf("Expected owned after restart, got %s", s.State())
	}
	if s.Pid() == first {
		t.Errorf("Restart should spawn a new process, pid still %d", first)
	}
	if processAlive(first) {
		t.Errorf("Old child %d still alive", first)
	}
	if got := strings.Join(rec.types(), ","); got != "start,kill,start" {
		t.Errorf("Expected start,kill,start, got %s", got)
	}
}

func TestSupervisor_RestartExternal(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeNormal)
	t.Setenv(envRelayURL, fake.relayURL)

	// an amman started elsewhere serves the relay and holds the ports
	var external *fakerelay.Server
	external = fakerelay.New(fakerelay.Options{
		Addr:   strings.TrimPrefix(fake.relayURL, "http://"),
		Pid:    4242,
		OnKill: func() { external.Close() },
	})
	if err := external.Start(); err != nil {
		t.Fatalf("Failed to start external relay: %v", err)
	}
	t.Cleanup(func() { external.Close() })
	if err := external.HoldPorts(fake.ports); err != nil {
		t.Fatalf("Failed to hold ports: %v", err)
	}

	rec := &memoryRecorder{}
	s := newTestSupervisor(t, fake.relayURL, fake.ports, WithRecorder(rec))
	ctx := context.Background()

	if s.Refresh(ctx) != StateExternallyRunning || s.Pid() != 4242 {
		t.Fatalf("Expected external 4242, got %s/%d", s.State(), s.Pid())
	}

	if err := s.Restart(ctx, nil); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	t.Cleanup(func() { s.Kill(context.Background(), false) })

	if n := external.Requests(relay.CommandKillAmman); n != 1 {
		t.Errorf("Expected `amman stop` to send one kill request, got %d", n)
	}
	if s.State() != StateOwnedRunning {
		t.Fatalf("Expected owned after restart, got %s", s.State())
	}
	if s.Pid() == 4242 || s.Pid() == 0 {
		t.Errorf("Expected a new pid, got %d", s.Pid())
	}

	if got := strings.Join(rec.types(), ","); got != "adopt,stop_external,start" {
		t.Fatalf("Expected adopt,stop_external,start, got %s", got)
	}
	// stop_external is only clean once every external port was released
	if details := rec.events[1].details; details != "" {
		t.Errorf("External stop reported a problem: %s", details)
	}
	for _, port := range fake.ports {
		if !probe.Probe(port) {
			t.Errorf("New validator should hold port %d", port)
		}
	}
}

func TestSupervisor_RestartIdle(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeNormal)
	s := newTestSupervisor(t, fake.relayURL, fake.ports)
	ctx := context.Background()

	if err := s.Restart(ctx, nil); err != nil {
		t.Fatalf("Restart from idle failed: %v", err)
	}
	defer s.Kill(ctx, false)

	if s.State() != StateOwnedRunning {
		t.Errorf("Expected owned, got %s", s.State())
	}
}

func TestSupervisor_Refresh(t *testing.T) {
	quietLogger(t)
	srv := startExternalRelay(t, 0, nil)
	rec := &memoryRecorder{}
	s := newTestSupervisor(t, srv.URL(), nil, WithRecorder(rec))
	ctx := context.Background()

	if st := s.Refresh(ctx); st != StateIdle {
		t.Errorf("Expected idle, got %s", st)
	}

	srv.SetPid(77)
	if st := s.Refresh(ctx); st != StateExternallyRunning || s.Pid() != 77 {
		t.Errorf("Expected external 77, got %s/%d", st, s.Pid())
	}

	srv.SetPid(78)
	s.Refresh(ctx)
	if s.Pid() != 78 {
		t.Errorf("Expected pid to follow relay, got %d", s.Pid())
	}

	srv.SetPid(0)
	if st := s.Refresh(ctx); st != StateIdle || s.Pid() != 0 {
		t.Errorf("Expected idle once relay reports none, got %s/%d", st, s.Pid())
	}

	if got := strings.Join(rec.types(), ","); got != "adopt,adopt,gone" {
		t.Errorf("Expected adopt,adopt,gone, got %s", got)
	}
}

func TestSupervisor_RefreshUnreachableRelay(t *testing.T) {
	quietLogger(t)
	s := newTestSupervisor(t, "http://127.0.0.1:1", nil)

	if st := s.Refresh(context.Background()); st != StateIdle {
		t.Errorf("Unreachable relay means idle, got %s", st)
	}
}

func TestSupervisor_RefreshReapsExitedChild(t *testing.T) {
	quietLogger(t)
	fake := setupFakeAmman(t, modeNormal)
	rec := &memoryRecorder{}
	s := newTestSupervisor(t, fake.relayURL, fake.ports, WithRecorder(rec))
	ctx := context.Background()

	if err := s.Start(ctx, &validator.Config{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	configPath := fake.args(t)[1]

	// shut amman down behind the supervisor's back
	if err := s.Client().KillAmman(ctx); err != nil {
		t.Fatalf("KillAmman failed: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.Refresh(ctx) == StateOwnedRunning && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	if s.State() != StateIdle {
		t.Fatalf("Expected idle after child exit, got %s", s.State())
	}
	if _, err := os.Stat(configPath); !os.IsNotExist(err) {
		t.Errorf("Config should be removed once the child is reaped")
	}
	if got := strings.Join(rec.types(), ","); got != "start,exited" {
		t.Errorf("Expected start,exited, got %s", got)
	}
}

func TestObserver(t *testing.T) {
	quietLogger(t)
	srv := startExternalRelay(t, 4242, nil)
	s := newTestSupervisor(t, srv.URL(), nil)
	ctx := context.Background()

	obs := s.Observer()
	if obs.Started() || obs.Pid() != 0 || obs.Owned() {
		t.Errorf("Observer of idle supervisor should be empty, got %+v", obs)
	}

	s.Refresh(ctx)
	obs = s.Observer()
	if !obs.Started() || obs.Pid() != 4242 || obs.Owned() {
		t.Errorf("Expected external 4242 view, got %+v", obs)
	}

	// copies are independent
	stale := obs
	srv.SetPid(0)
	obs = obs.Refresh(ctx)
	if obs.Started() || obs.Pid() != 0 {
		t.Errorf("Refreshed observer should see no validator, got %+v", obs)
	}
	if !stale.Started() || stale.Pid() != 4242 {
		t.Errorf("Copy must not change, got %+v", stale)
	}

	fresh := NewObserver(s.Client()).Refresh(ctx)
	if fresh.Started() {
		t.Errorf("Fresh observer should see no validator")
	}
}

func TestErrors(t *testing.T) {
	running := &AlreadyRunningError{Pid: 12}
	if !errors.Is(running, ErrAlreadyRunningExternally) {
		t.Error("AlreadyRunningError should match ErrAlreadyRunningExternally")
	}
	if errors.Is(running, ErrAlreadyStarted) {
		t.Error("AlreadyRunningError must not match ErrAlreadyStarted")
	}

	exit := &ExitError{Pid: 1, Code: 2}
	if !errors.Is(exit, ErrExitedEarly) {
		t.Error("ExitError should match ErrExitedEarly")
	}
	if !strings.Contains(exit.Error(), "exit code 2") {
		t.Errorf("Unexpected message %q", exit.Error())
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:              "idle",
		StateOwnedRunning:      "owned",
		StateExternallyRunning: "external",
		State(42):              "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestDescribe(t *testing.T) {
	info, err := Describe(os.Getpid())
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if !info.Running {
		t.Error("Own process should be running")
	}
	if info.Name == "" {
		t.Error("Expected a process name")
	}
	if info.CreateTime.IsZero() || info.Uptime() <= 0 {
		t.Errorf("Expected a create time, got %v", info.CreateTime)
	}

	if _, err := Describe(1 << 30); err == nil {
		t.Error("Expected error for nonexistent pid")
	}
}

func TestProcessInfo_LooksLikeAmman(t *testing.T) {
	tests := []struct {
		info ProcessInfo
		want bool
	}{
		{ProcessInfo{Name: "node", Cmdline: "node /usr/lib/node_modules/@metaplex-foundation/amman/dist/cli/amman.js start"}, true},
		{ProcessInfo{Name: "solana-test-validator"}, true},
		{ProcessInfo{Name: "bash", Cmdline: "bash"}, false},
	}
	for _, tt := range tests {
		if got := tt.info.LooksLikeAmman(); got != tt.want {
			t.Errorf("LooksLikeAmman(%q) = %v, want %v", tt.info.Cmdline, got, tt.want)
		}
	}
}
