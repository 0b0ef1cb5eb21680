// Package probe checks whether local TCP ports accept connections.
//
// The validator exposes an RPC and a websocket port. A port that accepts a
// connection counts as bound, a refused or timed out dial as free. Waits poll
// at a fixed interval until every port reaches the wanted state.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultHost        = "127.0.0.1"
	DefaultInterval    = 100 * time.Millisecond
	DefaultDialTimeout = 200 * time.Millisecond

	// RPCPort and WebsocketPort are where the validator listens by default.
	RPCPort       = 8899
	WebsocketPort = 8900
)

// DefaultPorts returns the validator's RPC and websocket ports.
func DefaultPorts() []int {
	return []int{RPCPort, WebsocketPort}
}

var (
	// ErrNotReady indicates some ports did not accept connections in time
	ErrNotReady = errors.New("ports not ready")
	// ErrNotReleased indicates some ports were still bound when time ran out
	ErrNotReleased = errors.New("ports not released")
)

// WaitError lists the ports that never reached the wanted state.
type WaitError struct {
	Err     error
	Ports   []int
	Elapsed time.Duration
}

func (e *WaitError) Error() string {
	ports := make([]string, len(e.Ports))
	for i, p := range e.Ports {
		ports[i] = strconv.Itoa(p)
	}
	return fmt.Sprintf("%v after %s: %s", e.Err, e.Elapsed.Round(time.Millisecond), strings.Join(ports, ", "))
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

// Prober dials local ports.
type Prober struct {
	host        string
	interval    time.Duration
	dialTimeout time.Duration
}

// Option configures a Prober
type Option func(*Prober)

// WithHost sets the host ports are dialed on
func WithHost(host string) Option {
	return func(p *Prober) {
		p.host = host
	}
}

// WithInterval sets the polling interval of the Await functions
func WithInterval(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithDialTimeout bounds a single dial
func WithDialTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// New creates a Prober.
func New(opts ...Option) *Prober {
	p := &Prober{
		host:        DefaultHost,
		interval:    DefaultInterval,
		dialTimeout: DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultProber = New()

// Probe reports whether port accepts connections on the default host.
func Probe(port int) bool {
	return defaultProber.Probe(port)
}

// Probe makes a single connection attempt to port.
func (p *Prober) Probe(port int) bool {
	addr := net.JoinHostPort(p.host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, p.dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// AwaitReady polls until every port accepts connections.
// A zero timeout waits until ctx is done.
func (p *Prober) AwaitReady(ctx context.Context, ports []int, timeout time.Duration) error {
	return p.await(ctx, ports, timeout, true)
}

// AwaitReleased polls until no port accepts connections.
// A zero timeout waits until ctx is done.
func (p *Prober) AwaitReleased(ctx context.Context, ports []int, timeout time.Duration) error {
	return p.await(ctx, ports, timeout, false)
}

func (p *Prober) await(ctx context.Context, ports []int, timeout time.Duration, open bool) error {
	sentinel := ErrNotReady
	if !open {
		sentinel = ErrNotReleased
	}

	started := time.Now()
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		// a cancelled ctx must never pass for released ports
		if err := ctx.Err(); err != nil {
			return errors.Join(err, &WaitError{Err: sentinel, Ports: p.pending(ports, open), Elapsed: time.Since(started)})
		}

		pending := p.pending(ports, open)
		if len(pending) == 0 {
			slog.Debug("Ports reached state", "ports", ports, "open", open, "elapsed", time.Since(started))
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Join(ctx.Err(), &WaitError{Err: sentinel, Ports: pending, Elapsed: time.Since(started)})
		case <-deadline:
			// one last look so a port that flipped during the final interval counts
			if pending = p.pending(ports, open); len(pending) == 0 {
				return nil
			}
			return &WaitError{Err: sentinel, Ports: pending, Elapsed: time.Since(started)}
		case <-ticker.C:
		}
	}
}

// pending returns the ports whose state differs from open. Dials are bounded
// by the dial timeout only, a failed dial has to mean the port is closed.
func (p *Prober) pending(ports []int, open bool) []int {
	var out []int
	for _, port := range ports {
		if p.Probe(port) != open {
			out = append(out, port)
		}
	}
	return out
}
