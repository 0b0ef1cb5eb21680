// Package fakerelay provides an in-process amman relay for tests.
//
// The server answers the request/reply commands the supervisor and CLI use,
// and can hold a set of TCP ports open to stand in for the validator's RPC and
// websocket listeners. It does not depend on the testing package so that a
// re-executed test binary can run it as a fake validator process.
package fakerelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.olrik.dev/amman/internal/relay"
)

// Options configures the fake relay.
type Options struct {
	Addr    string        // Listen address, defaults to 127.0.0.1:0
	Pid     int           // Reported validator pid, 0 means no validator running
	Version relay.Version // Defaults to relay.CurrentVersion
	OnKill  func()        // Called after a request:kill-amman has been answered
}

// Server is a fake relay.
type Server struct {
	opts     Options
	listener net.Listener
	http     *http.Server

	mu        sync.Mutex
	pid       int
	labels    map[string]string
	states    map[string][]relay.AccountState
	overrides map[relay.Command]http.HandlerFunc
	requests  map[relay.Command]int
	ports     []net.Listener
}

// New creates a fake relay. Call Start to begin serving.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.Version == (relay.Version{}) {
		opts.Version = relay.CurrentVersion
	}
	return &Server{
		opts:      opts,
		pid:       opts.Pid,
		labels:    make(map[string]string),
		states:    make(map[string][]relay.AccountState),
		overrides: make(map[relay.Command]http.HandlerFunc),
		requests:  make(map[relay.Command]int),
	}
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	s.listener = l
	s.http = &http.Server{Handler: http.HandlerFunc(s.serve)}
	go s.http.Serve(l)
	return nil
}

// URL returns the relay root URL.
func (s *Server) URL() string {
	return "http://" + s.listener.Addr().String()
}

// Close stops serving once in-flight replies have been written, then
// releases any held ports. Released ports therefore imply a gone relay.
func (s *Server) Close() error {
	defer s.ReleasePorts()
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return s.http.Close()
	}
	return nil
}

// SetPid changes the reported validator pid. Zero reports no validator.
func (s *Server) SetPid(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pid = pid
}

// SetAccountStates seeds the state history for address.
func (s *Server) SetAccountStates(address string, states []relay.AccountState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[address] = states
}

// Labels returns a copy of the labels the relay knows.
func (s *Server) Labels() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.labels))
	for k, v := range s.labels {
		out[k] = v
	}
	return out
}

// Override replaces the handler for cmd, e.g. to send malformed replies.
func (s *Server) Override(cmd relay.Command, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[cmd] = h
}

// Requests returns how often cmd was received.
func (s *Server) Requests(cmd relay.Command) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[cmd]
}

// HoldPorts listens on each local port until ReleasePorts is called.
func (s *Server) HoldPorts(ports []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, port := range ports {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			return fmt.Errorf("failed to hold port %d: %w", port, err)
		}
		go acceptAndDrop(l)
		s.ports = append(s.ports, l)
	}
	return nil
}

// ReleasePorts closes all held port listeners.
func (s *Server) ReleasePorts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.ports {
		l.Close()
	}
	s.ports = nil
}

func acceptAndDrop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	prefix := "/relay/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	cmd := relay.Command(strings.TrimPrefix(r.URL.Path, prefix))

	s.mu.Lock()
	s.requests[cmd]++
	override := s.overrides[cmd]
	s.mu.Unlock()

	if override != nil {
		override(w, r)
		return
	}

	if r.Method != cmd.Method() {
		fail(w, fmt.Sprintf("/relay/%s needs to be %s", cmd, cmd.Method()), http.StatusMethodNotAllowed)
		return
	}

	switch cmd {
	case relay.CommandRelayVersion:
		send(w, map[string]any{"result": s.opts.Version})

	case relay.CommandValidatorPid:
		s.mu.Lock()
		pid := s.pid
		s.mu.Unlock()
		if pid == 0 {
			send(w, map[string]any{"err": "It seems like no validator is running currently, cannot get pid"})
			return
		}
		send(w, map[string]any{"result": pid})

	case relay.CommandKillAmman:
		send(w, map[string]any{})
		if s.opts.OnKill != nil {
			go s.opts.OnKill()
		}

	case relay.CommandKnownAddressLabels:
		send(w, map[string]any{"result": s.Labels()})

	case relay.CommandUpdateAddressLabel:
		var args []map[string]string
		if err := readArgs(r, &args); err != nil {
			fail(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(args) == 0 || args[0] == nil {
			fail(w, "Need to provide a record of address labels to update", http.StatusInternalServerError)
			return
		}
		s.mu.Lock()
		for k, v := range args[0] {
			s.labels[k] = v
		}
		s.mu.Unlock()
		send(w, map[string]any{})

	case relay.CommandAccountStates:
		var args []string
		if err := readArgs(r, &args); err != nil || len(args) == 0 {
			fail(w, "Need to provide an address", http.StatusInternalServerError)
			return
		}
		s.mu.Lock()
		states := s.states[args[0]]
		s.mu.Unlock()
		if states == nil {
			states = []relay.AccountState{}
		}
		send(w, map[string]any{"result": []any{args[0], states}})

	default:
		fail(w, fmt.Sprintf("Unknown route %s", r.URL.Path), http.StatusNotFound)
	}
}

func readArgs(r *http.Request, out any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("missing arguments")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse JSON input: %s", data)
	}
	return nil
}

func send(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(payload)
}

func fail(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"err": fmt.Sprintf("%s: %s", http.StatusText(status), msg),
	})
}
