package supervisor

import (
	"io"
	"time"

	"go.olrik.dev/amman/internal/probe"
	"go.olrik.dev/amman/internal/validator"
)

const (
	// DefaultExecutable is the amman entry point that starts the relay and validator
	DefaultExecutable   = "amman_"
	DefaultStartTimeout = 60 * time.Second
	DefaultStopTimeout  = 30 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Option configures a Supervisor
type Option func(*Supervisor)

// WithExecutable sets the program invoked as `<exe> start` and `<exe> stop`
func WithExecutable(exe string) Option {
	return func(s *Supervisor) {
		if exe != "" {
			s.exe = exe
		}
	}
}

// WithPorts sets the ports that must accept connections once the validator is up
func WithPorts(ports ...int) Option {
	return func(s *Supervisor) {
		s.ports = ports
	}
}

// WithProber replaces the port prober
func WithProber(p *probe.Prober) Option {
	return func(s *Supervisor) {
		if p != nil {
			s.prober = p
		}
	}
}

// WithStartTimeout bounds how long Start waits for the validator to become ready
func WithStartTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.startTimeout = d
		}
	}
}

// WithStopTimeout bounds graceful shutdown before escalating to SIGKILL,
// and how long an external stop may take to release the ports
func WithStopTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// WithPollInterval sets how often the relay is asked for the validator pid while starting
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithConfig sets the config used when Start is called without one
func WithConfig(cfg *validator.Config) Option {
	return func(s *Supervisor) {
		s.config = cfg
	}
}

// WithRecorder journals lifecycle events
func WithRecorder(r Recorder) Option {
	return func(s *Supervisor) {
		s.recorder = r
	}
}

// WithTempDir sets where materialized configs are written
func WithTempDir(dir string) Option {
	return func(s *Supervisor) {
		s.tempDir = dir
	}
}

// WithOutput redirects the spawned process's stdout and stderr.
// nil discards the stream.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Supervisor) {
		s.stdout = stdout
		s.stderr = stderr
	}
}
