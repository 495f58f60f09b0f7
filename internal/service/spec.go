package service

import (
	"time"

	"github.com/loykin/sidekick/internal/logger"
)

// Defaults mirror the desktop shell's supervisor constants.
const (
	DefaultReadyAttempts  = 120
	DefaultReadyInterval  = 500 * time.Millisecond
	DefaultHealthInterval = 10 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
	DefaultMaxRestarts    = 3
	DefaultStopGrace      = 1500 * time.Millisecond
)

// AuxBinary names a helper executable whose resolved path is handed to the
// service through an environment variable (e.g. KCLI_BIN).
type AuxBinary struct {
	EnvVar string `mapstructure:"env_var"`
	Base   string `mapstructure:"base"`
}

// Spec is the immutable configuration of one managed service.
type Spec struct {
	Name      string   // short name used for logs, metrics and stdio files
	Port      int      // fixed loopback port the service listens on
	Command   string   // executable identifier, resolved against SearchDirs/PATH
	Args      []string // optional arguments; services are normally env-configured
	ServiceID string   // expected "service" field in the health payload

	Env        []string    // KEY=VALUE pairs merged over the daemon environment
	Aux        []AuxBinary // helper binaries resolved at spawn time
	SearchDirs []string    // candidate directories for binary resolution
	WorkDir    string

	ReadyAttempts  int           // readiness probes before giving up
	ReadyInterval  time.Duration // spacing (and per-probe bound) of readiness probes
	HealthInterval time.Duration // monitor loop period
	HealthTimeout  time.Duration // bound of a single monitoring probe
	MaxRestarts    uint32        // automatic respawn budget
	RespawnDelay   time.Duration // pause before an automatic respawn (thrash guard)
	StopGrace      time.Duration // wait between graceful shutdown request and kill

	// Optional marks a service whose absence or failure must never fail the
	// overall startup (the dependent secondary). Optional services do not
	// spawn onto an occupied port and report availability instead of errors.
	Optional bool

	Log logger.Config // rotation config for captured stdout/stderr
}

// Normalized returns a copy with zero fields replaced by defaults.
func (s Spec) Normalized() Spec {
	if s.ReadyAttempts <= 0 {
		s.ReadyAttempts = DefaultReadyAttempts
	}
	if s.ReadyInterval <= 0 {
		s.ReadyInterval = DefaultReadyInterval
	}
	if s.HealthInterval <= 0 {
		s.HealthInterval = DefaultHealthInterval
	}
	if s.HealthTimeout <= 0 {
		s.HealthTimeout = DefaultHealthTimeout
	}
	if s.MaxRestarts == 0 {
		s.MaxRestarts = DefaultMaxRestarts
	}
	if s.StopGrace <= 0 {
		s.StopGrace = DefaultStopGrace
	}
	return s
}

// ReadyWindow is the worst-case readiness wait.
func (s Spec) ReadyWindow() time.Duration {
	n := s.Normalized()
	return time.Duration(n.ReadyAttempts) * n.ReadyInterval
}
