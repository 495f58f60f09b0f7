package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/sidekick/internal/event"
	"github.com/loykin/sidekick/internal/metrics"
	"github.com/loykin/sidekick/internal/probe"
	"github.com/loykin/sidekick/internal/service"
)

// Notifier receives lifecycle notifications for one service. The manager
// wires the primary service to the event bus and the optional secondary to a
// no-op (its state is queried as a snapshot instead).
type Notifier interface {
	Status(phase event.Phase, message string)
	CircuitReset()
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Status(event.Phase, string) {}
func (NopNotifier) CircuitReset()              {}

// Status is a point-in-time snapshot of one supervised service.
type Status struct {
	Name      string `json:"name"`
	Port      int    `json:"port"`
	Available bool   `json:"available"`
	Running   bool   `json:"running"`
	Ready     bool   `json:"ready"`
	Adopted   bool   `json:"adopted"`
	Restarts  uint32 `json:"restarts"`
	PID       int    `json:"pid,omitempty"`
}

// Supervisor owns the lifecycle of one service: start or adopt, monitor,
// bounded automatic respawn, explicit restart, ordered stop. One instance per
// service for the life of the manager; restart accounting is never reset by
// constructing a new supervisor.
//
// Locking: mu guards the primitive state fields only and is never held
// across a spawn, probe or shutdown call. The handle lives in a take-once
// slot so the monitor's respawn path and an explicit Stop can never kill the
// same handle twice. respawnMu is the single-admission gate serializing
// automatic respawns against operator-triggered restarts.
type Supervisor struct {
	spec     service.Spec
	prober   *probe.Prober
	launcher service.Launcher
	notify   Notifier

	mu        sync.Mutex
	running   bool
	ready     bool
	available bool
	adopted   bool
	restarts  uint32

	slot service.HandleSlot

	respawnMu   sync.Mutex
	monitorOnce sync.Once

	// readyGate, when set, suppresses ready reporting until the dependency
	// (the primary service) is itself ready. Set once before Start.
	readyGate func() bool
}

// New creates a supervisor for spec. notify may be nil.
func New(spec service.Spec, prober *probe.Prober, notify Notifier) *Supervisor {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Supervisor{
		spec:      spec.Normalized(),
		prober:    prober,
		notify:    notify,
		available: !spec.Optional,
	}
}

// SetReadyGate installs the dependency gate. Must be called before Start.
func (s *Supervisor) SetReadyGate(gate func() bool) { s.readyGate = gate }

// Spec returns the immutable service spec.
func (s *Supervisor) Spec() service.Spec { return s.spec }

// Running reports whether the service is considered alive (owned or adopted).
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Ready reports whether the service has passed its startup health check.
// A dependent service never reports ready while its dependency is not.
func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	r := s.ready
	s.mu.Unlock()
	if r && s.readyGate != nil {
		return s.readyGate()
	}
	return r
}

// Available reports whether an optional service can be used at all.
func (s *Supervisor) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// Restarts returns the monotone automatic-restart counter.
func (s *Supervisor) Restarts() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Status returns a consistent snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		Name:      s.spec.Name,
		Port:      s.spec.Port,
		Available: s.available,
		Running:   s.running,
		Ready:     s.ready,
		Adopted:   s.adopted,
		Restarts:  s.restarts,
	}
	s.mu.Unlock()
	if st.Ready && s.readyGate != nil && !s.readyGate() {
		st.Ready = false
	}
	if h := s.slot.Peek(); h != nil {
		st.PID = h.PID()
	}
	return st
}

// Start brings the service up: adopt a healthy pre-existing instance when its
// identity matches, otherwise spawn and wait for readiness. The monitor is
// started exactly once with ctx as its lifetime; pass the manager's
// long-lived context, not a request context.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.spec.Optional {
		s.startOptional(ctx)
		return nil
	}

	s.notify.Status(event.PhaseStarting, fmt.Sprintf("Starting %s…", s.spec.Name))

	dec := s.prober.CheckAdoption(ctx, s.spec.Port, s.spec.ServiceID)
	if dec == probe.Adopt {
		slog.Info("Port already served by our service, adopting", "service", s.spec.Name, "port", s.spec.Port)
		s.setAdopted()
		metrics.IncAdoption(s.spec.Name)
		s.announceReady()
		s.startMonitor(ctx)
		return nil
	}
	slog.Debug("No adoptable instance", "service", s.spec.Name, "port", s.spec.Port, "decision", dec.String())

	err := s.spawnAndWaitReady(ctx)
	if err != nil {
		slog.Error("Service failed to start", "service", s.spec.Name, "error", err)
		s.notify.Status(event.PhaseError, fmt.Sprintf("%s failed to start: %v", s.spec.Name, err))
		// Monitoring still begins: a spawned-but-slow process will be picked
		// up by the health loop, and a spawn failure leaves the loop inert.
		s.startMonitor(ctx)
		return err
	}
	s.announceReady()
	s.startMonitor(ctx)
	return nil
}

// startOptional runs the secondary start sequence. Failures are recorded as
// unavailability, never returned: the optional service must not fail the
// overall startup.
func (s *Supervisor) startOptional(ctx context.Context) {
	if !service.BinaryAvailable(s.spec.Command, s.spec.SearchDirs) {
		slog.Info("Service binary not found, features unavailable", "service", s.spec.Name)
		s.setAvailable(false)
		return
	}

	switch dec := s.prober.CheckAdoption(ctx, s.spec.Port, s.spec.ServiceID); dec {
	case probe.Adopt:
		slog.Info("Port already served by our service, adopting", "service", s.spec.Name, "port", s.spec.Port)
		s.setAdopted()
		s.setAvailable(true)
		metrics.IncAdoption(s.spec.Name)
		s.startMonitor(ctx)
		return
	case probe.NotOccupied:
		// fall through to spawn
	default:
		// A foreign or unresponsive occupant holds the port. Spawning would
		// bind-fail or, worse, shadow an unknown process.
		slog.Warn("Port held by a foreign or unhealthy occupant, service unavailable",
			"service", s.spec.Name, "port", s.spec.Port, "decision", dec.String())
		s.setAvailable(false)
		return
	}

	if err := s.spawnAndWaitReady(ctx); err != nil {
		slog.Error("Optional service failed to start", "service", s.spec.Name, "error", err)
		s.setAvailable(false)
		return
	}
	s.setAvailable(true)
	s.startMonitor(ctx)
}

// Restart is the operator-triggered respawn. It reuses this instance (same
// counters, same handle slot) and is serialized against in-flight automatic
// respawns by the admission gate. It is also the only way to revive a
// service parked by the restart cap.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.notify.Status(event.PhaseStarting, fmt.Sprintf("Restarting %s…", s.spec.Name))

	s.respawnMu.Lock()
	err := s.spawnAndWaitReady(ctx)
	s.respawnMu.Unlock()

	if err != nil {
		s.notify.Status(event.PhaseError, fmt.Sprintf("%s failed to restart: %v", s.spec.Name, err))
		return err
	}
	if s.spec.Optional {
		s.setAvailable(true)
	}
	s.announceReady()
	return nil
}

// Stop is idempotent: mark stopped, best-effort graceful shutdown, grace
// wait, then force-kill the owned handle. Adopted processes have no handle
// and are left alone.
func (s *Supervisor) Stop(ctx context.Context) {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.ready = false
	s.mu.Unlock()
	metrics.SetUp(s.spec.Name, false)
	metrics.SetReady(s.spec.Name, false)
	metrics.ClearProcess(s.spec.Name)

	if !wasRunning && s.slot.Peek() == nil {
		return
	}

	// Graceful request first; the kill below runs regardless of its outcome.
	_ = s.prober.Shutdown(ctx, s.spec.Port, s.spec.HealthTimeout)

	select {
	case <-time.After(s.spec.StopGrace):
	case <-ctx.Done():
	}

	if h := s.slot.Take(); h != nil {
		_ = h.Kill()
		slog.Info("Service process killed on shutdown", "service", s.spec.Name, "pid", h.PID())
	}
}

// spawnAndWaitReady launches the process and polls for readiness. Spawn
// failure leaves running untouched; readiness timeout leaves the process
// alive for the monitor to deal with.
func (s *Supervisor) spawnAndWaitReady(ctx context.Context) error {
	h, err := s.launcher.Spawn(s.spec)
	if err != nil {
		metrics.IncSpawnError(s.spec.Name)
		return err
	}
	if prev := s.slot.Put(h); prev != nil {
		// The old process already failed its health check; make sure its
		// group is gone before the port is needed again.
		_ = prev.Kill()
	}
	s.setRunning(true)
	slog.Info("Service started", "service", s.spec.Name, "port", s.spec.Port, "pid", h.PID())

	err = s.prober.WaitReady(ctx, s.spec.Port, s.spec.ReadyAttempts, s.spec.ReadyInterval, func(elapsed time.Duration) {
		s.notify.Status(event.PhaseStarting, fmt.Sprintf("Starting %s… (%ds)", s.spec.Name, int(elapsed.Seconds())))
	})
	if err != nil {
		s.setReady(false)
		return err
	}
	s.setReady(true)
	return nil
}

// announceReady emits the ready phase plus the circuit-reset signal so
// client-side breakers clear their failure counters.
func (s *Supervisor) announceReady() {
	s.notify.Status(event.PhaseReady, fmt.Sprintf("%s ready", s.spec.Name))
	s.notify.CircuitReset()
}

func (s *Supervisor) setAdopted() {
	s.mu.Lock()
	s.running = true
	s.ready = true
	s.adopted = true
	s.mu.Unlock()
	metrics.SetUp(s.spec.Name, true)
	metrics.SetReady(s.spec.Name, true)
}

func (s *Supervisor) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	if v {
		s.adopted = false
	}
	s.mu.Unlock()
	metrics.SetUp(s.spec.Name, v)
}

func (s *Supervisor) setReady(v bool) {
	s.mu.Lock()
	s.ready = v
	s.mu.Unlock()
	metrics.SetReady(s.spec.Name, v)
}

func (s *Supervisor) setAvailable(v bool) {
	s.mu.Lock()
	s.available = v
	s.mu.Unlock()
}

// incRestarts bumps the monotone restart counter and returns the new value.
func (s *Supervisor) incRestarts() uint32 {
	s.mu.Lock()
	s.restarts++
	v := s.restarts
	s.mu.Unlock()
	metrics.SetRestartBudget(s.spec.Name, int(s.spec.MaxRestarts)-int(v))
	return v
}

// park permanently stops the service after the restart budget is exhausted.
// The monitor keeps looping but goes inert; only an explicit Restart revives.
func (s *Supervisor) park() {
	s.mu.Lock()
	s.running = false
	s.ready = false
	s.mu.Unlock()
	metrics.SetUp(s.spec.Name, false)
	metrics.SetReady(s.spec.Name, false)
	metrics.ClearProcess(s.spec.Name)
	if s.spec.Optional {
		s.setAvailable(false)
	}
}
