package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loykin/sidekick/internal/event"
	"github.com/loykin/sidekick/internal/probe"
	"github.com/loykin/sidekick/internal/service"
	"github.com/loykin/sidekick/internal/supervisor"
)

// ErrUnknownService is returned when an operation names a service the
// manager does not supervise.
var ErrUnknownService = errors.New("unknown service")

// Status is the composite snapshot exposed over the control API.
type Status struct {
	Ready     bool               `json:"ready"`
	Primary   supervisor.Status  `json:"primary"`
	Secondary *supervisor.Status `json:"secondary,omitempty"`
}

// Manager orchestrates the primary service and its optional secondary.
// Startup is strictly primary first, then secondary; shutdown is the exact
// reverse, with the secondary fully stopped before the primary is touched.
type Manager struct {
	bus       *event.Bus
	primary   *supervisor.Supervisor
	secondary *supervisor.Supervisor

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
}

// New builds a manager for the primary spec and, when secondary is non-nil,
// its dependent optional service. The secondary never reports ready while
// the primary is not.
func New(primary service.Spec, secondary *service.Spec) *Manager {
	m := &Manager{bus: event.NewBus()}
	m.primary = supervisor.New(primary, probe.New(), &primaryNotifier{bus: m.bus})

	if secondary != nil {
		spec := *secondary
		spec.Optional = true
		sn := &secondaryNotifier{bus: m.bus}
		m.secondary = supervisor.New(spec, probe.New(), sn)
		sn.sup = m.secondary
		m.secondary.SetReadyGate(m.primary.Ready)
	}
	return m
}

// Start brings both services up. A primary failure is reported to the
// caller, but the secondary sequence still runs: it is best-effort, only
// ever degrades to unavailable, and its ready gate keeps it from reporting
// ready ahead of the primary. The manager owns the monitor lifetime, so
// health loops keep running after Start returns until Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	var err error
	m.startOnce.Do(func() {
		monitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		m.cancel = cancel

		if perr := m.primary.Start(monitorCtx); perr != nil {
			err = fmt.Errorf("start %s: %w", m.primary.Spec().Name, perr)
		}
		if m.secondary != nil {
			_ = m.secondary.Start(monitorCtx)
			m.emitSecondarySnapshot()
		}
	})
	return err
}

// Stop shuts the pair down in dependency order: the secondary is stopped and
// reaped first so it never observes its dependency disappearing, then the
// primary. Safe to call more than once.
func (m *Manager) Stop(ctx context.Context) {
	m.stopOnce.Do(func() {
		if m.secondary != nil {
			m.secondary.Stop(ctx)
			m.emitSecondarySnapshot()
		}
		m.primary.Stop(ctx)
		if m.cancel != nil {
			m.cancel()
		}
		m.bus.Close()
		slog.Info("All services stopped")
	})
}

// Restart restarts the named service in place, preserving its restart
// accounting. An empty name targets the primary.
func (m *Manager) Restart(ctx context.Context, name string) error {
	sup := m.lookup(name)
	if sup == nil {
		return fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	err := sup.Restart(ctx)
	if sup == m.secondary {
		m.emitSecondarySnapshot()
	}
	return err
}

// IsReady reports whether the primary service is ready to serve.
func (m *Manager) IsReady() bool { return m.primary.Ready() }

// Status returns a composite snapshot of both services.
func (m *Manager) Status() Status {
	st := Status{
		Ready:   m.primary.Ready(),
		Primary: m.primary.Status(),
	}
	if m.secondary != nil {
		s := m.secondary.Status()
		st.Secondary = &s
	}
	return st
}

// SecondaryStatus reports the optional service's availability snapshot.
func (m *Manager) SecondaryStatus() event.SecondarySnapshot {
	if m.secondary == nil {
		return event.SecondarySnapshot{}
	}
	return event.SecondarySnapshot{
		Available: m.secondary.Available(),
		Running:   m.secondary.Running(),
		Port:      m.secondary.Spec().Port,
	}
}

// Events subscribes to lifecycle events. The returned cancel must be called
// to release the subscription.
func (m *Manager) Events() (<-chan event.Event, func()) {
	return m.bus.Subscribe()
}

func (m *Manager) lookup(name string) *supervisor.Supervisor {
	switch {
	case name == "" || name == m.primary.Spec().Name:
		return m.primary
	case m.secondary != nil && name == m.secondary.Spec().Name:
		return m.secondary
	default:
		return nil
	}
}

func (m *Manager) emitSecondarySnapshot() {
	snap := m.SecondaryStatus()
	m.bus.Emit(event.Event{Kind: event.KindSecondary, Secondary: snap})
}

// primaryNotifier forwards primary lifecycle changes onto the event bus.
type primaryNotifier struct {
	bus *event.Bus
}

func (n *primaryNotifier) Status(phase event.Phase, message string) {
	n.bus.Emit(event.Event{Kind: event.KindStatus, Status: phase, Message: message})
}

func (n *primaryNotifier) CircuitReset() {
	n.bus.Emit(event.Event{Kind: event.KindCircuitReset})
}

// secondaryNotifier publishes an availability snapshot whenever the optional
// service changes state; consumers poll the snapshot rather than tracking
// phases.
type secondaryNotifier struct {
	bus *event.Bus
	sup *supervisor.Supervisor
}

func (n *secondaryNotifier) Status(phase event.Phase, message string) {
	snap := event.SecondarySnapshot{
		Available: n.sup.Available(),
		Running:   n.sup.Running(),
		Port:      n.sup.Spec().Port,
	}
	n.bus.Emit(event.Event{Kind: event.KindSecondary, Status: phase, Message: message, Secondary: snap})
}

func (n *secondaryNotifier) CircuitReset() {}
