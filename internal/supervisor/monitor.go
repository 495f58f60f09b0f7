package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/sidekick/internal/metrics"
)

// startMonitor launches the periodic health loop exactly once. ctx bounds the
// loop's lifetime; a stopped or parked service leaves the loop running but
// inert, so a later explicit Restart resumes monitoring without respawning
// the goroutine.
func (s *Supervisor) startMonitor(ctx context.Context) {
	s.monitorOnce.Do(func() {
		go s.monitor(ctx)
	})
}

func (s *Supervisor) monitor(ctx context.Context) {
	slog.Info("Health monitor started", "service", s.spec.Name, "interval", s.spec.HealthInterval)
	ticker := time.NewTicker(s.spec.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !s.Running() {
			continue
		}

		out := s.prober.Check(ctx, s.spec.Port, s.spec.HealthTimeout)
		metrics.IncHealthCheck(s.spec.Name, out.Healthy)
		if out.Healthy {
			if h := s.slot.Peek(); h != nil {
				metrics.SampleProcess(s.spec.Name, h.PID())
			}
			continue
		}

		count := s.incRestarts()
		if count > s.spec.MaxRestarts {
			slog.Error("Restart budget exhausted, service stopped until explicit restart",
				"service", s.spec.Name, "failures", count, "max_restarts", s.spec.MaxRestarts)
			s.park()
			continue
		}

		slog.Warn("Health check failed, restarting service",
			"service", s.spec.Name, "attempt", count, "max_restarts", s.spec.MaxRestarts)
		s.respawn(ctx, count)
	}
}

// respawn performs one automatic restart attempt under the admission gate.
// A respawn that loses the gate to a concurrent Stop gives up; a failed
// attempt is not retried here, the next health interval increments the
// counter again.
func (s *Supervisor) respawn(ctx context.Context, attempt uint32) {
	s.respawnMu.Lock()
	defer s.respawnMu.Unlock()

	if !s.Running() {
		return
	}

	if d := s.spec.RespawnDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return
		}
	}

	if err := s.spawnAndWaitReady(ctx); err != nil {
		metrics.IncRespawn(s.spec.Name, false)
		slog.Error("Automatic restart failed", "service", s.spec.Name, "attempt", attempt, "error", err)
		return
	}
	metrics.IncRespawn(s.spec.Name, true)
	slog.Info("Service restarted after failed health check", "service", s.spec.Name, "attempt", attempt)
	s.announceReady()
}
