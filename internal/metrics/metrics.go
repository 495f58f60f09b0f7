package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "service",
			Name:      "health_checks_total",
			Help:      "Number of health probes, by result.",
		}, []string{"service", "result"},
	)
	respawns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "service",
			Name:      "respawns_total",
			Help:      "Number of automatic respawn attempts, by result.",
		}, []string{"service", "result"},
	)
	adoptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "service",
			Name:      "adoptions_total",
			Help:      "Number of pre-existing instances adopted instead of spawned.",
		}, []string{"service"},
	)
	spawnErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sidekick",
			Subsystem: "service",
			Name:      "spawn_errors_total",
			Help:      "Number of OS-level launch failures.",
		}, []string{"service"},
	)
	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sidekick",
			Subsystem: "service",
			Name:      "up",
			Help:      "Whether the service is considered running (1) or stopped (0).",
		}, []string{"service"},
	)
	serviceReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sidekick",
			Subsystem: "service",
			Name:      "ready",
			Help:      "Whether the service has passed its startup health check.",
		}, []string{"service"},
	)
	restartBudget = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sidekick",
			Subsystem: "service",
			Name:      "restart_budget_remaining",
			Help:      "Automatic respawn attempts left before the service is parked.",
		}, []string{"service"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		healthChecks, respawns, adoptions, spawnErrors,
		serviceUp, serviceReady, restartBudget,
		procCPU, procRSS,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns the /metrics handler for the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func IncHealthCheck(service string, healthy bool) {
	result := "healthy"
	if !healthy {
		result = "unhealthy"
	}
	healthChecks.WithLabelValues(service, result).Inc()
}

func IncRespawn(service string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	respawns.WithLabelValues(service, result).Inc()
}

func IncAdoption(service string)   { adoptions.WithLabelValues(service).Inc() }
func IncSpawnError(service string) { spawnErrors.WithLabelValues(service).Inc() }

func SetUp(service string, up bool)       { serviceUp.WithLabelValues(service).Set(b2f(up)) }
func SetReady(service string, ready bool) { serviceReady.WithLabelValues(service).Set(b2f(ready)) }

func SetRestartBudget(service string, remaining int) {
	if remaining < 0 {
		remaining = 0
	}
	restartBudget.WithLabelValues(service).Set(float64(remaining))
}

func b2f(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
