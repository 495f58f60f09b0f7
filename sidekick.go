package sidekick

import (
	"context"
	"net/http"

	cfg "github.com/loykin/sidekick/internal/config"
	"github.com/loykin/sidekick/internal/event"
	"github.com/loykin/sidekick/internal/manager"
	"github.com/loykin/sidekick/internal/metrics"
	"github.com/loykin/sidekick/internal/server"
	"github.com/loykin/sidekick/internal/service"
	"github.com/loykin/sidekick/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = service.Spec

type Status = manager.Status

type ServiceStatus = supervisor.Status

type Event = event.Event

type SecondarySnapshot = event.SecondarySnapshot

type Config = cfg.Config

// Manager is a thin facade over internal/manager.Manager providing a stable
// public API for embedding the supervisor in a host application.
type Manager struct{ inner *manager.Manager }

// New builds a manager for the primary spec and an optional secondary.
func New(primary Spec, secondary *Spec) *Manager {
	return &Manager{inner: manager.New(primary, secondary)}
}

// NewFromConfig builds a manager from a resolved configuration.
func NewFromConfig(c *Config) *Manager {
	return &Manager{inner: manager.New(c.Primary, c.Secondary)}
}

func (m *Manager) Start(ctx context.Context) error { return m.inner.Start(ctx) }
func (m *Manager) Stop(ctx context.Context)        { m.inner.Stop(ctx) }
func (m *Manager) Restart(ctx context.Context, name string) error {
	return m.inner.Restart(ctx, name)
}
func (m *Manager) IsReady() bool                      { return m.inner.IsReady() }
func (m *Manager) Status() Status                     { return m.inner.Status() }
func (m *Manager) SecondaryStatus() SecondarySnapshot { return m.inner.SecondaryStatus() }
func (m *Manager) Events() (<-chan Event, func())     { return m.inner.Events() }

// LoadConfig reads a TOML config file; an empty path yields the defaults.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// DefaultConfig returns the stock two-service configuration.
func DefaultConfig() *Config { return cfg.Default() }

// NewHTTPServer starts the control API on addr and returns the server.
func NewHTTPServer(addr, basePath string, m *Manager) *http.Server {
	return server.NewServer(addr, basePath, m.inner)
}

// RegisterMetrics registers the supervisor metrics with r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// RegisterMetricsDefault registers with the default Prometheus registry.
func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }
