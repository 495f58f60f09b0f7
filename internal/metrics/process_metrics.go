package metrics

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Resource gauges for owned service processes, sampled by the health monitor
// on its own cadence. Adopted processes (no owned handle) are not sampled.
var (
	procCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sidekick",
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "CPU usage of the owned service process.",
		}, []string{"service"},
	)
	procRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sidekick",
			Subsystem: "process",
			Name:      "memory_rss_bytes",
			Help:      "Resident set size of the owned service process.",
		}, []string{"service"},
	)
)

// SampleProcess refreshes the resource gauges for one owned process. Failures
// are expected around restarts and only logged at debug.
func SampleProcess(service string, pid int) {
	if pid <= 0 {
		return
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		slog.Debug("Process metrics sample skipped", "service", service, "pid", pid, "error", err)
		return
	}
	if cpu, err := p.CPUPercent(); err == nil {
		procCPU.WithLabelValues(service).Set(cpu)
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		procRSS.WithLabelValues(service).Set(float64(mem.RSS))
	}
}

// ClearProcess zeroes the resource gauges when a service stops.
func ClearProcess(service string) {
	procCPU.WithLabelValues(service).Set(0)
	procRSS.WithLabelValues(service).Set(0)
}
