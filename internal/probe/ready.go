package probe

import (
	"context"
	"fmt"
	"time"
)

// progressEvery is how many readiness attempts pass between coarse progress
// notifications, so observers are not flooded during a slow cold start.
const progressEvery = 4

// ReadinessTimeoutError reports that a service never returned 2xx within the
// bounded readiness window. The spawned process is left running; the health
// monitor will deal with it.
type ReadinessTimeoutError struct {
	Port   int
	Window time.Duration
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf(
		"service on port %d failed to become ready within %s; check that port %d is not blocked by another application",
		e.Port, e.Window, e.Port)
}

// WaitReady polls the service's health endpoint until it returns 2xx, for at
// most attempts probes spaced interval apart. Each probe is itself bounded by
// interval so the worst case terminates after attempts × interval. Only the
// status code matters at this stage. Every fourth attempt notify is invoked
// with the elapsed time, when non-nil.
func (p *Prober) WaitReady(ctx context.Context, port int, attempts int, interval time.Duration, notify func(elapsed time.Duration)) error {
	if attempts <= 0 {
		attempts = 1
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	start := time.Now()
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptStart := time.Now()
		out := p.Check(ctx, port, interval)
		if out.Healthy {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if notify != nil && attempt%progressEvery == 0 {
			notify(time.Since(start).Round(time.Second))
		}
		if attempt == attempts {
			break
		}
		// Keep each attempt on the interval grid regardless of how long the
		// probe itself took.
		if remain := interval - time.Since(attemptStart); remain > 0 {
			select {
			case <-time.After(remain):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return &ReadinessTimeoutError{Port: port, Window: time.Duration(attempts) * interval}
}
