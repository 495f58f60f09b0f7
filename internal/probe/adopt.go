package probe

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"
)

// AdoptTimeout bounds the pre-start occupancy probe.
const AdoptTimeout = 3 * time.Second

// Decision is the outcome of a port-adoption check.
type Decision int

const (
	// NotOccupied means nothing is listening on the port; the caller may spawn.
	NotOccupied Decision = iota
	// OccupantUnhealthy means something holds the port but did not answer the
	// health probe with 2xx in time. Spawning would fail to bind, so optional
	// services mark themselves unavailable instead.
	OccupantUnhealthy
	// Foreign means a healthy occupant answered, but its identifier does not
	// match the expected service. The identifier is the only discriminator:
	// this is never adopted.
	Foreign
	// Adopt means a healthy occupant identified itself as the expected
	// service; reuse it instead of spawning.
	Adopt
)

func (d Decision) String() string {
	switch d {
	case NotOccupied:
		return "not-occupied"
	case OccupantUnhealthy:
		return "occupant-unhealthy"
	case Foreign:
		return "foreign"
	case Adopt:
		return "adopt"
	default:
		return "unknown"
	}
}

// CheckAdoption decides whether an already-occupied port belongs to the
// expected service. A connection refusal means the port is free; any other
// probe failure means an occupant that cannot be trusted.
func (p *Prober) CheckAdoption(ctx context.Context, port int, wantService string) Decision {
	out := p.Check(ctx, port, AdoptTimeout)
	if out.Healthy {
		if wantService != "" && out.Service == wantService {
			return Adopt
		}
		return Foreign
	}
	if out.Reason == ReasonTransport && isConnRefused(out.Err) {
		return NotOccupied
	}
	return OccupantUnhealthy
}

func isConnRefused(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial" && !opErr.Timeout()
}
