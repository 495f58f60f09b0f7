// Package event carries supervisor status notifications to observers (the
// desktop shell's UI layer). Emission never blocks the supervisor: a slow
// subscriber loses events rather than stalling a health monitor.
package event

// Phase is the coarse lifecycle phase reported for the primary service.
type Phase string

const (
	PhaseStarting Phase = "starting"
	PhaseReady    Phase = "ready"
	PhaseError    Phase = "error"
)

// Kind discriminates event payloads.
type Kind string

const (
	// KindStatus is a primary-service phase change: {status, message}.
	KindStatus Kind = "backend-status"
	// KindCircuitReset tells clients to clear their own failure/backoff
	// state because the service is confirmed healthy again.
	KindCircuitReset Kind = "backend-circuit-reset"
	// KindSecondary is a snapshot change of the optional secondary service.
	KindSecondary Kind = "secondary-status"
)

// SecondarySnapshot mirrors the queryable secondary-service state.
type SecondarySnapshot struct {
	Available bool `json:"available"`
	Running   bool `json:"running"`
	Port      int  `json:"port"`
}

// Event is a single notification.
type Event struct {
	Kind      Kind              `json:"kind"`
	Status    Phase             `json:"status,omitempty"`
	Message   string            `json:"message,omitempty"`
	Secondary SecondarySnapshot `json:"secondary,omitempty"`
}
