package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultHealthTimeout bounds a single monitoring probe.
const DefaultHealthTimeout = 5 * time.Second

// Reason classifies why a probe did not succeed. Transport failures and
// non-success statuses count identically toward restart accounting; the
// distinction exists for logging only.
type Reason int

const (
	ReasonNone      Reason = iota
	ReasonTransport        // connection error or timeout
	ReasonStatus           // got a response, but not 2xx
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTransport:
		return "transport"
	case ReasonStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Outcome is the result of a single health probe.
type Outcome struct {
	Healthy    bool
	Reason     Reason
	StatusCode int
	Service    string // identifying payload field, when the body carried one
	Err        error
}

// healthPayload is the subset of the health response used for adoption
// decisions. Services report their identity in the "service" field.
type healthPayload struct {
	Service string `json:"service"`
}

// Prober issues bounded-timeout liveness checks against loopback services.
type Prober struct {
	client *http.Client
	host   string
}

// New returns a Prober targeting localhost. The underlying client carries no
// global timeout; every call is bounded by its own context deadline.
func New() *Prober {
	return &Prober{
		client: &http.Client{},
		host:   "localhost",
	}
}

func (p *Prober) healthURL(port int) string {
	return fmt.Sprintf("http://%s:%d/health", p.host, port)
}

func (p *Prober) shutdownURL(port int) string {
	return fmt.Sprintf("http://%s:%d/api/v1/shutdown", p.host, port)
}

// Check performs one timeout-bounded probe of the service's health endpoint.
func (p *Prober) Check(ctx context.Context, port int, timeout time.Duration) Outcome {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, p.healthURL(port), nil)
	if err != nil {
		return Outcome{Reason: ReasonTransport, Err: err}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Outcome{Reason: ReasonTransport, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Outcome{Reason: ReasonStatus, StatusCode: resp.StatusCode}
	}

	out := Outcome{Healthy: true, StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil {
		var hp healthPayload
		if json.Unmarshal(body, &hp) == nil {
			out.Service = hp.Service
		}
	}
	return out
}

// Shutdown requests a graceful stop from the service. The result is
// best-effort; callers fall back to killing the process regardless.
func (p *Prober) Shutdown(ctx context.Context, port int, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, p.shutdownURL(port), nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil
}
