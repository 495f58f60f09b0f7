package manager

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/loykin/sidekick/internal/event"
	"github.com/loykin/sidekick/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stopRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *stopRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

func (r *stopRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// fakeService serves the identity health endpoint and records graceful
// shutdown requests, standing in for a real adopted backend.
func fakeService(t *testing.T, serviceID, name string, rec *stopRecorder) int {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/shutdown":
			if rec != nil {
				rec.record(name)
			}
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/health":
			_ = json.NewEncoder(w).Encode(map[string]string{"service": serviceID})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().(*net.TCPAddr).Port
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func quickSpec(name string, port int) service.Spec {
	return service.Spec{
		Name:           name,
		Port:           port,
		Command:        "sleep",
		ServiceID:      name + "-backend",
		ReadyAttempts:  2,
		ReadyInterval:  10 * time.Millisecond,
		HealthInterval: time.Hour, // keep monitors quiet during tests
		HealthTimeout:  200 * time.Millisecond,
		MaxRestarts:    2,
		StopGrace:      time.Millisecond,
	}
}

func TestStartAdoptsBothServices(t *testing.T) {
	pPort := fakeService(t, "core-backend", "core", nil)
	sPort := fakeService(t, "aux-backend", "aux", nil)
	sec := quickSpec("aux", sPort)
	m := New(quickSpec("core", pPort), &sec)
	t.Cleanup(func() { m.Stop(context.Background()) })

	require.NoError(t, m.Start(context.Background()))

	assert.True(t, m.IsReady())
	st := m.Status()
	assert.True(t, st.Ready)
	assert.True(t, st.Primary.Adopted)
	require.NotNil(t, st.Secondary)
	assert.True(t, st.Secondary.Available)
	assert.True(t, st.Secondary.Ready, "secondary ready once primary is")

	snap := m.SecondaryStatus()
	assert.Equal(t, event.SecondarySnapshot{Available: true, Running: true, Port: sPort}, snap)
}

func TestPrimaryStartFailureStillAttemptsSecondary(t *testing.T) {
	primary := quickSpec("core", freePort(t))
	primary.Command = "no-such-binary-anywhere"
	sPort := fakeService(t, "aux-backend", "aux", nil)
	sec := quickSpec("aux", sPort)
	m := New(primary, &sec)
	t.Cleanup(func() { m.Stop(context.Background()) })

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.False(t, m.IsReady())
	// Secondary adoption still happened, but the dependency gate hides it.
	assert.True(t, m.SecondaryStatus().Available)
	st := m.Status()
	require.NotNil(t, st.Secondary)
	assert.False(t, st.Secondary.Ready, "secondary must not report ready while the primary is down")
}

func TestSecondaryFailureDoesNotFailStart(t *testing.T) {
	pPort := fakeService(t, "core-backend", "core", nil)
	sec := quickSpec("aux", freePort(t))
	sec.Command = "no-such-binary-anywhere"
	m := New(quickSpec("core", pPort), &sec)
	t.Cleanup(func() { m.Stop(context.Background()) })

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.IsReady())
	assert.False(t, m.SecondaryStatus().Available)
}

func TestStopOrderSecondaryBeforePrimary(t *testing.T) {
	rec := &stopRecorder{}
	pPort := fakeService(t, "core-backend", "primary", rec)
	sPort := fakeService(t, "aux-backend", "secondary", rec)
	sec := quickSpec("aux", sPort)
	m := New(quickSpec("core", pPort), &sec)

	require.NoError(t, m.Start(context.Background()))
	m.Stop(context.Background())

	assert.Equal(t, []string{"secondary", "primary"}, rec.snapshot())

	// Stop is idempotent.
	m.Stop(context.Background())
	assert.Len(t, rec.snapshot(), 2)
}

func TestEventsCarryLifecyclePhases(t *testing.T) {
	pPort := fakeService(t, "core-backend", "core", nil)
	m := New(quickSpec("core", pPort), nil)
	t.Cleanup(func() { m.Stop(context.Background()) })

	events, cancel := m.Events()
	defer cancel()

	require.NoError(t, m.Start(context.Background()))

	var phases []event.Phase
	timeout := time.After(time.Second)
	for len(phases) < 2 {
		select {
		case ev := <-events:
			if ev.Kind == event.KindStatus {
				phases = append(phases, ev.Status)
			}
		case <-timeout:
			t.Fatalf("timed out, phases so far: %v", phases)
		}
	}
	assert.Equal(t, []event.Phase{event.PhaseStarting, event.PhaseReady}, phases)
}

func TestRestartUnknownService(t *testing.T) {
	pPort := fakeService(t, "core-backend", "core", nil)
	m := New(quickSpec("core", pPort), nil)
	t.Cleanup(func() { m.Stop(context.Background()) })
	require.NoError(t, m.Start(context.Background()))

	err := m.Restart(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownService)
}
