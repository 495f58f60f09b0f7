package sidekick

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacadeAdoptAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_, _ = w.Write([]byte(`{"service":"core-backend"}`))
		case "/api/v1/shutdown":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	port := srv.Listener.Addr().(*net.TCPAddr).Port

	m := New(Spec{
		Name:           "core",
		Port:           port,
		Command:        "sleep",
		ServiceID:      "core-backend",
		ReadyAttempts:  2,
		ReadyInterval:  10 * time.Millisecond,
		HealthInterval: time.Hour,
		HealthTimeout:  200 * time.Millisecond,
		StopGrace:      time.Millisecond,
	}, nil)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop(context.Background())

	assert.True(t, m.IsReady())
	st := m.Status()
	assert.True(t, st.Primary.Adopted)
	assert.Equal(t, SecondarySnapshot{}, m.SecondaryStatus())
}

func TestDefaultConfigFacade(t *testing.T) {
	c := DefaultConfig()
	require.NotNil(t, c)
	assert.Equal(t, 819, c.Primary.Port)
	require.NotNil(t, c.Secondary)
	assert.Equal(t, 8081, c.Secondary.Port)

	m := NewFromConfig(c)
	require.NotNil(t, m)
}

func TestRegisterMetricsDefault(t *testing.T) {
	require.NoError(t, RegisterMetricsDefault())
	require.NoError(t, RegisterMetricsDefault())
}
