package probe

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReadyFirstProbeSucceeds(t *testing.T) {
	port := serveHealth(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	start := time.Now()
	err := New().WaitReady(context.Background(), port, 120, 500*time.Millisecond, nil)
	require.NoError(t, err)
	// Completes in roughly one interval, not the full bound.
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitReadySucceedsAfterFewAttempts(t *testing.T) {
	var calls atomic.Int32
	port := serveHealth(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	err := New().WaitReady(context.Background(), port, 10, 50*time.Millisecond, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWaitReadyExhaustsAttempts(t *testing.T) {
	port := serveHealth(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := New().WaitReady(context.Background(), port, 5, 20*time.Millisecond, nil)
	require.Error(t, err)

	var rte *ReadinessTimeoutError
	require.True(t, errors.As(err, &rte))
	assert.Equal(t, port, rte.Port)
	assert.Equal(t, 100*time.Millisecond, rte.Window)
	assert.Contains(t, err.Error(), "not blocked by another application")
}

func TestWaitReadyProgressEveryFourthAttempt(t *testing.T) {
	port := serveHealth(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	var notices atomic.Int32
	err := New().WaitReady(context.Background(), port, 9, 10*time.Millisecond, func(time.Duration) {
		notices.Add(1)
	})
	require.Error(t, err)
	// Attempts 4 and 8 notify; 9 attempts total.
	assert.Equal(t, int32(2), notices.Load())
}

func TestWaitReadyRespectsContextCancel(t *testing.T) {
	port := serveHealth(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := New().WaitReady(ctx, port, 100, 30*time.Millisecond, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
