package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	b.Emit(Event{Kind: KindStatus, Status: PhaseReady, Message: "Backend engine ready"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, KindStatus, ev.Kind)
			assert.Equal(t, PhaseReady, ev.Status)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusEmitNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewBus()
	_, cancel := b.Subscribe() // never drained
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Emit(Event{Kind: KindCircuitReset})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full subscriber")
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Emitting after cancel must not panic.
	b.Emit(Event{Kind: KindStatus})
}

func TestBusClose(t *testing.T) {
	b := NewBus()
	ch, _ := b.Subscribe()
	b.Close()

	_, open := <-ch
	require.False(t, open)

	late, _ := b.Subscribe()
	_, open = <-late
	assert.False(t, open)
}
