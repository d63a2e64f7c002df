package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-gate/internal/gate/domain"
)

func event(kind domain.EventKind) domain.Event {
	return domain.Event{Kind: kind, Timestamp: time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func TestPublishFanOut(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch1, cancel1 := b.Subscribe(4)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(4)
	defer cancel2()

	b.Publish(event(domain.EventDeviceConnected))

	for _, ch := range []<-chan domain.Event{ch1, ch2} {
		select {
		case e := <-ch:
			assert.Equal(t, domain.EventDeviceConnected, e.Kind)
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, cancel := b.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(event(domain.EventSiteBlocked))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.Equal(t, uint64(9), b.Dropped(), "overflow beyond the buffer is dropped and counted")
	assert.Len(t, ch, 1)
}

func TestCancelUnsubscribes(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, cancel := b.Subscribe(4)
	cancel()
	cancel() // safe to call twice

	_, open := <-ch
	assert.False(t, open, "cancel closes the channel")

	b.Publish(event(domain.EventDeviceConnected))
	assert.Zero(t, b.Dropped(), "cancelled subscribers no longer count drops")
}

func TestClose(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Close()
	b.Close() // idempotent

	_, open := <-ch
	require.False(t, open)

	b.Publish(event(domain.EventDeviceConnected)) // no-op, no panic

	late, lateCancel := b.Subscribe(4)
	defer lateCancel()
	_, open = <-late
	assert.False(t, open, "subscribing after close yields a closed channel")
}
