// Package events fans gateway events out to external observers over bounded
// channels. Publishing never blocks: a subscriber that cannot keep up loses
// events (counted per subscriber) instead of stalling the proxy or the
// presence refresher.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/haukened/rr-gate/internal/gate/domain"
)

// DefaultBuffer is the per-subscriber channel depth used by Subscribe.
const DefaultBuffer = 64

// Bus is a non-blocking fan-out of domain.Event values.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	nextID  uint64
	dropped atomic.Uint64
	closed  bool
}

type subscriber struct {
	ch      chan domain.Event
	dropped atomic.Uint64
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers an observer with the given channel depth (DefaultBuffer
// when depth <= 0). The returned cancel func unregisters the observer and
// closes its channel; it is safe to call more than once.
func (b *Bus) Subscribe(depth int) (<-chan domain.Event, func()) {
	if depth <= 0 {
		depth = DefaultBuffer
	}
	s := &subscriber{ch: make(chan domain.Event, depth)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
			b.mu.Unlock()
		})
	}
	return s.ch, cancel
}

// Publish delivers e to every subscriber without blocking. Events are
// dropped for subscribers whose buffers are full.
func (b *Bus) Publish(e domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
}

// Dropped returns the total number of events dropped across all subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close unregisters every subscriber and closes their channels. Publish
// becomes a no-op afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}
