package emit

import (
	"sync"
	"sync/atomic"
)

// Broker delivers events to live per-run subscribers.
//
// Delivery is non-blocking: if a subscriber's buffer is full the event is
// dropped and counted, so a slow consumer can never stall the engine.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]chan Event
	buffer  int
	dropped atomic.Int64
}

// NewBroker creates a Broker whose subscription channels hold buffer events.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		subs:   make(map[string]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber for runID and returns its channel along
// with a cancel function that unregisters and closes the channel. Subscribing
// twice to the same run replaces the earlier subscription.
func (b *Broker) Subscribe(runID string) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if old, ok := b.subs[runID]; ok {
		close(old)
	}
	b.subs[runID] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if cur, ok := b.subs[runID]; ok && cur == ch {
				delete(b.subs, runID)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Emit implements Emitter.
func (b *Broker) Emit(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ch, ok := b.subs[event.RunID]
	if !ok {
		return
	}
	select {
	case ch <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because a subscriber was
// not keeping up.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}
