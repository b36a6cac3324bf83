package events

import (
	"sync"
	"sync/atomic"

	"p2pescrow/core/types"
)

const defaultSubscriberBuffer = 64

// Broadcaster delivers emitted events to live subscribers. Slow subscribers
// drop events instead of blocking the emitting engine.
type Broadcaster struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]chan types.Event
	buffer  int
	dropped atomic.Uint64
}

// NewBroadcaster creates a broadcaster whose subscriber channels hold buffer
// events. Non-positive values use a default.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{subs: make(map[uint64]chan types.Event), buffer: buffer}
}

// Emit implements the Emitter interface.
func (b *Broadcaster) Emit(evt Event) {
	if b == nil || evt == nil || evt.Event() == nil {
		return
	}
	payload := *evt.Event()
	attrs := make(map[string]string, len(payload.Attributes))
	for k, v := range payload.Attributes {
		attrs[k] = v
	}
	payload.Attributes = attrs

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- payload:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber. The returned cancel function must be
// called to release the channel.
func (b *Broadcaster) Subscribe() (<-chan types.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan types.Event, b.buffer)
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped reports how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }
