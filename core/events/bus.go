package events

import (
	"sync"

	"epochstake/core/types"
)

// subscriberBuffer bounds the queue of a slow subscriber. Events beyond it
// are dropped for that subscriber only.
const subscriberBuffer = 64

// Bus fans events out to a fixed set of sinks and to dynamic channel
// subscribers. Emit never blocks on a subscriber.
type Bus struct {
	mu      sync.RWMutex
	sinks   []Emitter
	subs    map[uint64]chan *types.Event
	nextID  uint64
	dropped uint64
}

// NewBus creates a bus forwarding every event to sinks in order.
func NewBus(sinks ...Emitter) *Bus {
	filtered := make([]Emitter, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}
	return &Bus{sinks: filtered, subs: make(map[uint64]chan *types.Event)}
}

// Attach registers an additional sink.
func (b *Bus) Attach(sink Emitter) {
	if b == nil || sink == nil {
		return
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, sink)
	b.mu.Unlock()
}

// Emit implements Emitter.
func (b *Bus) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.RLock()
	sinks := append([]Emitter(nil), b.sinks...)
	b.mu.RUnlock()
	for _, sink := range sinks {
		sink.Emit(evt)
	}

	rendered := Render(evt)
	if rendered == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- cloneEvent(rendered):
		default:
			b.dropped++
		}
	}
}

// Subscribe returns a channel receiving rendered events and a cancel function
// that closes it.
func (b *Bus) Subscribe() (<-chan *types.Event, func()) {
	ch := make(chan *types.Event, subscriberBuffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Dropped reports how many deliveries were skipped because a subscriber was
// not keeping up.
func (b *Bus) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

func cloneEvent(evt *types.Event) *types.Event {
	attrs := make(map[string]string, len(evt.Attributes))
	for k, v := range evt.Attributes {
		attrs[k] = v
	}
	return &types.Event{Type: evt.Type, Attributes: attrs}
}
