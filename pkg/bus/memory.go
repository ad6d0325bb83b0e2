package bus

import (
	"errors"
	"sync"
)

// MemoryBus is the in-process Bus used when the agent runs on the same
// machine as the client. Delivery is synchronous: Publish invokes every
// matching handler before returning, so a single producer goroutine
// observes strict ordering.
type MemoryBus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string][]*memorySubscription
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySubscription)}
}

type memorySubscription struct {
	bus     *MemoryBus
	channel string
	id      uint64
	handler Handler
	closed  bool
}

func (s *memorySubscription) Channel() string { return s.channel }

func (s *memorySubscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	remaining := s.bus.subs[s.channel][:0]
	for _, sub := range s.bus.subs[s.channel] {
		if sub.id != s.id {
			remaining = append(remaining, sub)
		}
	}
	if len(remaining) == 0 {
		delete(s.bus.subs, s.channel)
	} else {
		s.bus.subs[s.channel] = remaining
	}
}

// Subscribe registers a handler for the exact channel name.
func (b *MemoryBus) Subscribe(channel string, h Handler) (Subscription, error) {
	if channel == "" {
		return nil, errors.New("channel name is required")
	}
	if h == nil {
		return nil, errors.New("handler is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &memorySubscription{bus: b, channel: channel, id: b.nextID, handler: h}
	b.subs[channel] = append(b.subs[channel], sub)
	return sub, nil
}

// Publish delivers payload to every subscriber of channel, in subscription
// order. Handlers run outside the bus lock so they may subscribe or close
// subscriptions during delivery; such changes take effect for subsequent
// events, not the one in flight.
func (b *MemoryBus) Publish(channel string, payload []byte) {
	b.mu.Lock()
	targets := make([]*memorySubscription, len(b.subs[channel]))
	copy(targets, b.subs[channel])
	b.mu.Unlock()

	for _, sub := range targets {
		sub.handler(payload)
	}
}

// SubscriberCount reports the number of active subscriptions on a channel.
func (b *MemoryBus) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}
