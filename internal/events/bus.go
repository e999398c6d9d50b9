package events

import "sync"

// Bus routes engine notifications to in-process consumers by topic.
// Publishing never blocks: a subscriber that stops draining its buffer
// loses messages rather than stalling the trading path.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	topics map[Event]map[int]chan any
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[Event]map[int]chan any)}
}

// Subscribe returns a buffered channel carrying payloads for one topic
// and a cancel function. Cancel is idempotent and closes the channel.
func (b *Bus) Subscribe(topic Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[topic] == nil {
		b.topics[topic] = make(map[int]chan any)
	}
	id := b.nextID
	b.nextID++
	ch := make(chan any, buffer)
	b.topics[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.topics[topic], id)
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the payload to every subscriber of the topic that
// has buffer room and drops it for the rest.
func (b *Bus) Publish(topic Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.topics[topic] {
		select {
		case ch <- payload:
		default:
		}
	}
}
