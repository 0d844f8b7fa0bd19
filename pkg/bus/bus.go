package bus

import "sync"

const defaultBufferSize = 100

// EventBus fans webhook lifecycle events out to any number of subscribers.
type EventBus struct {
	subscribers      map[uint64]chan Event
	nextSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[uint64]chan Event),
		done:        make(chan struct{}),
	}
}

func (b *EventBus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for id, ch := range b.subscribers {
			close(ch)
			delete(b.subscribers, id)
		}
		b.mu.Unlock()
	})
}
