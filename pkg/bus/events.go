package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventWebhookReceived   EventType = "webhook_received"
	EventSignatureRejected EventType = "signature_rejected"
	EventReplySent         EventType = "reply_sent"
	EventReplyFailed       EventType = "reply_failed"
)

type Event struct {
	Type      EventType         `json:"type"`
	At        time.Time         `json:"at"`
	Channel   string            `json:"channel,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	EventType string            `json:"event_type,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func (b *EventBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	default:
	}

	// Sends happen under the read lock so unsubscribe cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the webhook on slow subscribers.
		}
	}

	return true
}

func (b *EventBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := b.nextSubscriberID
	b.nextSubscriberID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if eventCh, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(eventCh)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-b.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
