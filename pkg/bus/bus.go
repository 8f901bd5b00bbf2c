// Package bus carries scene and batch events from the gateway to
// interested channels. Publishing never blocks the dispatch path: slow
// subscribers lose their oldest events instead of stalling execution.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrBusClosed = errors.New("event bus closed")

// Event types published by the gateway.
const (
	EventSceneUpdate     = "scene_update"
	EventBatchUpdate     = "batch_update"
	EventCommandExecuted = "command_executed"
)

// Event is one broadcast unit. Payload maps serialize directly into the
// WebSocket frames subscribers receive.
type Event struct {
	Type      string                 `json:"type"`
	Source    string                 `json:"source,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type subscriber struct {
	name string
	ch   chan Event
}

// EventBus fans events out to any number of subscribers.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	done   chan struct{}
	closed atomic.Bool
}

// NewEventBus returns an open bus with no subscribers.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[int]*subscriber),
		done: make(chan struct{}),
	}
}

// Publish delivers ev to every current subscriber. Full subscriber buffers
// drop their oldest event to make room; delivery to one subscriber never
// blocks on another.
func (eb *EventBus) Publish(ctx context.Context, ev Event) error {
	if eb.closed.Load() {
		return ErrBusClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed.Load() {
		return ErrBusClosed
	}
	for _, s := range eb.subs {
		select {
		case s.ch <- ev:
		default:
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- ev:
			default:
			}
		}
	}
	return nil
}

// Subscribe registers a named subscriber with its own buffer and returns
// the receive channel plus an unsubscribe func. The channel is closed on
// unsubscribe and on bus Close.
func (eb *EventBus) Subscribe(name string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	eb.mu.Lock()
	if eb.closed.Load() {
		eb.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := eb.nextID
	eb.nextID++
	eb.subs[id] = &subscriber{name: name, ch: ch}
	eb.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			if s, ok := eb.subs[id]; ok {
				delete(eb.subs, id)
				close(s.ch)
			}
		})
	}
	return ch, cancel
}

// SubscriberCount reports how many subscribers are attached.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subs)
}

// Done exposes the closed signal for select loops.
func (eb *EventBus) Done() <-chan struct{} { return eb.done }

// Close shuts the bus; all subscriber channels are closed. Idempotent.
func (eb *EventBus) Close() {
	if !eb.closed.CompareAndSwap(false, true) {
		return
	}
	close(eb.done)

	eb.mu.Lock()
	defer eb.mu.Unlock()
	for id, s := range eb.subs {
		delete(eb.subs, id)
		close(s.ch)
	}
}
