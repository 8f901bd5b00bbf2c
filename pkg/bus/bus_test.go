package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	ch1, cancel1 := eb.Subscribe("ws", 4)
	defer cancel1()
	ch2, cancel2 := eb.Subscribe("audit", 4)
	defer cancel2()

	ev := Event{Type: EventSceneUpdate, Payload: map[string]interface{}{"objects": 3}}
	if err := eb.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Type != EventSceneUpdate {
				t.Fatalf("got type %q, want %q", got.Type, EventSceneUpdate)
			}
			if got.Timestamp.IsZero() {
				t.Fatal("timestamp not stamped")
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	ch, cancel := eb.Subscribe("slow", 2)
	defer cancel()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := eb.Publish(ctx, Event{Type: EventBatchUpdate, Payload: map[string]interface{}{"n": i}}); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	// Buffer holds the newest two events; the rest were dropped.
	first := <-ch
	second := <-ch
	if first.Payload["n"] != 3 || second.Payload["n"] != 4 {
		t.Fatalf("kept events %v and %v, want 3 and 4", first.Payload["n"], second.Payload["n"])
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected extra event: %v", ev)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	ch, cancel := eb.Subscribe("ws", 1)
	cancel()
	cancel() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	if n := eb.SubscriberCount(); n != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", n)
	}
}

func TestPublishAfterClose(t *testing.T) {
	eb := NewEventBus()
	eb.Close()

	err := eb.Publish(context.Background(), Event{Type: EventSceneUpdate})
	if err != ErrBusClosed {
		t.Fatalf("got %v, want ErrBusClosed", err)
	}
}

func TestPublishCancelledContext(t *testing.T) {
	eb := NewEventBus()
	defer eb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := eb.Publish(ctx, Event{Type: EventSceneUpdate})
	if err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	eb := NewEventBus()
	ch, _ := eb.Subscribe("ws", 1)

	eb.Close()
	eb.Close() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("subscriber channel open after Close")
	}

	select {
	case <-eb.Done():
	default:
		t.Fatal("Done() not closed")
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	eb := NewEventBus()
	eb.Close()

	ch, cancel := eb.Subscribe("late", 1)
	defer cancel()
	if _, ok := <-ch; ok {
		t.Fatal("subscription after Close delivered an open channel")
	}
}
