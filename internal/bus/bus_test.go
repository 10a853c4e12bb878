package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe_DeliversToAllSubscribers(t *testing.T) {
	b := NewInMemoryBus(4)
	defer b.Close()

	ch1, cancel1 := b.Subscribe(TopicPresence)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(TopicPresence)
	defer cancel2()

	ev := ChangeEvent{EntityID: "u1", Kind: KindPresenceJoined, At: time.Now()}
	b.Publish(TopicPresence, ev)

	for i, ch := range []<-chan ChangeEvent{ch1, ch2} {
		select {
		case got := <-ch:
			if got.EntityID != "u1" || got.Kind != KindPresenceJoined {
				t.Fatalf("subscriber %d got %+v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}
}

func TestPublish_DoesNotCrossTopics(t *testing.T) {
	b := NewInMemoryBus(4)
	defer b.Close()

	ch, cancel := b.Subscribe(TopicAnchors)
	defer cancel()

	b.Publish(TopicPresence, ChangeEvent{EntityID: "u1", Kind: KindPresenceJoined})

	select {
	case ev := <-ch:
		t.Fatalf("anchor subscriber received presence event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_DropsWhenSubscriberFull(t *testing.T) {
	b := NewInMemoryBus(1)
	defer b.Close()

	ch, cancel := b.Subscribe(TopicPresence)
	defer cancel()

	// Fill the buffer, then publish more; none of these may block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(TopicPresence, ChangeEvent{EntityID: "u1", Kind: KindPositionUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	// Exactly one event buffered.
	if got := len(ch); got != 1 {
		t.Fatalf("buffered events = %d, want 1", got)
	}
}

func TestCancel_ClosesChannelAndIsIdempotent(t *testing.T) {
	b := NewInMemoryBus(4)
	defer b.Close()

	ch, cancel := b.Subscribe(TopicPresence)
	if b.SubscriberCount(TopicPresence) != 1 {
		t.Fatalf("expected one subscriber")
	}

	cancel()
	cancel() // must not panic

	if _, open := <-ch; open {
		t.Fatal("channel should be closed after cancel")
	}
	if b.SubscriberCount(TopicPresence) != 0 {
		t.Fatalf("subscriber not removed")
	}

	// Publishing after cancel must not panic.
	b.Publish(TopicPresence, ChangeEvent{EntityID: "u1"})
}

func TestClose_StopsDelivery(t *testing.T) {
	b := NewInMemoryBus(4)
	ch, cancel := b.Subscribe(TopicPresence)
	defer cancel()

	b.Close()

	if _, open := <-ch; open {
		t.Fatal("channel should be closed after bus Close")
	}
	b.Publish(TopicPresence, ChangeEvent{EntityID: "u1"}) // no-op, no panic
}
