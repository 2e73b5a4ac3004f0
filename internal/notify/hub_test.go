package notify

import (
	"sync"
	"testing"
	"time"
)

func TestHub_NotifyDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub(nil)

	sub1 := hub.Subscribe("room-1", "conn-1")
	sub2 := hub.Subscribe("room-1", "conn-2")
	other := hub.Subscribe("room-2", "conn-3")

	delivered := hub.Notify("room-1", EventBroadcast, map[string]any{"message": "hello"})
	if delivered != 2 {
		t.Errorf("Notify returned %d, want 2", delivered)
	}

	for i, sub := range []*Subscription{sub1, sub2} {
		n, ok := sub.Next(time.Second)
		if !ok {
			t.Fatalf("subscriber %d received nothing", i+1)
		}
		if n.Event != EventBroadcast {
			t.Errorf("subscriber %d event = %q, want %q", i+1, n.Event, EventBroadcast)
		}
		if n.Data["message"] != "hello" {
			t.Errorf("subscriber %d message = %v, want hello", i+1, n.Data["message"])
		}
	}

	if _, ok := other.TryNext(); ok {
		t.Error("subscriber in another room received the notification")
	}
}

func TestHub_PerSubscriberFIFO(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Subscribe("room-1", "")

	for i := 0; i < 10; i++ {
		hub.Notify("room-1", EventBroadcast, map[string]any{"seq": i})
	}

	for i := 0; i < 10; i++ {
		n, ok := sub.TryNext()
		if !ok {
			t.Fatalf("TryNext returned false at %d", i)
		}
		if got := n.Data["seq"].(int); got != i {
			t.Errorf("delivery %d carried seq %d", i, got)
		}
	}
}

func TestHub_NotifyNoSubscribers(t *testing.T) {
	hub := NewHub(nil)

	if delivered := hub.Notify("ghost-room", EventBroadcast, nil); delivered != 0 {
		t.Errorf("Notify returned %d for room with no subscribers, want 0", delivered)
	}
}

func TestHub_PreRegistration(t *testing.T) {
	hub := NewHub(nil)

	// Subscribing to a room that does not exist yet is allowed; deliveries
	// start as soon as events flow.
	sub := hub.Subscribe("future-room", "")
	if hub.SubscriberCount("future-room") != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", hub.SubscriberCount("future-room"))
	}

	hub.Notify("future-room", EventStateChanged, map[string]any{"state": "ACTIVE"})
	n, ok := sub.Next(time.Second)
	if !ok {
		t.Fatal("pre-registered subscriber received nothing")
	}
	if n.Data["state"] != "ACTIVE" {
		t.Errorf("state = %v, want ACTIVE", n.Data["state"])
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Subscribe("room-1", "")

	hub.Notify("room-1", EventBroadcast, map[string]any{"seq": 1})
	sub.Unsubscribe()

	// Removal discards anything still queued.
	if _, ok := sub.TryNext(); ok {
		t.Error("TryNext returned a notification after Unsubscribe")
	}

	if delivered := hub.Notify("room-1", EventBroadcast, nil); delivered != 0 {
		t.Errorf("Notify returned %d after unsubscribe, want 0", delivered)
	}
	if hub.SubscriberCount("room-1") != 0 {
		t.Errorf("SubscriberCount = %d, want 0", hub.SubscriberCount("room-1"))
	}
}

func TestHub_UnsubscribeOwner(t *testing.T) {
	hub := NewHub(nil)

	hub.Subscribe("room-1", "conn-1")
	hub.Subscribe("room-2", "conn-1")
	kept := hub.Subscribe("room-1", "conn-2")

	hub.UnsubscribeOwner("conn-1")

	if hub.SubscriberCount("room-1") != 1 {
		t.Errorf("room-1 SubscriberCount = %d, want 1", hub.SubscriberCount("room-1"))
	}
	if hub.SubscriberCount("room-2") != 0 {
		t.Errorf("room-2 SubscriberCount = %d, want 0", hub.SubscriberCount("room-2"))
	}

	hub.Notify("room-1", EventBroadcast, nil)
	if _, ok := kept.Next(time.Second); !ok {
		t.Error("surviving subscriber stopped receiving")
	}
}

func TestHub_RoomDestroyedDropsSubscriptions(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.Subscribe("room-1", "conn-1")

	hub.RoomDestroyed("room-1")

	if hub.SubscriberCount("room-1") != 0 {
		t.Errorf("SubscriberCount = %d, want 0", hub.SubscriberCount("room-1"))
	}
	if !sub.Closed() {
		t.Error("subscription not closed after room destroy")
	}
}

func TestHub_ConcurrentNotify(t *testing.T) {
	hub := NewHub(nil)

	const subscribers = 10
	const notifications = 100

	subs := make([]*Subscription, subscribers)
	for i := range subs {
		subs[i] = hub.Subscribe("room-1", "")
	}

	var wg sync.WaitGroup
	for i := 0; i < notifications; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hub.Notify("room-1", EventBroadcast, map[string]any{"seq": i})
		}(i)
	}
	wg.Wait()

	for i, sub := range subs {
		if got := sub.Pending(); got != notifications {
			t.Errorf("subscriber %d Pending() = %d, want %d", i, got, notifications)
		}
	}
}
