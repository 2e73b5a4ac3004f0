package notify

import (
	"testing"
	"time"
)

func note(event string) Notification {
	return Notification{Event: event, EnqueuedAt: time.Now()}
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := newQueue(4)

	events := []string{"a", "b", "c", "d", "e"}
	for _, e := range events {
		if !q.push(note(e)) {
			t.Fatalf("push(%q) returned false", e)
		}
	}

	for _, want := range events {
		n, ok := q.tryPop()
		if !ok {
			t.Fatalf("tryPop returned false, expected %q", want)
		}
		if n.Event != want {
			t.Errorf("popped %q, want %q", n.Event, want)
		}
	}

	if _, ok := q.tryPop(); ok {
		t.Error("tryPop should return false on empty queue")
	}
}

func TestQueue_GrowPreservesOrder(t *testing.T) {
	q := newQueue(2)

	// Far beyond the initial capacity; ordering must survive the grows.
	for i := 0; i < 100; i++ {
		q.push(Notification{Event: "e", Data: map[string]any{"i": i}})
	}

	if q.len() != 100 {
		t.Fatalf("len() = %d, want 100", q.len())
	}

	for i := 0; i < 100; i++ {
		n, ok := q.tryPop()
		if !ok {
			t.Fatalf("tryPop returned false at item %d", i)
		}
		if got := n.Data["i"].(int); got != i {
			t.Errorf("item %d carried index %d", i, got)
		}
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := newQueue(4)

	received := make(chan Notification, 1)
	go func() {
		n, ok := q.pop(5 * time.Second)
		if ok {
			received <- n
		}
	}()

	// Give the consumer time to start waiting
	time.Sleep(10 * time.Millisecond)
	q.push(note("wake"))

	select {
	case n := <-received:
		if n.Event != "wake" {
			t.Errorf("received %q, want %q", n.Event, "wake")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked pop")
	}
}

func TestQueue_PopTimeout(t *testing.T) {
	q := newQueue(4)

	start := time.Now()
	_, ok := q.pop(50 * time.Millisecond)
	elapsed := time.Since(start)

	if ok {
		t.Error("pop should return false on timeout")
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("pop returned after %v, want at least 50ms", elapsed)
	}
}

func TestQueue_CloseDiscardsPending(t *testing.T) {
	q := newQueue(4)

	q.push(note("a"))
	q.push(note("b"))
	q.close()

	if q.push(note("c")) {
		t.Error("push should return false after close")
	}
	if q.len() != 0 {
		t.Errorf("len() = %d after close, want 0", q.len())
	}
	if _, ok := q.tryPop(); ok {
		t.Error("tryPop should return false after close")
	}
	if !q.isClosed() {
		t.Error("isClosed() = false after close")
	}
}

func TestQueue_CloseUnblocksPop(t *testing.T) {
	q := newQueue(4)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.pop(0)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.close()

	select {
	case ok := <-done:
		if ok {
			t.Error("pop should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("close did not unblock pop")
	}
}
