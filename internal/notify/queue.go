package notify

import (
	"sync"
	"time"
)

// Notification is an immutable room event record. Data is opaque to the
// core; it is produced by the broadcaster or the state machine and consumed
// exactly once per subscription.
type Notification struct {
	Event      string
	Data       map[string]any
	EnqueuedAt time.Time
}

// Well-known event names produced internally.
const (
	EventStateChanged = "state_changed"
	EventBroadcast    = "broadcast"
)

// queue is a growable FIFO ring buffer guarded by a condition variable.
// It doubles its capacity when it reaches 70% full, so a slow consumer
// never blocks a producer.
type queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []Notification
	head     int
	tail     int
	count    int
	capacity int
	closed   bool

	totalEnqueued int64
	totalDequeued int64
}

func newQueue(initialCapacity int) *queue {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &queue{
		buf:      make([]Notification, initialCapacity),
		capacity: initialCapacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends a notification. Returns false if the queue is closed.
func (q *queue) push(n Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := (q.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.buf[q.tail] = n
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.totalEnqueued++

	q.cond.Signal()
	return true
}

// pop removes the oldest notification, blocking until one is available,
// the timeout elapses, or the queue is closed. timeout <= 0 waits forever.
// Returns ok=false on timeout or close.
func (q *queue) pop(timeout time.Duration) (Notification, bool) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		// The waker turns a cond.Wait into a bounded wait. It fires once at
		// the deadline and broadcasts so the waiter re-checks its predicate.
		timer := time.AfterFunc(timeout, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		defer timer.Stop()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		if timeout > 0 && !time.Now().Before(deadline) {
			return Notification{}, false
		}
		q.cond.Wait()
	}

	if q.count == 0 {
		return Notification{}, false
	}

	n := q.buf[q.head]
	q.buf[q.head] = Notification{} // release payload reference
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.totalDequeued++

	return n, true
}

// tryPop removes the oldest notification without blocking.
func (q *queue) tryPop() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return Notification{}, false
	}

	n := q.buf[q.head]
	q.buf[q.head] = Notification{}
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.totalDequeued++

	return n, true
}

// close marks the queue closed and wakes all waiters. Pending items are
// discarded: a removed subscription never delivers again.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.count = 0
	q.head = 0
	q.tail = 0
	q.cond.Broadcast()
}

func (q *queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// grow doubles capacity. Caller holds q.mu.
func (q *queue) grow() {
	newCapacity := q.capacity * 2
	newBuf := make([]Notification, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCapacity
}
