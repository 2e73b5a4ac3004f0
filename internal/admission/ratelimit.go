package admission

import (
	"sync"
	"time"
)

// slidingWindow is a rolling-interval rate limiter. It keeps the timestamps
// of recent events and prunes those older than the window on every check,
// so capacity is restored proportionally as the window decays instead of
// resetting on a calendar boundary.
type slidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events []time.Time

	now func() time.Time // overridable in tests
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// allow records one event and reports whether it fits within the limit.
// A rejected event is not recorded: being over the limit does not extend
// the penalty.
func (w *slidingWindow) allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.pruneLocked(now)

	if len(w.events) >= w.limit {
		return false
	}
	w.events = append(w.events, now)
	return true
}

// remaining returns how many events currently fit in the window.
func (w *slidingWindow) remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(w.now())
	r := w.limit - len(w.events)
	if r < 0 {
		r = 0
	}
	return r
}

func (w *slidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.events) && !w.events[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.events = append(w.events[:0], w.events[i:]...)
	}
}
