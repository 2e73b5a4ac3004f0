// Package notify implements the notification hub: per-subscriber ordered
// delivery queues for room events.
//
// Each Subscription owns an unbounded, growable FIFO queue. Notify fans an
// event out to every subscription registered for a room; delivery order is
// FIFO per subscriber, with no ordering guarantee across subscribers or
// rooms. Next is the only blocking call in the core and always honors its
// timeout.
package notify
