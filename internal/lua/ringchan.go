package lua

import "sync/atomic"

// RingChannel is a bounded channel with overwrite-oldest semantics: when
// the buffer is full, sending discards the oldest element instead of
// blocking. The sketch loop prints through one of these, so a slow or
// absent output consumer can never stall an iteration.
//
// Producers use Send, TrySend or ForceSend; consumers either range over
// C() or call Receive/TryReceive, which additionally count received
// elements in the metrics.
type RingChannel[T any] struct {
	ch       chan T
	sent     atomic.Int64
	dropped  atomic.Int64
	received atomic.Int64
}

// RingMetrics is a snapshot of a RingChannel's counters. Received only
// covers Receive/TryReceive; reads through C() bypass counting.
type RingMetrics struct {
	Sent     int64
	Dropped  int64
	Received int64
}

// NewRingChannel creates a ring channel with the given capacity.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side as a plain channel.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element when full. It can still
// block briefly when racing another producer for the freed slot.
func (rc *RingChannel[T]) Send(v T) {
	select {
	case rc.ch <- v:
		rc.sent.Add(1)
	default:
		<-rc.ch
		rc.dropped.Add(1)
		rc.ch <- v
		rc.sent.Add(1)
	}
}

// TrySend inserts v only if there is room, reporting whether it did.
func (rc *RingChannel[T]) TrySend(v T) bool {
	select {
	case rc.ch <- v:
		rc.sent.Add(1)
		return true
	default:
		return false
	}
}

// ForceSend inserts v without ever blocking, discarding the oldest
// element if needed. Reports whether an element was discarded.
func (rc *RingChannel[T]) ForceSend(v T) bool {
	dropped := false
	select {
	case rc.ch <- v:
		rc.sent.Add(1)
	default:
		select {
		case <-rc.ch:
			rc.dropped.Add(1)
			dropped = true
		default:
		}
		rc.ch <- v
		rc.sent.Add(1)
	}
	return dropped
}

// Receive blocks until a value arrives or the channel closes.
func (rc *RingChannel[T]) Receive() (v T, ok bool) {
	v, ok = <-rc.ch
	if ok {
		rc.received.Add(1)
	}
	return v, ok
}

// TryReceive performs a non-blocking receive.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.received.Add(1)
		}
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the buffer capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the channel. Sends after Close panic.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}

// Metrics returns a snapshot of the counters.
func (rc *RingChannel[T]) Metrics() RingMetrics {
	return RingMetrics{
		Sent:     rc.sent.Load(),
		Dropped:  rc.dropped.Load(),
		Received: rc.received.Load(),
	}
}
