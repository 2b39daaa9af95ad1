package session

import "agentdeck/internal/event"

// RingBuffer is a fixed-capacity circular buffer of normalized events.
// Newest overwrites oldest, so a late-attaching client replays exactly
// the most recent capacity events. Callers synchronize access; within a
// session that is the session lock.
type RingBuffer struct {
	buf      []event.Event
	capacity int
	pos      int // next write position
	full     bool
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		buf:      make([]event.Event, capacity),
		capacity: capacity,
	}
}

// Write adds an event, overwriting the oldest when full.
func (rb *RingBuffer) Write(ev event.Event) {
	rb.buf[rb.pos] = ev
	rb.pos = (rb.pos + 1) % rb.capacity
	if rb.pos == 0 {
		rb.full = true
	}
}

// ReadAll returns the buffered events in emission order.
func (rb *RingBuffer) ReadAll() []event.Event {
	if !rb.full {
		result := make([]event.Event, rb.pos)
		copy(result, rb.buf[:rb.pos])
		return result
	}

	result := make([]event.Event, rb.capacity)
	copy(result, rb.buf[rb.pos:])
	copy(result[rb.capacity-rb.pos:], rb.buf[:rb.pos])
	return result
}

// Len reports how many events are buffered.
func (rb *RingBuffer) Len() int {
	if rb.full {
		return rb.capacity
	}
	return rb.pos
}
