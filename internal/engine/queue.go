package engine

import (
	"sync"

	"github.com/MiraeNK/mesline/internal/fulfillment"
	"github.com/MiraeNK/mesline/internal/model"
)

// EventKind distinguishes between event kinds.
type EventKind int

const (
	// EventChange reports that a watched store subtree changed.
	EventChange EventKind = iota + 1
	// EventDeadline reports that a stage deadline or retry timer fired.
	EventDeadline
	// EventSignal carries an external stage completion.
	EventSignal
)

func (k EventKind) String() string {
	switch k {
	case EventChange:
		return "change"
	case EventDeadline:
		return "deadline"
	case EventSignal:
		return "signal"
	}
	return "unknown"
}

// Event is one unit of work for the Run loop.
type Event struct {
	Kind  EventKind
	Path  string      // EventChange
	Stage model.Stage // EventSignal

	reply chan signalReply
}

type signalReply struct {
	result fulfillment.Result
	err    error
}

// eventQueue is a thread-safe FIFO queue for events.
//
// Change and deadline events carry no payload the loop depends on, so one
// pending event of each kind is enough; further ones are coalesced. Signals
// are never coalesced.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu      sync.Mutex
	events  []Event
	pending map[EventKind]bool
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events:  make([]Event, 0, 16),
		pending: make(map[EventKind]bool),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if e.Kind != EventSignal {
		if q.pending[e.Kind] {
			return true
		}
		q.pending[e.Kind] = true
	}
	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	delete(q.pending, e.Kind)
	return e, true
}

// Wait returns a channel that signals when events may be available. It is
// closed once the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting events and returns the ones still queued.
func (q *eventQueue) Close() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)

	left := q.events
	q.events = nil
	return left
}
