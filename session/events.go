package session

import (
	"context"
	"sync"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventTextDelta          EventKind = "text_delta"
	EventCodeProposed       EventKind = "code_proposed"
	EventExecutionRequested EventKind = "execution_requested"
	EventExecutionApproved  EventKind = "execution_approved"
	EventExecutionDenied    EventKind = "execution_denied"
	EventExecutionOutput    EventKind = "execution_output"
	EventTurnComplete       EventKind = "turn_complete"
	EventError              EventKind = "error"
	EventNotice             EventKind = "notice"
)

// Event is a typed event emitted by the coordinator. Only the fields that
// belong to Kind are set.
type Event struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
	// Text carries TextDelta, ExecutionOutput and Notice payloads.
	Text       string    `json:"text,omitempty"`
	Language   string    `json:"language,omitempty"`
	Code       string    `json:"code,omitempty"`
	ApprovalID string    `json:"approval_id,omitempty"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// DefaultEventCapacity bounds the queue when no capacity is configured.
const DefaultEventCapacity = 1024

// EventQueue is a bounded FIFO between the worker and a single reader.
// Consecutive TextDelta events are merged. A full queue blocks the writer
// until the reader drains it; events are never dropped.
type EventQueue struct {
	mu       sync.Mutex
	events   []Event
	capacity int
	seq      uint64
	ready    chan struct{}
	space    chan struct{}
	closed   bool
	now      func() time.Time
}

// NewEventQueue creates a queue holding at most capacity events.
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &EventQueue{
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		space:    make(chan struct{}),
		now:      time.Now,
	}
}

// Push appends ev, blocking while the queue is full. It returns ctx.Err() if
// ctx ends first and ErrSessionClosed after Close.
func (q *EventQueue) Push(ctx context.Context, ev Event) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrSessionClosed
		}
		if q.appendLocked(ev, false) {
			q.mu.Unlock()
			q.notify()
			return nil
		}
		wait := q.space
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pushFinal appends ev even when the queue is full. It is reserved for the
// single TurnComplete that closes a turn.
func (q *EventQueue) pushFinal(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.appendLocked(ev, true)
	q.mu.Unlock()
	q.notify()
}

func (q *EventQueue) appendLocked(ev Event, force bool) bool {
	if n := len(q.events); ev.Kind == EventTextDelta && n > 0 && q.events[n-1].Kind == EventTextDelta {
		q.events[n-1].Text += ev.Text
		return true
	}
	if !force && len(q.events) >= q.capacity {
		return false
	}
	q.seq++
	ev.Seq = q.seq
	ev.Timestamp = q.now()
	q.events = append(q.events, ev)
	return true
}

func (q *EventQueue) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Drain returns every queued event in order and empties the queue. It never
// blocks and returns nil when the queue is empty.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	q.wakeWritersLocked()
	return out
}

// Reset discards queued events.
func (q *EventQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = nil
	q.wakeWritersLocked()
}

func (q *EventQueue) wakeWritersLocked() {
	close(q.space)
	q.space = make(chan struct{})
}

// Ready receives a value after events are pushed. A consumer that prefers
// waiting to polling selects on it and then calls Drain.
func (q *EventQueue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close rejects further pushes and releases blocked writers.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.wakeWritersLocked()
}
