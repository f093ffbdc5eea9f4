package engine

import (
	"container/heap"
	"strings"
	"time"
)

// pendingKind is an event kind; its value is the same-instant rank.
type pendingKind int

const (
	pendingReleased pendingKind = iota
	pendingTrigger
	pendingSignal
	pendingAbort
	pendingForce
	pendingComplete
	pendingStop
)

func (k pendingKind) String() string {
	switch k {
	case pendingReleased:
		return "resource_released"
	case pendingTrigger:
		return "trigger_fire"
	case pendingSignal:
		return "manual_signal"
	case pendingAbort:
		return "step_abort"
	case pendingForce:
		return "step_force_complete"
	case pendingComplete:
		return "step_complete"
	case pendingStop:
		return "program_stop"
	default:
		return "unknown"
	}
}

// pending is one queued event. Subject is a step ID, except for
// pendingReleased (the comma-joined freed resources) and pendingStop (empty).
type pending struct {
	at        time.Duration
	kind      pendingKind
	subject   string
	resources []string // pendingReleased only
	seq       int64    // insertion order
	index     int      // heap position, -1 once popped
}

// before reports whether a must be processed before b.
func (a *pending) before(b *pending) bool {
	if a.at != b.at {
		return a.at < b.at
	}
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	if a.subject != b.subject {
		return a.subject < b.subject
	}
	return a.seq < b.seq
}

type pendingHeap []*pending

func (h pendingHeap) Len() int           { return len(h) }
func (h pendingHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h pendingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *pendingHeap) Push(x any) {
	p := x.(*pending)
	p.index = len(*h)
	*h = append(*h, p)
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	old[n-1] = nil // release the pointer for GC
	p.index = -1
	*h = old[:n-1]
	return p
}

// eventQueue is the engine's priority queue of pending events.
// Not thread-safe: only the engine's event loop touches it.
type eventQueue struct {
	h   pendingHeap
	seq int64
}

func newEventQueue() *eventQueue {
	return &eventQueue{h: make(pendingHeap, 0, 64)}
}

// push schedules an event and returns its handle for later removal.
func (q *eventQueue) push(at time.Duration, kind pendingKind, subject string) *pending {
	q.seq++
	p := &pending{at: at, kind: kind, subject: subject, seq: q.seq}
	heap.Push(&q.h, p)
	return p
}

// pushRelease schedules one re-evaluation covering every resource a
// single release freed.
func (q *eventQueue) pushRelease(at time.Duration, resources []string) *pending {
	p := q.push(at, pendingReleased, strings.Join(resources, ","))
	p.resources = resources
	return p
}

// peek returns the next event without removing it.
func (q *eventQueue) peek() (*pending, bool) {
	if len(q.h) == 0 {
		return nil, false
	}
	return q.h[0], true
}

// pop removes and returns the next event.
func (q *eventQueue) pop() (*pending, bool) {
	if len(q.h) == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*pending), true
}

// remove drops a still-queued event. Removing an already popped event is a no-op.
func (q *eventQueue) remove(p *pending) {
	if p == nil || p.index < 0 || p.index >= len(q.h) || q.h[p.index] != p {
		return
	}
	heap.Remove(&q.h, p.index)
}

// clear drops every queued event.
func (q *eventQueue) clear() {
	for _, p := range q.h {
		p.index = -1
	}
	q.h = q.h[:0]
}

func (q *eventQueue) len() int {
	return len(q.h)
}
