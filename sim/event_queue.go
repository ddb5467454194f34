package sim

import "container/heap"

// EventQueue is a priority queue with deterministic ordering.
// Order by: timestamp → priority → insertion sequence.
// Each event tracks its heap index so it can be removed on cancel.
type EventQueue struct {
	events []*Event
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{events: make([]*Event, 0)}
	heap.Init(q)
	return q
}

// Len implements heap.Interface
func (q *EventQueue) Len() int { return len(q.events) }

// Less implements heap.Interface
func (q *EventQueue) Less(i, j int) bool { return q.events[i].before(q.events[j]) }

// Swap implements heap.Interface
func (q *EventQueue) Swap(i, j int) {
	q.events[i], q.events[j] = q.events[j], q.events[i]
	q.events[i].index = i
	q.events[j].index = j
}

// Push implements heap.Interface
func (q *EventQueue) Push(x any) {
	ev := x.(*Event)
	ev.index = len(q.events)
	q.events = append(q.events, ev)
}

// Pop implements heap.Interface
func (q *EventQueue) Pop() any {
	old := q.events
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	q.events = old[:n-1]
	return ev
}

// Schedule adds an event to the queue.
func (q *EventQueue) Schedule(ev *Event) {
	heap.Push(q, ev)
}

// PopNext removes and returns the next event, or nil when empty.
func (q *EventQueue) PopNext() *Event {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*Event)
}

// Peek returns the next event without removing it.
func (q *EventQueue) Peek() *Event {
	if q.Len() == 0 {
		return nil
	}
	return q.events[0]
}

// Remove withdraws ev. It reports false when ev is not in this queue.
func (q *EventQueue) Remove(ev *Event) bool {
	i := ev.index
	if i < 0 || i >= len(q.events) || q.events[i] != ev {
		return false
	}
	heap.Remove(q, i)
	return true
}
