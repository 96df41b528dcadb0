package sim

import "container/heap"

// eventOrder is the heap.Interface backing EventHeap: earliest timestamp
// first, then lowest event ID, which grows with scheduling order.
type eventOrder []Event

func (q eventOrder) Len() int { return len(q) }

func (q eventOrder) Less(i, j int) bool {
	if ti, tj := q[i].Timestamp(), q[j].Timestamp(); ti != tj {
		return ti < tj
	}
	return q[i].EventID() < q[j].EventID()
}

func (q eventOrder) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventOrder) Push(x any) { *q = append(*q, x.(Event)) }

func (q *eventOrder) Pop() any {
	old := *q
	last := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	return last
}

// EventHeap is the simulator's future event list. The engine drains it one
// timestamp at a time with PeekTimestamp and PopReady.
type EventHeap struct {
	order eventOrder
}

func NewEventHeap() *EventHeap {
	return &EventHeap{}
}

// Len is the number of scheduled events, cancelled ones included.
func (h *EventHeap) Len() int { return h.order.Len() }

func (h *EventHeap) Schedule(e Event) {
	heap.Push(&h.order, e)
}

// PeekTimestamp returns the timestamp of the next event, or Infinity when empty.
func (h *EventHeap) PeekTimestamp() int64 {
	if len(h.order) == 0 {
		return Infinity
	}
	return h.order[0].Timestamp()
}

// PopReady removes every event due at or before ts and returns them in
// execution order.
func (h *EventHeap) PopReady(ts int64) []Event {
	var due []Event
	for len(h.order) > 0 && h.order[0].Timestamp() <= ts {
		due = append(due, heap.Pop(&h.order).(Event))
	}
	return due
}
