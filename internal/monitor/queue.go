package monitor

import (
	"sync"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasmodel"
)

// eventQueue is a bounded FIFO of data-change events that drops the oldest
// entry on overflow, generalized from the teacher's internal/cloud.MemoryBuffer
// (spec.md §4.4: the Monitoring Manager favors freshness over completeness).
type eventQueue struct {
	mu       sync.Mutex
	items    []*aasmodel.DataChangeEvent
	capacity int
	dropped  int
}

func newEventQueue(capacity int) *eventQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &eventQueue{
		items:    make([]*aasmodel.DataChangeEvent, 0, capacity),
		capacity: capacity,
	}
}

// push appends event, dropping the oldest queued event if the queue is
// full. It reports whether an event was dropped.
func (q *eventQueue) push(event *aasmodel.DataChangeEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	droppedOne := false
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		q.dropped++
		droppedOne = true
	}
	q.items = append(q.items, event)
	return droppedOne
}

// drain removes and returns every currently queued event.
func (q *eventQueue) drain() []*aasmodel.DataChangeEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = make([]*aasmodel.DataChangeEvent, 0, q.capacity)
	return out
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *eventQueue) droppedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
