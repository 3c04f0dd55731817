package sender

import (
	"container/heap"
	"sync"

	"github.com/anthillnet/sinain-hud/internal/pipeline/frame"
)

// priorityQueue orders QueuedEvents by (Priority, TsMs) ascending: lower
// Priority value sends first, ties broken by earlier enqueue time.
type priorityQueue []frame.QueuedEvent

func (q priorityQueue) Len() int { return len(q) }

func (q priorityQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority < q[j].Priority
	}
	return q[i].TsMs < q[j].TsMs
}

func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *priorityQueue) Push(x any) { *q = append(*q, x.(frame.QueuedEvent)) }

func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Queue is a bounded, thread-safe priority queue of outgoing events.
type Queue struct {
	mu      sync.Mutex
	items   priorityQueue
	maxSize int
}

func NewQueue(maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = DefaultMaxQueueSize
	}
	q := &Queue{maxSize: maxSize}
	heap.Init(&q.items)
	return q
}

// Offer enqueues ev, returning false (and doing nothing) if the queue is
// already at capacity.
func (q *Queue) Offer(ev frame.QueuedEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.maxSize {
		return false
	}
	heap.Push(&q.items, ev)
	return true
}

// Take pops the highest-priority (lowest value) event, or reports false if
// the queue is empty.
func (q *Queue) Take() (frame.QueuedEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return frame.QueuedEvent{}, false
	}
	return heap.Pop(&q.items).(frame.QueuedEvent), true
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
