package install

import (
	"sync"

	"github.com/gammazero/deque"
)

// priorityOrder lists pop precedence, highest first.
var priorityOrder = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

// taskQueue is a priority queue of task IDs. Within a priority tier tasks
// come out in insertion order.
type taskQueue struct {
	mu      sync.Mutex
	buckets map[Priority]*deque.Deque[string]
}

func newTaskQueue() *taskQueue {
	return &taskQueue{buckets: make(map[Priority]*deque.Deque[string])}
}

func (q *taskQueue) Push(id string, p Priority) {
	q.mu.Lock()
	defer q.mu.Unlock()
	b := q.buckets[p]
	if b == nil {
		b = new(deque.Deque[string])
		q.buckets[p] = b
	}
	b.PushBack(id)
}

// PushFront requeues an id at the head of its tier, keeping a deferred task
// ahead of later arrivals.
func (q *taskQueue) PushFront(id string, p Priority) {
	q.mu.Lock()
	defer q.mu.Unlock()
	b := q.buckets[p]
	if b == nil {
		b = new(deque.Deque[string])
		q.buckets[p] = b
	}
	b.PushFront(id)
}

func (q *taskQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range priorityOrder {
		if b := q.buckets[p]; b != nil && b.Len() > 0 {
			return b.PopFront(), true
		}
	}
	return "", false
}

func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, b := range q.buckets {
		n += b.Len()
	}
	return n
}

func (q *taskQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buckets = make(map[Priority]*deque.Deque[string])
}
