package netkit

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

// Queue is a double-ended queue safe for concurrent use.
//
// Every push wakes at most one goroutine blocked in Wait or WaitContext.
// A woken waiter re-checks emptiness, so stale signals are harmless.
// Signals from a burst of pushes may merge into one, so only a single
// waiting consumer per queue is supported.
type Queue[T any] struct {
	mu     sync.Mutex
	items  deque.Deque[T]
	signal chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{signal: make(chan struct{}, 1)}
}

// PushBack adds item at the back of the queue.
func (q *Queue[T]) PushBack(item T) {
	q.mu.Lock()
	q.items.PushBack(item)
	q.mu.Unlock()
	q.notify()
}

// PushFront adds item at the front of the queue.
func (q *Queue[T]) PushFront(item T) {
	q.mu.Lock()
	q.items.PushFront(item)
	q.mu.Unlock()
	q.notify()
}

// PopFront removes and returns the front item. ok is false if the queue is empty.
func (q *Queue[T]) PopFront() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return item, false
	}
	return q.items.PopFront(), true
}

// PopBack removes and returns the back item. ok is false if the queue is empty.
func (q *Queue[T]) PopBack() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return item, false
	}
	return q.items.PopBack(), true
}

// Front returns the front item without removing it.
func (q *Queue[T]) Front() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return item, false
	}
	return q.items.Front(), true
}

// Back returns the back item without removing it.
func (q *Queue[T]) Back() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return item, false
	}
	return q.items.Back(), true
}

// Empty reports whether the queue holds no items.
func (q *Queue[T]) Empty() bool {
	return q.Count() == 0
}

// Count returns the number of queued items.
func (q *Queue[T]) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Clear drops every queued item.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.Clear()
}

// Wait blocks until the queue is non-empty.
func (q *Queue[T]) Wait() {
	_ = q.WaitContext(context.Background())
}

// WaitContext blocks until the queue is non-empty or ctx is done.
func (q *Queue[T]) WaitContext(ctx context.Context) error {
	for q.Empty() {
		select {
		case <-q.signal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (q *Queue[T]) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
