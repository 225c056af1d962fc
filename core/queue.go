package delivery

import (
	"sync"
	"time"
)

// messageQueue is the FIFO shared between the pipeline's execution
// contexts. Push never blocks, pop blocks up to a timeout, and drain takes
// everything at once for the interrupt path.
type messageQueue[T any] struct {
	mu    sync.Mutex
	items []T

	updateSignal chan struct{}
}

func newMessageQueue[T any]() *messageQueue[T] {
	return &messageQueue[T]{updateSignal: make(chan struct{}, 1)}
}

func (q *messageQueue[T]) push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signalUpdate()
}

// pop returns the oldest item, waiting up to timeout for one to arrive.
// The second return reports whether an item was received.
func (q *messageQueue[T]) pop(timeout time.Duration) (T, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.updateSignal:
		case <-deadline.C:
			var zero T
			return zero, false
		}
	}
}

// drain removes and returns everything currently queued, without waiting.
func (q *messageQueue[T]) drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

func (q *messageQueue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

func (q *messageQueue[T]) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
