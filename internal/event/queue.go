package event

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO feeding a Pump. Push never blocks, so a
// producer such as a receive loop keeps its pace however slowly the Pump
// drains, and messages reach the Pump in the order they were pushed.
type Queue[M Message] struct {
	mu     sync.Mutex
	items  []M
	closed bool
	ready  chan struct{}
}

func NewQueue[M Message]() *Queue[M] {
	return &Queue[M]{ready: make(chan struct{}, 1)}
}

// Push appends m. Messages pushed after Close are dropped.
func (q *Queue[M]) Push(m M) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, m)
	q.wake()
}

// Close ends the stream once the queued messages have been drained.
func (q *Queue[M]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.wake()
}

func (q *Queue[M]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[M]) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Source returns the Source that drains q.
func (q *Queue[M]) Source() Source {
	return q.next
}

func (q *Queue[M]) next(ctx context.Context) (Message, error) {
	for {
		m, ok, closed := q.pop()
		if ok {
			return m, nil
		}
		if closed {
			return nil, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Queue[M]) pop() (m M, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return m, false, q.closed
	}
	m = q.items[0]
	var zero M
	q.items[0] = zero
	q.items = q.items[1:]
	return m, true, q.closed
}
