package wisun

import (
	"context"
	"sync"

	"i4.energy/across/semgw/skstack"
)

// Queue is an unbounded FIFO of events not claimed by a command.
// Push never blocks, so the loop can't be held up by a slow consumer.
type Queue struct {
	mu     sync.Mutex
	items  []skstack.Event
	signal chan struct{}

	done chan struct{}
	err  error
	once sync.Once
}

func NewQueue() *Queue {
	return &Queue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Fail makes Next return err once the queue is drained. Only the first
// call has an effect.
func (q *Queue) Fail(err error) {
	q.once.Do(func() {
		q.err = err
		close(q.done)
	})
}

func (q *Queue) Push(ev skstack.Event) int {
	q.mu.Lock()
	q.items = append(q.items, ev)
	n := len(q.items)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return n
}

// Pop removes the oldest event, if any.
func (q *Queue) Pop() (skstack.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	ev := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return ev, true
}

// Next blocks until an event is available, ctx is done or the queue has
// failed and is empty.
func (q *Queue) Next(ctx context.Context) (skstack.Event, error) {
	for {
		if ev, ok := q.Pop(); ok {
			return ev, nil
		}
		select {
		case <-q.signal:
		case <-q.done:
			if ev, ok := q.Pop(); ok {
				return ev, nil
			}
			return nil, q.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
