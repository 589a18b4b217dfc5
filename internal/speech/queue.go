package speech

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrQueueClosed is returned by Dequeue once the queue is closed and
// fully drained.
var ErrQueueClosed = errors.New("speech: queue closed")

// Queue is a bounded FIFO of utterances. When full it drops the
// incoming item rather than evicting older ones, so speech that is
// already waiting keeps its place. One goroutine consumes; any number
// of producers may enqueue.
type Queue struct {
	mu       sync.Mutex
	items    []Utterance
	capacity int
	closed   bool

	dropped atomic.Uint64

	// wake is buffered so Enqueue never blocks on signalling. A single
	// pending token is enough because the consumer rechecks the slice
	// after every wakeup.
	wake chan struct{}
}

// NewQueue returns a queue holding at most capacity items.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue appends u unless the queue is full or closed. It reports
// whether the utterance was accepted; a full queue counts the item as
// dropped.
func (q *Queue) Enqueue(u Utterance) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		q.dropped.Add(1)
		return false
	}
	q.items = append(q.items, u)
	q.mu.Unlock()
	q.signal()
	return true
}

// Dequeue blocks until an utterance is available, the context is
// cancelled, or the queue is closed and empty.
func (q *Queue) Dequeue(ctx context.Context) (Utterance, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			u := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return u, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Utterance{}, ErrQueueClosed
		}
		select {
		case <-ctx.Done():
			return Utterance{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// SetCapacity resizes the queue for subsequent enqueues. Items already
// waiting are never evicted; shrinking below the current depth just
// blocks new arrivals until the consumer drains the excess.
func (q *Queue) SetCapacity(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	q.mu.Lock()
	q.capacity = capacity
	q.mu.Unlock()
}

// Close stops accepting new items. Items already queued remain
// dequeueable; once drained, Dequeue returns ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity reports the current maximum depth.
func (q *Queue) Capacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// Dropped reports how many utterances were discarded because the queue
// was full or shrunk.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
