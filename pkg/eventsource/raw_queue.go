package eventsource

import (
	"context"
	"sync"

	"github.com/oleiade/lane/v2"
)

// RawQueue is an unbounded FIFO of raw records with a single consumer. Push
// never blocks, so a source feeding it is never held back by parsing.
type RawQueue struct {
	queue     *lane.Queue[[]byte]
	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewRawQueue() *RawQueue {
	return &RawQueue{
		queue:  lane.NewQueue[[]byte](),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends raw. It returns ErrClosed once the queue is closed.
func (q *RawQueue) Push(raw []byte) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	q.queue.Enqueue(raw)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pop waits for the next record. After Close it keeps returning queued
// records and then ErrClosed.
func (q *RawQueue) Pop(ctx context.Context) ([]byte, error) {
	for {
		if raw, ok := q.queue.Dequeue(); ok {
			return raw, nil
		}
		select {
		case <-q.notify:
		case <-q.done:
			if raw, ok := q.queue.Dequeue(); ok {
				return raw, nil
			}
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *RawQueue) Len() int {
	return int(q.queue.Size())
}

// Close stops further pushes. Queued records stay available to Pop.
func (q *RawQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
