package eventsource

import (
	"bytes"
	"context"
	"errors"
	"time"
)

var _ Source = (*SliceSource)(nil)

// SliceSource replays records from memory. Records can be appended while it
// is being polled.
type SliceSource struct {
	queue *RawQueue
}

func NewSliceSource(records ...[]byte) *SliceSource {
	s := &SliceSource{queue: NewRawQueue()}
	for _, raw := range records {
		_ = s.queue.Push(raw)
	}
	return s
}

// Push queues a copy of raw.
func (s *SliceSource) Push(raw []byte) error {
	return s.queue.Push(bytes.Clone(raw))
}

func (s *SliceSource) Poll(timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	raw, err := s.queue.Pop(ctx)
	switch {
	case err == nil:
		return raw, nil
	case errors.Is(err, context.DeadlineExceeded):
		return nil, ErrTimeout
	default:
		return nil, err
	}
}

func (s *SliceSource) Len() int {
	return s.queue.Len()
}

// Close ends the source once the queued records are consumed.
func (s *SliceSource) Close() error {
	s.queue.Close()
	return nil
}
