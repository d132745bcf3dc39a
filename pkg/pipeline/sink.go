package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/kubescape/kernel-agent/pkg/accumulator"
)

// ErrChannelClosed is returned by a Sink whose consumer stopped receiving.
var ErrChannelClosed = errors.New("processed event channel closed")

// Sink receives flushed batches. Deliver blocks while the downstream is full
// and must return ErrChannelClosed, possibly wrapped, once the downstream is
// gone. Finish is called exactly once after the last Deliver.
type Sink interface {
	Deliver(ctx context.Context, batch accumulator.Batch) error
	Finish()
}

var _ Sink = (*ChannelSink)(nil)

// ChannelSink delivers batches on a bounded channel. The pipeline closes the
// channel after the final batch; the receiving side signals that it is gone
// with Close.
type ChannelSink struct {
	ch         chan accumulator.Batch
	closed     chan struct{}
	closeOnce  sync.Once
	finishOnce sync.Once
}

func NewChannelSink(depth int) *ChannelSink {
	if depth < 0 {
		depth = 0
	}
	return &ChannelSink{
		ch:     make(chan accumulator.Batch, depth),
		closed: make(chan struct{}),
	}
}

// Batches is the receiving end of the processed-event channel.
func (s *ChannelSink) Batches() <-chan accumulator.Batch {
	return s.ch
}

// Close is called by the receiver when it will not read any more batches.
func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

func (s *ChannelSink) Deliver(ctx context.Context, batch accumulator.Batch) error {
	select {
	case <-s.closed:
		return ErrChannelClosed
	default:
	}
	select {
	case s.ch <- batch:
		return nil
	case <-s.closed:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Finish() {
	s.finishOnce.Do(func() {
		close(s.ch)
	})
}

// SinkFunc adapts a function to a Sink with a no-op Finish.
type SinkFunc func(ctx context.Context, batch accumulator.Batch) error

func (f SinkFunc) Deliver(ctx context.Context, batch accumulator.Batch) error {
	return f(ctx, batch)
}

func (f SinkFunc) Finish() {}
