package eventsource

import (
	"errors"
	"time"
)

var (
	// ErrTimeout is returned by Poll when no record arrived in time.
	ErrTimeout = errors.New("event source poll timed out")
	// ErrClosed is returned by Poll once the source is closed and drained.
	ErrClosed = errors.New("event source closed")
)

// Source yields raw kernel records. Poll blocks for at most timeout. The
// returned slice is owned by the caller.
type Source interface {
	Poll(timeout time.Duration) ([]byte, error)
	Close() error
}
