package eventsource

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/dustin/go-humanize"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"go.uber.org/multierr"
)

var _ Source = (*RingbufSource)(nil)

// RingbufSource polls a BPF ring buffer map.
type RingbufSource struct {
	name   string
	reader *ringbuf.Reader
	bpfMap *ebpf.Map
	record ringbuf.Record
}

// NewRingbufSource wraps an already loaded ring buffer map. The source takes
// ownership of m.
func NewRingbufSource(name string, m *ebpf.Map) (*RingbufSource, error) {
	reader, err := ringbuf.NewReader(m)
	if err != nil {
		return nil, fmt.Errorf("creating ring buffer reader for %s: %w", name, err)
	}
	return &RingbufSource{name: name, reader: reader, bpfMap: m}, nil
}

// OpenPinnedRingbuf opens a ring buffer map pinned on bpffs by the probe
// loader. expectedSize is the configured ring buffer size in bytes; a
// mismatch is logged but not fatal.
func OpenPinnedRingbuf(path string, expectedSize int) (*RingbufSource, error) {
	m, err := ebpf.LoadPinnedMap(path, nil)
	if err != nil {
		return nil, fmt.Errorf("loading pinned map %s: %w", path, err)
	}
	if m.Type() != ebpf.RingBuf {
		_ = m.Close()
		return nil, fmt.Errorf("pinned map %s is a %s, not a ring buffer", path, m.Type())
	}

	size := m.MaxEntries()
	if expectedSize > 0 && uint64(size) != uint64(expectedSize) {
		logger.L().Warning("ring buffer size differs from configuration",
			helpers.String("path", path),
			helpers.String("size", humanize.IBytes(uint64(size))),
			helpers.String("configured", humanize.IBytes(uint64(expectedSize))))
	}

	src, err := NewRingbufSource(path, m)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	logger.L().Info("opened ring buffer",
		helpers.String("path", path),
		helpers.String("size", humanize.IBytes(uint64(size))))
	return src, nil
}

func (s *RingbufSource) Name() string {
	return s.name
}

// Poll returns a copy of the next sample. It must not be called
// concurrently.
func (s *RingbufSource) Poll(timeout time.Duration) ([]byte, error) {
	s.reader.SetDeadline(time.Now().Add(timeout))
	if err := s.reader.ReadInto(&s.record); err != nil {
		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			return nil, ErrTimeout
		case errors.Is(err, ringbuf.ErrClosed):
			return nil, ErrClosed
		default:
			return nil, fmt.Errorf("reading ring buffer %s: %w", s.name, err)
		}
	}
	return bytes.Clone(s.record.RawSample), nil
}

// Close interrupts a pending Poll and releases the map.
func (s *RingbufSource) Close() error {
	return multierr.Combine(s.reader.Close(), s.bpfMap.Close())
}
