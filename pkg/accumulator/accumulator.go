package accumulator

import (
	"time"

	"github.com/kubescape/kernel-agent/pkg/ebpf/events"
	"k8s.io/utils/clock"
)

// Batch is an ordered group of admitted events flushed together.
type Batch struct {
	RunID     string         `json:"run_id,omitempty"`
	Seq       uint64         `json:"seq"`
	Events    []events.Event `json:"events"`
	OpenedAt  time.Time      `json:"opened_at"`
	FlushedAt time.Time      `json:"flushed_at"`
}

func (b Batch) Len() int {
	return len(b.Events)
}

// Accumulator groups events into batches that close when they reach size
// events or when timeout has elapsed since their first event. It is not safe
// for concurrent use; a single consumer owns it.
type Accumulator struct {
	clock   clock.PassiveClock
	size    int
	timeout time.Duration
	seq     uint64

	events   []events.Event
	openedAt time.Time
}

func New(size int, timeout time.Duration, clk clock.PassiveClock) *Accumulator {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if size < 1 {
		size = 1
	}
	return &Accumulator{
		clock:   clk,
		size:    size,
		timeout: timeout,
		events:  make([]events.Event, 0, size),
	}
}

// Push appends ev to the open batch and returns the batch if it is now full.
func (a *Accumulator) Push(ev events.Event) (Batch, bool) {
	if len(a.events) == 0 {
		a.openedAt = a.clock.Now()
	}
	a.events = append(a.events, ev)
	if len(a.events) >= a.size {
		return a.take(), true
	}
	return Batch{}, false
}

// Flush returns the open batch if it holds any events.
func (a *Accumulator) Flush() (Batch, bool) {
	if len(a.events) == 0 {
		return Batch{}, false
	}
	return a.take(), true
}

// Deadline is the time at which the open batch must be flushed. It reports
// false while the accumulator is empty.
func (a *Accumulator) Deadline() (time.Time, bool) {
	if len(a.events) == 0 {
		return time.Time{}, false
	}
	return a.openedAt.Add(a.timeout), true
}

// Expired reports whether a non-empty batch has reached its deadline.
func (a *Accumulator) Expired() bool {
	deadline, ok := a.Deadline()
	return ok && !a.clock.Now().Before(deadline)
}

// Discard drops the open batch and returns how many events it held.
func (a *Accumulator) Discard() int {
	n := len(a.events)
	a.events = a.events[:0]
	clear(a.events[:cap(a.events)])
	return n
}

func (a *Accumulator) Len() int {
	return len(a.events)
}

func (a *Accumulator) Size() int {
	return a.size
}

func (a *Accumulator) Timeout() time.Duration {
	return a.timeout
}

func (a *Accumulator) take() Batch {
	a.seq++
	b := Batch{
		Seq:       a.seq,
		Events:    a.events,
		OpenedAt:  a.openedAt,
		FlushedAt: a.clock.Now(),
	}
	a.events = make([]events.Event, 0, a.size)
	return b
}
