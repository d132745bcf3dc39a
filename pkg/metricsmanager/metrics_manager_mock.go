package metricsmanager

import (
	"sync/atomic"

	"github.com/goradd/maps"
)

var _ MetricsManager = (*MetricsMock)(nil)

type MetricsMock struct {
	ReceivedCounter    atomic.Int64
	ParsedCounter      atomic.Int64
	MalformedCounter   atomic.Int64
	RateLimitedCounter atomic.Int64
	ForwardedCounter   atomic.Int64
	RestartCounter     atomic.Int64
	DiscardedCounter   atomic.Int64
	ParseErrorCounter  maps.SafeMap[int, int] // key: record length
	BatchSizeCounter   maps.SafeMap[int, int] // key: batch size
}

func NewMetricsMock() *MetricsMock {
	return &MetricsMock{}
}

func (m *MetricsMock) Destroy() {
	m.ReceivedCounter.Store(0)
	m.ParsedCounter.Store(0)
	m.MalformedCounter.Store(0)
	m.RateLimitedCounter.Store(0)
	m.ForwardedCounter.Store(0)
	m.RestartCounter.Store(0)
	m.DiscardedCounter.Store(0)
	m.ParseErrorCounter.Clear()
	m.BatchSizeCounter.Clear()
}

func (m *MetricsMock) ReportEventReceived() {
	m.ReceivedCounter.Add(1)
}

func (m *MetricsMock) ReportEventParsed() {
	m.ParsedCounter.Add(1)
}

func (m *MetricsMock) ReportParseError(length int) {
	m.ParseErrorCounter.Set(length, m.ParseErrorCounter.Get(length)+1)
}

func (m *MetricsMock) ReportMalformedText() {
	m.MalformedCounter.Add(1)
}

func (m *MetricsMock) ReportRateLimited() {
	m.RateLimitedCounter.Add(1)
}

func (m *MetricsMock) ReportEventForwarded() {
	m.ForwardedCounter.Add(1)
}

func (m *MetricsMock) ReportBatchFlushed(size int) {
	m.BatchSizeCounter.Set(size, m.BatchSizeCounter.Get(size)+1)
}

func (m *MetricsMock) ReportPathRestart() {
	m.RestartCounter.Add(1)
}

func (m *MetricsMock) ReportEventsDiscarded(count int) {
	m.DiscardedCounter.Add(int64(count))
}

func (m *MetricsMock) Snapshot() Snapshot {
	s := Snapshot{
		EventsReceived:    uint64(m.ReceivedCounter.Load()),
		EventsParsed:      uint64(m.ParsedCounter.Load()),
		MalformedText:     uint64(m.MalformedCounter.Load()),
		EventsRateLimited: uint64(m.RateLimitedCounter.Load()),
		EventsForwarded:   uint64(m.ForwardedCounter.Load()),
		PathRestarts:      uint64(m.RestartCounter.Load()),
		EventsDiscarded:   uint64(m.DiscardedCounter.Load()),
	}
	m.ParseErrorCounter.Range(func(_ int, count int) bool {
		s.ParseErrors += uint64(count)
		return true
	})
	m.BatchSizeCounter.Range(func(size int, count int) bool {
		s.BatchesFlushed += uint64(count)
		s.BatchedEvents += uint64(size * count)
		return true
	})
	s.AverageBatchSize = averageBatchSize(s.BatchedEvents, s.BatchesFlushed)
	return s
}
