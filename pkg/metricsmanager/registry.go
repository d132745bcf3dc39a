package metricsmanager

import "sync/atomic"

var _ MetricsManager = (*Registry)(nil)

// Registry keeps one shared atomic counter per metric. It is safe for
// concurrent use by any number of producer paths.
type Registry struct {
	eventsReceived    atomic.Uint64
	eventsParsed      atomic.Uint64
	parseErrors       atomic.Uint64
	eventsRateLimited atomic.Uint64
	eventsForwarded   atomic.Uint64
	batchesFlushed    atomic.Uint64
	batchedEvents     atomic.Uint64
	malformedText     atomic.Uint64
	pathRestarts      atomic.Uint64
	eventsDiscarded   atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) ReportEventReceived() {
	r.eventsReceived.Add(1)
}

func (r *Registry) ReportEventParsed() {
	r.eventsParsed.Add(1)
}

func (r *Registry) ReportParseError(_ int) {
	r.parseErrors.Add(1)
}

func (r *Registry) ReportMalformedText() {
	r.malformedText.Add(1)
}

func (r *Registry) ReportRateLimited() {
	r.eventsRateLimited.Add(1)
}

func (r *Registry) ReportEventForwarded() {
	r.eventsForwarded.Add(1)
}

func (r *Registry) ReportBatchFlushed(size int) {
	r.batchedEvents.Add(uint64(size))
	r.batchesFlushed.Add(1)
}

func (r *Registry) ReportPathRestart() {
	r.pathRestarts.Add(1)
}

func (r *Registry) ReportEventsDiscarded(count int) {
	if count > 0 {
		r.eventsDiscarded.Add(uint64(count))
	}
}

// Snapshot loads every counter once. Counters are read in pipeline order,
// downstream first, so a snapshot taken while events are flowing never shows
// a stage ahead of the stage feeding it.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		EventsDiscarded: r.eventsDiscarded.Load(),
		PathRestarts:    r.pathRestarts.Load(),
		BatchesFlushed:  r.batchesFlushed.Load(),
	}
	s.BatchedEvents = r.batchedEvents.Load()
	s.EventsForwarded = r.eventsForwarded.Load()
	s.EventsRateLimited = r.eventsRateLimited.Load()
	s.MalformedText = r.malformedText.Load()
	s.EventsParsed = r.eventsParsed.Load()
	s.ParseErrors = r.parseErrors.Load()
	s.EventsReceived = r.eventsReceived.Load()
	s.AverageBatchSize = averageBatchSize(s.BatchedEvents, s.BatchesFlushed)
	return s
}
