package metricsmanager

// MetricsManager is an interface for reporting pipeline metrics
type MetricsManager interface {
	ReportEventReceived()
	ReportEventParsed()
	ReportParseError(length int)
	ReportMalformedText()
	ReportRateLimited()
	ReportEventForwarded()
	ReportBatchFlushed(size int)
	ReportPathRestart()
	ReportEventsDiscarded(count int)
	Snapshot() Snapshot
}

// Snapshot is a point-in-time copy of the pipeline counters.
type Snapshot struct {
	EventsReceived    uint64  `json:"events_received"`
	EventsParsed      uint64  `json:"events_parsed"`
	ParseErrors       uint64  `json:"parse_errors"`
	EventsRateLimited uint64  `json:"events_rate_limited"`
	EventsForwarded   uint64  `json:"events_forwarded"`
	BatchesFlushed    uint64  `json:"batches_flushed"`
	AverageBatchSize  float64 `json:"average_batch_size"`
	BatchedEvents     uint64  `json:"batched_events"`
	MalformedText     uint64  `json:"malformed_text"`
	PathRestarts      uint64  `json:"path_restarts"`
	EventsDiscarded   uint64  `json:"events_discarded"`
}

func averageBatchSize(batched, flushed uint64) float64 {
	if flushed == 0 {
		return 0
	}
	return float64(batched) / float64(flushed)
}
