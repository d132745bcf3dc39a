package metricsmanager

import (
	"context"
	"sync"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"k8s.io/utils/clock"
)

// Snapshotter is anything that can produce a metrics snapshot.
type Snapshotter interface {
	Snapshot() Snapshot
}

// Reporter emits a snapshot every interval to its subscribers and to the
// log.
type Reporter struct {
	source   Snapshotter
	interval time.Duration
	clock    clock.WithTicker

	mu          sync.Mutex
	subscribers []chan Snapshot
	closed      bool
}

func NewReporter(source Snapshotter, interval time.Duration, clk clock.WithTicker) *Reporter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Reporter{
		source:   source,
		interval: interval,
		clock:    clk,
	}
}

// Subscribe returns a channel receiving every emitted snapshot. A subscriber
// that falls behind only sees the latest snapshot. The channel is closed when
// the reporter stops.
func (r *Reporter) Subscribe() <-chan Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if r.closed {
		close(ch)
		return ch
	}
	r.subscribers = append(r.subscribers, ch)
	return ch
}

// Run emits snapshots until ctx is cancelled, then emits a final one.
func (r *Reporter) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.close()

	for {
		select {
		case <-ctx.Done():
			r.emit(true)
			return
		case <-ticker.C():
			r.emit(false)
		}
	}
}

func (r *Reporter) emit(final bool) {
	snap := r.source.Snapshot()

	msg := "pipeline metrics"
	if final {
		msg = "final pipeline metrics"
	}
	logger.L().Info(msg,
		helpers.Interface("received", snap.EventsReceived),
		helpers.Interface("parsed", snap.EventsParsed),
		helpers.Interface("parseErrors", snap.ParseErrors),
		helpers.Interface("rateLimited", snap.EventsRateLimited),
		helpers.Interface("forwarded", snap.EventsForwarded),
		helpers.Interface("batches", snap.BatchesFlushed),
		helpers.Interface("avgBatchSize", snap.AverageBatchSize))

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subscribers {
		select {
		case ch <- snap:
		default:
			// replace the stale snapshot
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (r *Reporter) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = nil
}
