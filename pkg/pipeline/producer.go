package pipeline

import (
	"errors"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/kernel-agent/pkg/ebpf/events"
	"github.com/kubescape/kernel-agent/pkg/eventsource"
)

// path is one producer path: a source, its raw queue, and the two tasks
// moving records through it.
type path struct {
	id     int
	source eventsource.Source
	queue  *eventsource.RawQueue
}

// feed polls the source into the raw queue until producers are stopped or
// the source is exhausted. It owns the source and closes it on exit.
func (p *Pipeline) feed(pt *path) {
	defer p.producers.Done()
	defer pt.queue.Close()
	defer func() {
		if err := pt.source.Close(); err != nil {
			logger.L().Warning("closing event source", helpers.Int("path", pt.id), helpers.Error(err))
		}
	}()

	pollTimeout := p.cfg.EffectivePollTimeout()
	for p.producerCtx.Err() == nil {
		raw, err := pt.source.Poll(pollTimeout)
		switch {
		case err == nil:
			p.metrics.ReportEventReceived()
			if err := pt.queue.Push(raw); err != nil {
				// the queue is only closed by this task
				logger.L().Error("raw queue closed while feeding", helpers.Int("path", pt.id))
				return
			}
		case errors.Is(err, eventsource.ErrTimeout):
		case errors.Is(err, eventsource.ErrClosed):
			logger.L().Info("event source closed", helpers.Int("path", pt.id))
			return
		default:
			logger.L().Warning("polling event source failed, retrying", helpers.Int("path", pt.id), helpers.Error(err))
			select {
			case <-p.producerCtx.Done():
			case <-p.clock.After(pollTimeout):
			}
		}
	}
}

// process runs parse, admit and forward for every raw record of the path, in
// arrival order. After the feeder stops it drains what is left in the queue.
func (p *Pipeline) process(pt *path) {
	defer p.producers.Done()

	for {
		raw, err := pt.queue.Pop(p.hardCtx)
		if err != nil {
			if left := pt.queue.Len(); left > 0 {
				p.metrics.ReportEventsDiscarded(left)
			}
			return
		}

		ev, err := events.Parse(raw)
		if err != nil {
			p.metrics.ReportParseError(len(raw))
			logger.L().Debug("dropping unparsable record", helpers.Int("path", pt.id), helpers.Error(err))
			continue
		}
		p.metrics.ReportEventParsed()
		if ev.HasMalformedText() {
			p.metrics.ReportMalformedText()
		}

		if !p.admission.TryAdmit() {
			p.metrics.ReportRateLimited()
			continue
		}
		p.metrics.ReportEventForwarded()

		select {
		case p.admitted <- ev:
		case <-p.hardCtx.Done():
			p.metrics.ReportEventsDiscarded(1 + pt.queue.Len())
			return
		}
	}
}
