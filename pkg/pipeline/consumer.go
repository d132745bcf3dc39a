package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/kernel-agent/pkg/accumulator"
	"k8s.io/utils/clock"
)

// consume owns the accumulator. A run that ends with ErrChannelClosed is
// restarted under backoff when auto recovery is on. Only consecutive failed
// runs count against the restart limit: a run that delivers a batch resets
// both the count and the backoff.
func (p *Pipeline) consume() error {
	acc := accumulator.New(p.cfg.EffectiveBatchSize(), p.cfg.EffectiveBatchTimeout(), p.clock)

	maxRestarts := 0
	if p.cfg.AutoRecovery {
		maxRestarts = p.cfg.MaxRestartAttempts
	}
	p.restartBackOff.Reset()

	var lastErr error
	restarts := 0
	for {
		delivered, err := p.consumeLoop(acc)
		if delivered > 0 {
			lastErr, restarts = nil, 0
			p.restartBackOff.Reset()
		}

		var permanent *backoff.PermanentError
		switch {
		case err == nil && lastErr != nil:
			return fmt.Errorf("processed event channel did not recover before shutdown: %w", lastErr)
		case err == nil:
			return nil
		case errors.As(err, &permanent):
			return permanent.Unwrap()
		case !errors.Is(err, ErrChannelClosed):
			return err
		}

		lastErr = err
		if restarts >= maxRestarts {
			return err
		}
		next := p.restartBackOff.NextBackOff()
		if next == backoff.Stop {
			return err
		}
		restarts++
		p.metrics.ReportPathRestart()
		logger.L().Warning("processed event channel closed, restarting consumer",
			helpers.Error(err), helpers.Int("attempt", restarts), helpers.String("in", next.String()))

		timer := p.clock.NewTimer(next)
		select {
		case <-timer.C():
		case <-p.hardCtx.Done():
			timer.Stop()
			return p.hardCtx.Err()
		}
	}
}

// consumeLoop returns nil once the admitted channel is closed and the final
// batch is delivered. A final batch that cannot be delivered is a permanent
// error since no later run could deliver it. delivered counts the batches the
// sink accepted during this run.
func (p *Pipeline) consumeLoop(acc *accumulator.Accumulator) (delivered int, err error) {
	var timer clock.Timer
	var timerC <-chan time.Time
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}
	defer stopTimer()

	for {
		select {
		case ev, ok := <-p.admitted:
			if !ok {
				stopTimer()
				batch, ok := acc.Flush()
				if !ok {
					return delivered, nil
				}
				if err := p.deliver(batch); err != nil {
					return delivered, backoff.Permanent(err)
				}
				return delivered + 1, nil
			}
			if batch, full := acc.Push(ev); full {
				stopTimer()
				if err := p.deliver(batch); err != nil {
					return delivered, err
				}
				delivered++
				continue
			}
			if timer == nil {
				timer = p.clock.NewTimer(acc.Timeout())
				timerC = timer.C()
			}
		case <-timerC:
			timer, timerC = nil, nil
			if batch, ok := acc.Flush(); ok {
				if err := p.deliver(batch); err != nil {
					return delivered, err
				}
				delivered++
			}
		case <-p.hardCtx.Done():
			p.metrics.ReportEventsDiscarded(acc.Discard())
			return delivered, p.hardCtx.Err()
		}
	}
}

// deliver hands a flushed batch to the sink. A batch that cannot be
// delivered is discarded and does not count as flushed.
func (p *Pipeline) deliver(batch accumulator.Batch) error {
	batch.RunID = p.runID
	if err := p.sink.Deliver(p.hardCtx, batch); err != nil {
		p.metrics.ReportEventsDiscarded(batch.Len())
		logger.L().Debug("discarding undelivered batch",
			helpers.Interface("seq", batch.Seq), helpers.Int("events", batch.Len()), helpers.Error(err))
		return err
	}
	p.metrics.ReportBatchFlushed(batch.Len())
	return nil
}
