package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/kernel-agent/pkg/admission"
	"github.com/kubescape/kernel-agent/pkg/config"
	"github.com/kubescape/kernel-agent/pkg/ebpf/events"
	"github.com/kubescape/kernel-agent/pkg/eventsource"
	"github.com/kubescape/kernel-agent/pkg/metricsmanager"
	"github.com/panjf2000/ants/v2"
	"k8s.io/utils/clock"
)

// ErrShutdownTimeout is returned by Shutdown when the drain did not finish in
// time and the open batch was discarded.
var ErrShutdownTimeout = errors.New("pipeline shutdown timed out")

// Outcome is how a pipeline ended.
type Outcome int

const (
	OutcomeRunning Outcome = iota
	OutcomeClean
	OutcomeForced
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeClean:
		return "clean"
	case OutcomeForced:
		return "forced"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Options overrides the pipeline's collaborators. Zero values select the
// defaults.
type Options struct {
	Clock          clock.WithTicker
	Metrics        metricsmanager.MetricsManager
	Pool           *ants.Pool
	RestartBackOff backoff.BackOff
}

// Pipeline is a running ingestion pipeline.
type Pipeline struct {
	cfg            config.Config
	runID          string
	clock          clock.WithTicker
	metrics        metricsmanager.MetricsManager
	admission      *admission.Controller
	reporter       *metricsmanager.Reporter
	sink           Sink
	restartBackOff backoff.BackOff
	pool           *ants.Pool
	ownPool        bool

	paths    []*path
	admitted chan events.Event

	// producerCtx stops pulling new records; hardCtx aborts everything.
	producerCtx     context.Context
	stopProducers   context.CancelFunc
	hardCtx         context.Context
	abort           context.CancelFunc
	reporterCtx     context.Context
	stopReporter    context.CancelFunc
	producers       sync.WaitGroup
	consumerResult  chan error
	reporterDone    chan struct{}
	done            chan struct{}
	shutdownOnce    sync.Once
	shutdownOutcome Outcome
	shutdownErr     error

	mu      sync.Mutex
	outcome Outcome
	err     error
	forced  bool
}

// Start runs a pipeline with one producer path per source. The pipeline
// takes ownership of the sources. Cancelling ctx starts a clean shutdown
// bounded by the configured shutdown timeout.
func Start(ctx context.Context, cfg config.Config, sink Sink, sources ...eventsource.Source) (*Pipeline, error) {
	return StartWithOptions(ctx, cfg, Options{}, sink, sources...)
}

func StartWithOptions(ctx context.Context, cfg config.Config, opts Options, sink Sink, sources ...eventsource.Source) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if sink == nil {
		return nil, errors.New("pipeline sink is required")
	}

	p := &Pipeline{
		cfg:            cfg,
		runID:          uuid.NewString(),
		clock:          opts.Clock,
		metrics:        opts.Metrics,
		sink:           sink,
		restartBackOff: opts.RestartBackOff,
		pool:           opts.Pool,
		admitted:       make(chan events.Event, cfg.ChannelDepth),
		consumerResult: make(chan error, 1),
		reporterDone:   make(chan struct{}),
		done:           make(chan struct{}),
	}
	if p.clock == nil {
		p.clock = clock.RealClock{}
	}
	if p.metrics == nil {
		p.metrics = metricsmanager.NewRegistry()
	}
	if p.restartBackOff == nil {
		p.restartBackOff = backoff.NewExponentialBackOff()
	}
	p.admission = admission.New(cfg.MaxEventsPerSec, cfg.EnableBackpressure, p.clock)
	p.reporter = metricsmanager.NewReporter(p.metrics, cfg.MetricsInterval(), p.clock)

	for i, src := range sources {
		p.paths = append(p.paths, &path{id: i, source: src, queue: eventsource.NewRawQueue()})
	}

	// feeder and processor per path, consumer, reporter, supervisor, watcher
	tasks := 2*len(p.paths) + 4
	if p.pool == nil {
		pool, err := ants.NewPool(tasks)
		if err != nil {
			return nil, fmt.Errorf("creating worker pool: %w", err)
		}
		p.pool, p.ownPool = pool, true
	} else if p.pool.Cap() > 0 && p.pool.Free() < tasks {
		return nil, fmt.Errorf("worker pool has %d free workers, pipeline needs %d", p.pool.Free(), tasks)
	}

	base := context.WithoutCancel(ctx)
	p.hardCtx, p.abort = context.WithCancel(base)
	p.producerCtx, p.stopProducers = context.WithCancel(p.hardCtx)
	p.reporterCtx, p.stopReporter = context.WithCancel(base)

	if err := p.submitAll(ctx); err != nil {
		p.abort()
		p.stopReporter()
		return nil, err
	}

	logger.L().Info("pipeline started",
		helpers.String("runID", p.runID),
		helpers.Int("paths", len(p.paths)),
		helpers.Int("batchSize", cfg.EffectiveBatchSize()),
		helpers.String("batchTimeout", cfg.EffectiveBatchTimeout().String()),
		helpers.Int("maxEventsPerSec", cfg.MaxEventsPerSec),
		helpers.Interface("backpressure", cfg.EnableBackpressure),
		helpers.Interface("autoRecovery", cfg.AutoRecovery))
	return p, nil
}

func (p *Pipeline) submitAll(ctx context.Context) error {
	p.producers.Add(2 * len(p.paths))
	submitted := 0
	for _, pt := range p.paths {
		if err := p.pool.Submit(func() { p.feed(pt) }); err != nil {
			p.producers.Add(-(2*len(p.paths) - submitted))
			return fmt.Errorf("starting feeder for path %d: %w", pt.id, err)
		}
		submitted++
		if err := p.pool.Submit(func() { p.process(pt) }); err != nil {
			p.producers.Add(-(2*len(p.paths) - submitted))
			return fmt.Errorf("starting processor for path %d: %w", pt.id, err)
		}
		submitted++
	}

	tasks := []func(){
		func() {
			err := p.consume()
			if err != nil && !errors.Is(err, context.Canceled) {
				p.fail(err)
			}
			p.consumerResult <- err
		},
		func() {
			defer close(p.reporterDone)
			p.reporter.Run(p.reporterCtx)
		},
		p.supervise,
		func() {
			select {
			case <-ctx.Done():
				_, _ = p.Shutdown(context.Background())
			case <-p.done:
			}
		},
	}
	for _, task := range tasks {
		if err := p.pool.Submit(task); err != nil {
			return fmt.Errorf("starting pipeline task: %w", err)
		}
	}
	return nil
}

// supervise waits for every task, settles the outcome and closes done.
func (p *Pipeline) supervise() {
	p.producers.Wait()
	close(p.admitted)
	consumerErr := <-p.consumerResult

	// admitted events left behind by a consumer that stopped early
	left := 0
	for range p.admitted {
		left++
	}
	p.metrics.ReportEventsDiscarded(left)
	p.sink.Finish()

	p.mu.Lock()
	switch {
	case p.err != nil:
		p.outcome = OutcomeFailed
	case consumerErr == nil:
		p.outcome = OutcomeClean
	case p.forced:
		p.outcome = OutcomeForced
		p.err = ErrShutdownTimeout
	default:
		p.outcome = OutcomeFailed
		p.err = consumerErr
	}
	outcome, err := p.outcome, p.err
	p.mu.Unlock()

	p.stopReporter()
	<-p.reporterDone
	p.abort()

	if err != nil {
		logger.L().Error("pipeline stopped", helpers.String("runID", p.runID),
			helpers.String("outcome", outcome.String()), helpers.Error(err))
	} else {
		logger.L().Info("pipeline stopped", helpers.String("runID", p.runID),
			helpers.String("outcome", outcome.String()))
	}
	if p.ownPool {
		p.pool.Release()
	}
	close(p.done)
}

// fail records a fatal error and stops every path.
func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = fmt.Errorf("pipeline failed: %w", err)
	}
	p.mu.Unlock()
	logger.L().Error("unrecoverable pipeline failure, stopping all paths", helpers.Error(err))
	p.abort()
}

// Shutdown stops the producers and waits for every admitted event to be
// delivered. If ctx (or the configured shutdown timeout, when ctx has no
// deadline) expires first, the open batch is discarded and the outcome is
// OutcomeForced. Later calls return the first call's result.
func (p *Pipeline) Shutdown(ctx context.Context) (Outcome, error) {
	p.shutdownOnce.Do(func() {
		p.shutdownOutcome, p.shutdownErr = p.shutdown(ctx)
	})
	return p.shutdownOutcome, p.shutdownErr
}

func (p *Pipeline) shutdown(ctx context.Context) (Outcome, error) {
	if _, ok := ctx.Deadline(); !ok && p.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ShutdownTimeout)
		defer cancel()
	}

	logger.L().Info("shutting down pipeline", helpers.String("runID", p.runID))
	p.stopProducers()

	select {
	case <-p.done:
	case <-ctx.Done():
		p.mu.Lock()
		p.forced = true
		p.mu.Unlock()
		logger.L().Warning("pipeline drain timed out, forcing stop", helpers.String("runID", p.runID))
		p.abort()
		<-p.done
	}
	return p.Outcome(), p.Err()
}

// Done is closed once the pipeline has fully stopped.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Err is the terminal error: nil after a clean shutdown, ErrShutdownTimeout
// after a forced one, or the fatal error that stopped the pipeline.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Pipeline) Outcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

func (p *Pipeline) Metrics() metricsmanager.Snapshot {
	return p.metrics.Snapshot()
}

// Subscribe returns a channel receiving the periodic metrics snapshots.
func (p *Pipeline) Subscribe() <-chan metricsmanager.Snapshot {
	return p.reporter.Subscribe()
}

func (p *Pipeline) RunID() string {
	return p.runID
}
