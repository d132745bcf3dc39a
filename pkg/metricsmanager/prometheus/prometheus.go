package metricsmanager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/kernel-agent/pkg/metricsmanager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kernel_agent"

var _ prometheus.Collector = (*PrometheusMetric)(nil)

type counterDesc struct {
	desc  *prometheus.Desc
	value func(s metricsmanager.Snapshot) uint64
}

// PrometheusMetric exposes pipeline snapshots as Prometheus series. Values
// are read from the source at scrape time.
type PrometheusMetric struct {
	source   metricsmanager.Snapshotter
	registry *prometheus.Registry
	counters []counterDesc
	avgBatch *prometheus.Desc
	server   *http.Server
}

func newCounter(name, help string, value func(s metricsmanager.Snapshot) uint64) counterDesc {
	return counterDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		value: value,
	}
}

func NewPrometheusMetric(source metricsmanager.Snapshotter, port int) *PrometheusMetric {
	p := &PrometheusMetric{
		source:   source,
		registry: prometheus.NewRegistry(),
		counters: []counterDesc{
			newCounter("events_received_total", "The total number of raw records received from the event sources",
				func(s metricsmanager.Snapshot) uint64 { return s.EventsReceived }),
			newCounter("events_parsed_total", "The total number of records decoded into events",
				func(s metricsmanager.Snapshot) uint64 { return s.EventsParsed }),
			newCounter("parse_errors_total", "The total number of records that could not be decoded",
				func(s metricsmanager.Snapshot) uint64 { return s.ParseErrors }),
			newCounter("malformed_text_total", "The total number of events decoded with lossy text substitution",
				func(s metricsmanager.Snapshot) uint64 { return s.MalformedText }),
			newCounter("events_rate_limited_total", "The total number of events dropped by admission control",
				func(s metricsmanager.Snapshot) uint64 { return s.EventsRateLimited }),
			newCounter("events_forwarded_total", "The total number of events forwarded to batching",
				func(s metricsmanager.Snapshot) uint64 { return s.EventsForwarded }),
			newCounter("batches_flushed_total", "The total number of batches delivered",
				func(s metricsmanager.Snapshot) uint64 { return s.BatchesFlushed }),
			newCounter("path_restarts_total", "The total number of consumer restarts after a closed output",
				func(s metricsmanager.Snapshot) uint64 { return s.PathRestarts }),
			newCounter("events_discarded_total", "The total number of admitted events discarded",
				func(s metricsmanager.Snapshot) uint64 { return s.EventsDiscarded }),
		},
		avgBatch: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "average_batch_size"),
			"The average number of events per delivered batch", nil, nil),
	}
	p.registry.MustRegister(p)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	p.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return p
}

func (p *PrometheusMetric) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range p.counters {
		ch <- c.desc
	}
	ch <- p.avgBatch
}

func (p *PrometheusMetric) Collect(ch chan<- prometheus.Metric) {
	snap := p.source.Snapshot()
	for _, c := range p.counters {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.value(snap)))
	}
	ch <- prometheus.MustNewConstMetric(p.avgBatch, prometheus.GaugeValue, snap.AverageBatchSize)
}

// Registry returns the registry the collector is registered with.
func (p *PrometheusMetric) Registry() *prometheus.Registry {
	return p.registry
}

// Start serves /metrics in the background.
func (p *PrometheusMetric) Start() {
	go func() {
		logger.L().Info("starting prometheus exporter", helpers.String("addr", p.server.Addr))
		if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Error("prometheus exporter stopped", helpers.Error(err))
		}
	}()
}

func (p *PrometheusMetric) Destroy(ctx context.Context) error {
	p.registry.Unregister(p)
	return p.server.Shutdown(ctx)
}
