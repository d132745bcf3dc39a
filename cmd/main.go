package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cilium/ebpf/rlimit"
	"github.com/dustin/go-humanize"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/kernel-agent/pkg/config"
	"github.com/kubescape/kernel-agent/pkg/eventsource"
	"github.com/kubescape/kernel-agent/pkg/exporters"
	"github.com/kubescape/kernel-agent/pkg/metricsmanager"
	metricprometheus "github.com/kubescape/kernel-agent/pkg/metricsmanager/prometheus"
	"github.com/kubescape/kernel-agent/pkg/pipeline"
	"github.com/kubescape/kernel-agent/pkg/utils"
	"go.uber.org/multierr"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup runs before exit.
func run() int {
	ctx := context.Background()

	configDir := config.DefaultConfigDir
	if envPath := os.Getenv(config.ConfigDirEnvVar); envPath != "" {
		configDir = envPath
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		logger.L().Ctx(ctx).Fatal("load config error", helpers.Error(err))
	}

	hostname, err := os.Hostname()
	if err != nil {
		logger.L().Warning("failed to resolve hostname", helpers.Error(err))
	}

	// to enable otel, set OTEL_COLLECTOR_SVC=otel-collector:4317
	if otelHost, present := os.LookupEnv("OTEL_COLLECTOR_SVC"); present {
		ctx = logger.InitOtel("kernel-agent",
			os.Getenv("RELEASE"),
			"",
			hostname,
			url.URL{Host: otelHost})
		defer logger.ShutdownOtel(ctx)
	}

	if err := rlimit.RemoveMemlock(); err != nil {
		logger.L().Ctx(ctx).Error("error removing memlock limit", helpers.Error(err))
		return utils.ExitCodeError
	}

	if _, present := os.LookupEnv("ENABLE_PROFILER"); present {
		logger.L().Info("starting profiler on port 6060")
		go func() {
			server := &http.Server{Addr: "localhost:6060", ReadHeaderTimeout: 5 * time.Second}
			if err := server.ListenAndServe(); err != nil {
				logger.L().Error("profiler stopped", helpers.Error(err))
			}
		}()
	}

	if len(cfg.RingBufferPins) == 0 {
		logger.L().Ctx(ctx).Error(utils.ErrNoEventSource, helpers.String("configDir", configDir))
		return utils.ExitCodeNoEventSource
	}

	logger.L().Info("opening ring buffers",
		helpers.Int("count", len(cfg.RingBufferPins)),
		helpers.String("ringBufferSize", humanize.IBytes(uint64(cfg.RingBufferSize))))
	sources := make([]eventsource.Source, 0, len(cfg.RingBufferPins))
	for _, pin := range cfg.RingBufferPins {
		src, err := eventsource.OpenPinnedRingbuf(pin, cfg.RingBufferSize)
		if err != nil {
			var closeErr error
			for _, opened := range sources {
				closeErr = multierr.Append(closeErr, opened.Close())
			}
			logger.L().Ctx(ctx).Error("error opening event source", helpers.Error(multierr.Append(err, closeErr)))
			return utils.ExitCodeNoEventSource
		}
		sources = append(sources, src)
	}

	exporterBus, err := exporters.InitExporters(cfg.Exporters, hostname)
	if err != nil {
		logger.L().Ctx(ctx).Fatal("error creating exporters", helpers.Error(err))
	}

	registry := metricsmanager.NewRegistry()
	if cfg.EnablePrometheusExporter {
		prometheusExporter := metricprometheus.NewPrometheusMetric(registry, cfg.MetricsPort)
		prometheusExporter.Start()
		defer func() {
			if err := prometheusExporter.Destroy(context.Background()); err != nil {
				logger.L().Warning("error stopping prometheus exporter", helpers.Error(err))
			}
		}()
	}

	sink := pipeline.NewChannelSink(cfg.ProcessedChannelDepth)
	exported := make(chan struct{})
	go func() {
		defer close(exported)
		for batch := range sink.Batches() {
			exporterBus.SendBatch(batch)
		}
	}()

	p, err := pipeline.StartWithOptions(ctx, cfg, pipeline.Options{Metrics: registry}, sink, sources...)
	if err != nil {
		logger.L().Ctx(ctx).Error("error starting the pipeline", helpers.Error(err))
		return utils.ExitCodeError
	}

	// Wait for shutdown signal
	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-signalCtx.Done():
		logger.L().Info("received shutdown signal")
	case <-p.Done():
	}

	outcome, err := p.Shutdown(context.Background())
	<-exported
	if closeErr := exporterBus.Close(); closeErr != nil {
		logger.L().Warning("error closing exporters", helpers.Error(closeErr))
	}

	snapshot := p.Metrics()
	logger.L().Info("pipeline totals",
		helpers.String("outcome", outcome.String()),
		helpers.Interface("metrics", snapshot))

	switch outcome {
	case pipeline.OutcomeClean:
		return utils.ExitCodeSuccess
	case pipeline.OutcomeForced:
		logger.L().Ctx(ctx).Error("pipeline did not drain in time", helpers.Error(err))
		return utils.ExitCodeShutdownTimeout
	default:
		logger.L().Ctx(ctx).Error("pipeline failed", helpers.Error(err))
		return utils.ExitCodePipelineFailed
	}
}
