package exporters

import (
	"os"

	"github.com/kubescape/kernel-agent/pkg/accumulator"
	log "github.com/sirupsen/logrus"
)

type StdoutExporter struct {
	logger *log.Logger
}

func InitStdoutExporter(useStdout *bool) *StdoutExporter {
	if useStdout == nil {
		useStdout = new(bool)
		*useStdout = os.Getenv("STDOUT_ENABLED") != "false"
	}
	if !*useStdout {
		return nil
	}

	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	return &StdoutExporter{
		logger: logger,
	}
}

func (exporter *StdoutExporter) SendBatch(batch accumulator.Batch) {
	for i, ev := range batch.Events {
		entry := exporter.logger.WithFields(log.Fields{
			"runID": batch.RunID,
			"batch": batch.Seq,
			"index": i,
			"event": ev,
		})
		if isSuspicious(ev) {
			entry.Warn(ev.Kind().String())
		} else {
			entry.Info(ev.Kind().String())
		}
	}
}
