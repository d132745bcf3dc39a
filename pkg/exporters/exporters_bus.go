package exporters

import (
	"errors"
	"io"
	"os"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/kernel-agent/pkg/accumulator"
	"go.uber.org/multierr"
)

var ErrNoExporters = errors.New("no exporters were initialized")

type ExportersConfig struct {
	StdoutExporter     *bool               `mapstructure:"stdout_exporter"`
	HTTPExporterConfig *HTTPExporterConfig `mapstructure:"http_exporter_config"`
	SyslogExporter     string              `mapstructure:"syslog_exporter_url"`
	CsvExporterPath    string              `mapstructure:"csv_exporter_path"`
}

// ExporterBus is the single point of contact for all exporters; the
// pipeline consumer hands every delivered batch to it.
type ExporterBus struct {
	// exporters is a list of all exporters.
	exporters []Exporter
}

// InitExporters initializes all exporters.
func InitExporters(exportersConfig ExportersConfig, host string) (*ExporterBus, error) {
	var exporters []Exporter
	if stdoutExp := InitStdoutExporter(exportersConfig.StdoutExporter); stdoutExp != nil {
		exporters = append(exporters, stdoutExp)
	}
	if syslogExp := InitSyslogExporter(exportersConfig.SyslogExporter); syslogExp != nil {
		exporters = append(exporters, syslogExp)
	}
	if csvExp := InitCsvExporter(exportersConfig.CsvExporterPath); csvExp != nil {
		exporters = append(exporters, csvExp)
	}
	if exportersConfig.HTTPExporterConfig == nil {
		if httpURL := os.Getenv("HTTP_ENDPOINT_URL"); httpURL != "" {
			exportersConfig.HTTPExporterConfig = &HTTPExporterConfig{URL: httpURL}
		}
	}
	if exportersConfig.HTTPExporterConfig != nil {
		httpExp, err := InitHTTPExporter(*exportersConfig.HTTPExporterConfig, host)
		if err != nil {
			logger.L().Error("failed to initialize http exporter", helpers.Error(err))
		} else {
			exporters = append(exporters, httpExp)
		}
	}

	if len(exporters) == 0 {
		return nil, ErrNoExporters
	}
	logger.L().Info("exporters initialized", helpers.Int("count", len(exporters)))

	return NewExporterBus(exporters...), nil
}

func NewExporterBus(exporters ...Exporter) *ExporterBus {
	return &ExporterBus{exporters: exporters}
}

func (e *ExporterBus) SendBatch(batch accumulator.Batch) {
	for _, exporter := range e.exporters {
		exporter.SendBatch(batch)
	}
}

// Close releases exporters holding connections.
func (e *ExporterBus) Close() error {
	var err error
	for _, exporter := range e.exporters {
		if closer, ok := exporter.(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
	}
	return err
}
