package exporters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/kernel-agent/pkg/accumulator"
	"github.com/kubescape/kernel-agent/pkg/ebpf/events"
	"k8s.io/utils/clock"
)

type HTTPExporterConfig struct {
	// URL is the URL to send the HTTP request to
	URL string `json:"url" mapstructure:"url"`
	// Headers is a map of headers to send in the HTTP request
	Headers map[string]string `json:"headers" mapstructure:"headers"`
	// Timeout is the timeout for the HTTP request
	TimeoutSeconds int `json:"timeoutSeconds" mapstructure:"timeout_seconds"`
	// Method is the HTTP method to use for the HTTP request
	Method              string `json:"method" mapstructure:"method"`
	MaxBatchesPerMinute int    `json:"maxBatchesPerMinute" mapstructure:"max_batches_per_minute"`
}

type HTTPExporter struct {
	config     HTTPExporterConfig
	Host       string `json:"host"`
	httpClient *http.Client
	clock      clock.PassiveClock
	// batchCount is the number of batches sent in the current minute
	batchCount         int
	batchCountLock     sync.Mutex
	batchCountStart    time.Time
	batchLimitNotified bool
}

type HTTPEventsList struct {
	Kind       string             `json:"kind"`
	APIVersion string             `json:"apiVersion"`
	Spec       HTTPEventsListSpec `json:"spec"`
}

type HTTPEventsListSpec struct {
	RunID     string      `json:"runID"`
	Host      string      `json:"host"`
	Seq       uint64      `json:"seq"`
	OpenedAt  time.Time   `json:"openedAt"`
	FlushedAt time.Time   `json:"flushedAt"`
	Events    []HTTPEvent `json:"events"`
}

type HTTPEvent struct {
	Kind  string       `json:"kind"`
	Event events.Event `json:"event"`
}

func (config *HTTPExporterConfig) Validate() error {
	if config.Method == "" {
		config.Method = "POST"
	} else if config.Method != "POST" && config.Method != "PUT" {
		return fmt.Errorf("method must be POST or PUT")
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = 5
	}
	if config.MaxBatchesPerMinute == 0 {
		config.MaxBatchesPerMinute = 100
	}
	if config.Headers == nil {
		config.Headers = make(map[string]string)
	}
	if config.URL == "" {
		return fmt.Errorf("URL is required")
	}
	return nil
}

// InitHTTPExporter initializes an HTTPExporter with the given URL, headers, timeout, and method
func InitHTTPExporter(config HTTPExporterConfig, host string) (*HTTPExporter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &HTTPExporter{
		Host:   host,
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		clock: clock.RealClock{},
	}, nil
}

func (exporter *HTTPExporter) SendBatch(batch accumulator.Batch) {
	if batch.Len() == 0 {
		return
	}
	if limited, notify := exporter.checkBatchLimit(); limited {
		if notify {
			logger.L().Error("HTTPExporter - batch limit reached, dropping batches until the next minute",
				helpers.Int("limit", exporter.config.MaxBatchesPerMinute),
				helpers.Interface("seq", batch.Seq))
		}
		return
	}

	list := HTTPEventsList{
		Kind:       "KernelEvents",
		APIVersion: "kubescape.io/v1",
		Spec: HTTPEventsListSpec{
			RunID:     batch.RunID,
			Host:      exporter.Host,
			Seq:       batch.Seq,
			OpenedAt:  batch.OpenedAt,
			FlushedAt: batch.FlushedAt,
			Events:    make([]HTTPEvent, 0, batch.Len()),
		},
	}
	for _, ev := range batch.Events {
		list.Spec.Events = append(list.Spec.Events, HTTPEvent{Kind: ev.Kind().String(), Event: ev})
	}

	if err := exporter.send(list); err != nil {
		logger.L().Error("HTTPExporter - failed to send batch", helpers.Error(err),
			helpers.Interface("seq", batch.Seq), helpers.Int("events", batch.Len()))
	}
}

func (exporter *HTTPExporter) send(list HTTPEventsList) error {
	bodyBytes, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal events list: %w", err)
	}

	req, err := http.NewRequest(exporter.config.Method, exporter.config.URL+"/v1/kernelevents", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range exporter.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := exporter.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	// discard the body
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.L().Debug("HTTPExporter - failed to clear response body", helpers.Error(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("received non-2xx status code %d", resp.StatusCode)
	}
	return nil
}

// checkBatchLimit counts a batch against the per-minute limit. notify is true
// only for the first batch over the limit in a minute.
func (exporter *HTTPExporter) checkBatchLimit() (limited, notify bool) {
	exporter.batchCountLock.Lock()
	defer exporter.batchCountLock.Unlock()

	now := exporter.clock.Now()
	if exporter.batchCountStart.IsZero() {
		exporter.batchCountStart = now
	}

	if now.Sub(exporter.batchCountStart) > time.Minute {
		exporter.batchCountStart = now
		exporter.batchCount = 0
		exporter.batchLimitNotified = false
	}

	exporter.batchCount++
	if exporter.batchCount <= exporter.config.MaxBatchesPerMinute {
		return false, false
	}
	notify = !exporter.batchLimitNotified
	exporter.batchLimitNotified = true
	return true, notify
}
