package exporters

import (
	"sync"

	"github.com/kubescape/kernel-agent/pkg/accumulator"
)

// generic exporter interface
type Exporter interface {
	// SendBatch sends a processed batch of kernel events to the exporter
	SendBatch(batch accumulator.Batch)
}

var _ Exporter = (*ExporterMock)(nil)

type ExporterMock struct {
	mu      sync.Mutex
	batches []accumulator.Batch
}

func (e *ExporterMock) SendBatch(batch accumulator.Batch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches = append(e.batches, batch)
}

func (e *ExporterMock) Batches() []accumulator.Batch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]accumulator.Batch(nil), e.batches...)
}
