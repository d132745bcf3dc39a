package exporters

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/kubescape/kernel-agent/pkg/accumulator"
	"github.com/sirupsen/logrus"
)

// CsvExporter is an exporter that appends events to a csv file
type CsvExporter struct {
	CsvPath string
}

// InitCsvExporter initializes a new CsvExporter
func InitCsvExporter(csvPath string) *CsvExporter {
	if csvPath == "" {
		csvPath = os.Getenv("EXPORTER_CSV_PATH")
		if csvPath == "" {
			logrus.Debugf("csv path not provided, events will not be exported to csv")
			return nil
		}
	}

	if _, err := os.Stat(csvPath); os.IsNotExist(err) {
		writeHeaders(csvPath)
	}

	return &CsvExporter{
		CsvPath: csvPath,
	}
}

// SendBatch appends one row per event
func (ce *CsvExporter) SendBatch(batch accumulator.Batch) {
	csvFile, err := os.OpenFile(ce.CsvPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		logrus.Errorf("failed to open csv file: %v", err)
		return
	}
	defer csvFile.Close()

	csvWriter := csv.NewWriter(csvFile)
	for _, ev := range batch.Events {
		// the first four fields are the columns below, the rest are details
		fields := eventFields(ev)
		details := make([]string, 0, len(fields)-4)
		for _, f := range fields[4:] {
			details = append(details, f.name+"="+f.value)
		}
		_ = csvWriter.Write([]string{
			batch.RunID,
			strconv.FormatUint(batch.Seq, 10),
			fields[0].value,
			fields[1].value,
			fields[2].value,
			fields[3].value,
			strings.Join(details, ";"),
		})
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		logrus.Errorf("failed to write csv rows: %v", err)
	}
}

func writeHeaders(csvPath string) {
	csvFile, err := os.OpenFile(csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logrus.Errorf("failed to initialize csv exporter: %v", err)
		return
	}
	defer csvFile.Close()

	csvWriter := csv.NewWriter(csvFile)
	defer csvWriter.Flush()
	_ = csvWriter.Write([]string{
		"Run ID",
		"Batch",
		"Kind",
		"Timestamp",
		"PID",
		"Comm",
		"Details",
	})
}
