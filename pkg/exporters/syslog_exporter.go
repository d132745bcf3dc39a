package exporters

import (
	"fmt"
	"io"
	"log/syslog"
	"os"

	"github.com/crewjam/rfc5424"
	"github.com/kubescape/kernel-agent/pkg/accumulator"
	log "github.com/sirupsen/logrus"
)

const syslogAppName = "kernel-agent"

// SyslogExporter is an exporter that sends suspicious events to syslog
type SyslogExporter struct {
	writer   io.Writer
	hostname string
	pid      string
}

// InitSyslogExporter initializes a new SyslogExporter
func InitSyslogExporter(syslogHost string) *SyslogExporter {
	if syslogHost == "" {
		syslogHost = os.Getenv("SYSLOG_HOST")
		if syslogHost == "" {
			return nil
		}
	}

	protocol := os.Getenv("SYSLOG_PROTOCOL")
	if protocol == "" {
		protocol = "udp"
	}

	writer, err := syslog.Dial(protocol, syslogHost, syslog.LOG_WARNING|syslog.LOG_DAEMON, syslogAppName)
	if err != nil {
		log.Printf("failed to initialize syslog exporter: %v", err)
		return nil
	}
	return newSyslogExporter(writer)
}

func newSyslogExporter(writer io.Writer) *SyslogExporter {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &SyslogExporter{
		writer:   writer,
		hostname: hostname,
		pid:      fmt.Sprintf("%d", os.Getpid()),
	}
}

// SendBatch sends every suspicious event of the batch to syslog (RFC 5424) - https://tools.ietf.org/html/rfc5424
func (se *SyslogExporter) SendBatch(batch accumulator.Batch) {
	for _, ev := range batch.Events {
		if !isSuspicious(ev) {
			continue
		}

		fields := eventFields(ev)
		params := make([]rfc5424.SDParam, 0, len(fields)+2)
		params = append(params,
			rfc5424.SDParam{Name: "run_id", Value: batch.RunID},
			rfc5424.SDParam{Name: "batch", Value: fmt.Sprintf("%d", batch.Seq)})
		for _, f := range fields {
			params = append(params, rfc5424.SDParam{Name: f.name, Value: f.value})
		}

		message := rfc5424.Message{
			Priority:  rfc5424.Daemon | rfc5424.Warning,
			Timestamp: batch.FlushedAt,
			Hostname:  se.hostname,
			AppName:   syslogAppName,
			ProcessID: se.pid,
			MessageID: ev.Kind().String(),
			StructuredData: []rfc5424.StructuredData{
				{
					ID:         fmt.Sprintf("kernelagent@%d", ev.GetPID()),
					Parameters: params,
				},
			},
			Message: []byte(fmt.Sprintf("%s by %s (pid %d)", ev.Kind(), ev.GetComm(), ev.GetPID())),
		}

		if _, err := message.WriteTo(se.writer); err != nil {
			log.Errorf("failed to send event to syslog: %v", err)
		}
	}
}

func (se *SyslogExporter) Close() error {
	if closer, ok := se.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
