package exporters

import (
	"time"

	"github.com/kubescape/kernel-agent/pkg/accumulator"
	"github.com/kubescape/kernel-agent/pkg/ebpf/events"
)

func testBatch() accumulator.Batch {
	flushed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return accumulator.Batch{
		RunID: "3f6f1a52-0f4e-4b8e-9d0a-7d5c1b2e9f10",
		Seq:   7,
		Events: []events.Event{
			&events.ProcessExec{
				Header: events.Header{Timestamp: 100, PID: 1234, Comm: "sshd"},
				PPID:   1,
				Path:   "/usr/sbin/sshd",
			},
			&events.SyscallDecision{
				Header:       events.Header{Timestamp: 200, PID: 4321, Comm: "bash"},
				OriginalPath: "/etc/shadow",
				Action:       events.ActionDeny,
				Blocked:      true,
				ThreatScore:  80,
				Reason:       "credential file",
			},
		},
		OpenedAt:  flushed.Add(-time.Millisecond),
		FlushedAt: flushed,
	}
}
