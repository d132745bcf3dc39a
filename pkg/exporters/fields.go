package exporters

import (
	"fmt"
	"net/netip"
	"strconv"

	"github.com/kubescape/kernel-agent/pkg/ebpf/events"
)

type field struct {
	name  string
	value string
}

// eventFields flattens an event into ordered name/value pairs for the text
// based exporters.
func eventFields(ev events.Event) []field {
	fields := []field{
		{"kind", ev.Kind().String()},
		{"timestamp", strconv.FormatUint(ev.GetTimestamp(), 10)},
		{"pid", strconv.FormatUint(uint64(ev.GetPID()), 10)},
		{"comm", ev.GetComm()},
	}
	if ev.HasMalformedText() {
		fields = append(fields, field{"malformed_text", "true"})
	}

	switch e := ev.(type) {
	case *events.ProcessExec:
		fields = append(fields,
			field{"ppid", u32(e.PPID)},
			field{"uid", u32(e.UID)},
			field{"gid", u32(e.GID)},
			field{"path", e.Path})
	case *events.NetworkConnect:
		fields = append(fields,
			field{"uid", u32(e.UID)},
			field{"src", netip.AddrPortFrom(e.SrcIP(), e.SrcPort).String()},
			field{"dst", netip.AddrPortFrom(e.DstIP(), e.DstPort).String()})
	case *events.FileOperation:
		fields = append(fields,
			field{"uid", u32(e.UID)},
			field{"operation", e.Operation.String()},
			field{"path", e.Path},
			field{"mode", fmt.Sprintf("%#o", e.Mode)})
	case *events.SyscallDecision:
		fields = append(fields,
			field{"uid", u32(e.UID)},
			field{"gid", u32(e.GID)},
			field{"syscall", u32(e.SyscallNumber)},
			field{"original_path", e.OriginalPath},
			field{"modified_path", e.ModifiedPath},
			field{"action", e.Action.String()},
			field{"blocked", strconv.FormatBool(e.Blocked)},
			field{"threat_score", u32(e.ThreatScore)},
			field{"reason", e.Reason})
	case *events.MemoryViolation:
		fields = append(fields,
			field{"tid", u32(e.TID)},
			field{"address", fmt.Sprintf("%#x", e.Address)},
			field{"size", strconv.FormatUint(e.Size, 10)},
			field{"access_type", e.AccessType.String()},
			field{"fault_type", strconv.FormatUint(uint64(e.FaultType), 10)},
			field{"stack_id", u32(e.StackID)},
			field{"threat_score", u32(e.ThreatScore)},
			field{"overflow", strconv.FormatBool(e.IsOverflow)},
			field{"leak", strconv.FormatBool(e.IsLeak)},
			field{"violation_type", e.ViolationType})
	}
	return fields
}

// isSuspicious marks events that the probes flagged themselves.
func isSuspicious(ev events.Event) bool {
	switch e := ev.(type) {
	case *events.SyscallDecision:
		return e.Blocked || e.Action == events.ActionDeny || e.Action == events.ActionRedirect
	case *events.MemoryViolation:
		return true
	}
	return false
}

func u32(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
