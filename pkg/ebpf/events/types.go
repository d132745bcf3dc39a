package events

import (
	"fmt"
	"net/netip"

	"github.com/kubescape/kernel-agent/pkg/utils"
)

// Kind tags the concrete type behind an Event.
type Kind uint8

const (
	KindProcessExec Kind = iota + 1
	KindNetworkConnect
	KindFileOperation
	KindSyscallDecision
	KindMemoryViolation
)

func (k Kind) String() string {
	switch k {
	case KindProcessExec:
		return "process_exec"
	case KindNetworkConnect:
		return "network_connect"
	case KindFileOperation:
		return "file_operation"
	case KindSyscallDecision:
		return "syscall_decision"
	case KindMemoryViolation:
		return "memory_violation"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Event is a decoded kernel record. The concrete type is one of
// *ProcessExec, *NetworkConnect, *FileOperation, *SyscallDecision or
// *MemoryViolation.
type Event interface {
	Kind() Kind
	GetTimestamp() uint64
	GetPID() uint32
	GetComm() string
	// HasMalformedText reports whether a string field needed lossy
	// UTF-8 substitution.
	HasMalformedText() bool

	header() *Header
}

// Header holds the fields every record starts with.
type Header struct {
	Timestamp     uint64 `json:"timestamp"`
	PID           uint32 `json:"pid"`
	Comm          string `json:"comm"`
	MalformedText bool   `json:"malformed_text,omitempty"`
}

func (h *Header) GetTimestamp() uint64 {
	return h.Timestamp
}

func (h *Header) GetPID() uint32 {
	return h.PID
}

func (h *Header) GetComm() string {
	return h.Comm
}

func (h *Header) HasMalformedText() bool {
	return h.MalformedText
}

func (h *Header) header() *Header {
	return h
}

type ProcessExec struct {
	Header
	PPID uint32 `json:"ppid"`
	UID  uint32 `json:"uid"`
	GID  uint32 `json:"gid"`
	Path string `json:"path"`
}

var _ Event = (*ProcessExec)(nil)

func (*ProcessExec) Kind() Kind { return KindProcessExec }

type NetworkConnect struct {
	Header
	UID uint32 `json:"uid"`
	// SrcAddr and DstAddr are IPv4 addresses in network byte order, so the
	// most significant byte is the first octet.
	SrcAddr uint32 `json:"src_addr"`
	DstAddr uint32 `json:"dst_addr"`
	SrcPort uint16 `json:"src_port"`
	DstPort uint16 `json:"dst_port"`
}

var _ Event = (*NetworkConnect)(nil)

func (*NetworkConnect) Kind() Kind { return KindNetworkConnect }

func (e *NetworkConnect) SrcIP() netip.Addr {
	return utils.IPv4FromNetworkOrder(e.SrcAddr)
}

func (e *NetworkConnect) DstIP() netip.Addr {
	return utils.IPv4FromNetworkOrder(e.DstAddr)
}

// FileOp is the operation code reported by the file probes.
type FileOp uint32

const (
	FileOpOpen FileOp = iota
	FileOpWrite
	FileOpUnlink
	FileOpChmod
)

func (op FileOp) String() string {
	switch op {
	case FileOpOpen:
		return "open"
	case FileOpWrite:
		return "write"
	case FileOpUnlink:
		return "unlink"
	case FileOpChmod:
		return "chmod"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(op))
	}
}

type FileOperation struct {
	Header
	UID       uint32 `json:"uid"`
	Operation FileOp `json:"operation"`
	Path      string `json:"path"`
	Mode      uint32 `json:"mode"`
}

var _ Event = (*FileOperation)(nil)

func (*FileOperation) Kind() Kind { return KindFileOperation }

// Action is the decision the syscall interposition probe took.
type Action uint8

const (
	ActionAllow Action = iota
	ActionDeny
	ActionRedirect
	ActionLog
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionDeny:
		return "deny"
	case ActionRedirect:
		return "redirect"
	case ActionLog:
		return "log"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

type SyscallDecision struct {
	Header
	UID           uint32 `json:"uid"`
	GID           uint32 `json:"gid"`
	SyscallNumber uint32 `json:"syscall_number"`
	OriginalPath  string `json:"original_path"`
	ModifiedPath  string `json:"modified_path"`
	Action        Action `json:"action"`
	Blocked       bool   `json:"blocked"`
	ThreatScore   uint32 `json:"threat_score"`
	Reason        string `json:"reason"`
}

var _ Event = (*SyscallDecision)(nil)

func (*SyscallDecision) Kind() Kind { return KindSyscallDecision }

// AccessType classifies a memory event.
type AccessType uint8

const (
	AccessRead AccessType = iota
	AccessWrite
	AccessExec
	AccessFree
	AccessMmap
	AccessLeak
	AccessStackOverflow
)

func (a AccessType) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessExec:
		return "exec"
	case AccessFree:
		return "free"
	case AccessMmap:
		return "mmap"
	case AccessLeak:
		return "leak"
	case AccessStackOverflow:
		return "stack_overflow"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

type MemoryViolation struct {
	Header
	TID           uint32     `json:"tid"`
	Address       uint64     `json:"address"`
	Size          uint64     `json:"size"`
	AccessType    AccessType `json:"access_type"`
	FaultType     uint8      `json:"fault_type"`
	StackID       uint32     `json:"stack_id"`
	ThreatScore   uint32     `json:"threat_score"`
	IsOverflow    bool       `json:"is_overflow"`
	IsLeak        bool       `json:"is_leak"`
	ViolationType string     `json:"violation_type"`
}

var _ Event = (*MemoryViolation)(nil)

func (*MemoryViolation) Kind() Kind { return KindMemoryViolation }
