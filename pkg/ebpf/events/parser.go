package events

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Record sizes as emitted by the probes. Each size selects exactly one
// decoder, so they must stay pairwise distinct; the decode table literal
// below does not compile otherwise.
const (
	ProcessExecSize     = 296
	NetworkConnectSize  = 44
	FileOperationSize   = 288
	SyscallDecisionSize = 622
	MemoryViolationSize = 96
)

const (
	commLen          = 16
	execPathLen      = 256
	filePathLen      = 248
	syscallPathLen   = 256
	reasonLen        = 64
	violationTypeLen = 32
)

var (
	ErrUnknownLength = errors.New("unknown record length")
	ErrMalformedText = errors.New("malformed text")
	errOutOfBounds   = errors.New("field out of bounds")
)

// ParseError is returned when a raw record cannot be decoded.
type ParseError struct {
	Reason error
	Length int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse record of %d bytes: %v", e.Length, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Reason
}

type decoder func(r *fieldReader) Event

// Parser decodes raw records by looking up their length in a decode table.
type Parser struct {
	decoders map[int]decoder
}

var defaultParser = mustNewParser(map[int]decoder{
	ProcessExecSize:     decodeProcessExec,
	NetworkConnectSize:  decodeNetworkConnect,
	FileOperationSize:   decodeFileOperation,
	SyscallDecisionSize: decodeSyscallDecision,
	MemoryViolationSize: decodeMemoryViolation,
})

func mustNewParser(table map[int]decoder) *Parser {
	p := &Parser{decoders: make(map[int]decoder, len(table))}
	for size, dec := range table {
		if size <= 0 {
			panic(fmt.Sprintf("events: invalid record size %d", size))
		}
		p.decoders[size] = dec
	}
	return p
}

// Parse decodes raw using the default decode table.
func Parse(raw []byte) (Event, error) {
	return defaultParser.Parse(raw)
}

// Lengths returns the record sizes known to the default parser.
func Lengths() []int {
	return defaultParser.Lengths()
}

func (p *Parser) Parse(raw []byte) (Event, error) {
	dec, ok := p.decoders[len(raw)]
	if !ok {
		return nil, &ParseError{Reason: ErrUnknownLength, Length: len(raw)}
	}
	r := &fieldReader{buf: raw}
	ev := dec(r)
	if r.err != nil {
		return nil, &ParseError{Reason: r.err, Length: len(raw)}
	}
	if r.malformed {
		ev.header().MalformedText = true
	}
	return ev, nil
}

func (p *Parser) Lengths() []int {
	sizes := make([]int, 0, len(p.decoders))
	for size := range p.decoders {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)
	return sizes
}

func decodeProcessExec(r *fieldReader) Event {
	return &ProcessExec{
		Header: r.header(0, 8, 24),
		PPID:   r.u32(12),
		UID:    r.u32(16),
		GID:    r.u32(20),
		Path:   r.str(40, execPathLen),
	}
}

func decodeNetworkConnect(r *fieldReader) Event {
	return &NetworkConnect{
		Header:  r.header(0, 8, 16),
		UID:     r.u32(12),
		SrcAddr: r.u32be(32),
		DstAddr: r.u32be(36),
		SrcPort: r.u16(40),
		DstPort: r.u16(42),
	}
}

func decodeFileOperation(r *fieldReader) Event {
	return &FileOperation{
		Header:    r.header(0, 8, 16),
		UID:       r.u32(12),
		Operation: FileOp(r.u32(32)),
		Path:      r.str(36, filePathLen),
		Mode:      r.u32(284),
	}
}

func decodeSyscallDecision(r *fieldReader) Event {
	return &SyscallDecision{
		Header:        r.header(0, 8, 20),
		UID:           r.u32(12),
		GID:           r.u32(16),
		SyscallNumber: r.u32(36),
		OriginalPath:  r.str(40, syscallPathLen),
		ModifiedPath:  r.str(296, syscallPathLen),
		Action:        Action(r.u8(552)),
		Blocked:       r.u8(553) != 0,
		ThreatScore:   r.u32(554),
		Reason:        r.str(558, reasonLen),
	}
}

// The memory record is a naturally aligned C struct: two padding bytes
// follow fault_type and two more end the record.
func decodeMemoryViolation(r *fieldReader) Event {
	return &MemoryViolation{
		Header:        r.header(0, 8, 16),
		TID:           r.u32(12),
		Address:       r.u64(32),
		Size:          r.u64(40),
		AccessType:    AccessType(r.u8(48)),
		FaultType:     r.u8(49),
		StackID:       r.u32(52),
		ThreatScore:   r.u32(56),
		IsOverflow:    r.u8(60) != 0,
		IsLeak:        r.u8(61) != 0,
		ViolationType: r.str(62, violationTypeLen),
	}
}

// fieldReader extracts fixed-offset fields. An out-of-range read records an
// error and yields a zero value instead of panicking.
type fieldReader struct {
	buf       []byte
	err       error
	malformed bool
}

func (r *fieldReader) slice(off, n int) []byte {
	if off < 0 || n < 0 || off+n > len(r.buf) {
		if r.err == nil {
			r.err = fmt.Errorf("%w: [%d:%d]", errOutOfBounds, off, off+n)
		}
		return nil
	}
	return r.buf[off : off+n]
}

func (r *fieldReader) u8(off int) uint8 {
	b := r.slice(off, 1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *fieldReader) u16(off int) uint16 {
	b := r.slice(off, 2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *fieldReader) u32(off int) uint32 {
	b := r.slice(off, 4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *fieldReader) u32be(off int) uint32 {
	b := r.slice(off, 4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *fieldReader) u64(off int) uint64 {
	b := r.slice(off, 8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// str decodes a NUL-terminated string from a fixed window. Without a NUL
// the whole window is used.
func (r *fieldReader) str(off, n int) string {
	b := r.slice(off, n)
	if b == nil {
		return ""
	}
	for i, c := range b {
		if c == 0 {
			b = b[:i]
			break
		}
	}
	if !utf8.Valid(b) {
		r.malformed = true
		return strings.ToValidUTF8(string(b), string(utf8.RuneError))
	}
	return string(b)
}

// header reads timestamp, pid and comm.
func (r *fieldReader) header(tsOff, pidOff, commOff int) Header {
	return Header{
		Timestamp: r.u64(tsOff),
		PID:       r.u32(pidOff),
		Comm:      r.str(commOff, commLen),
	}
}
