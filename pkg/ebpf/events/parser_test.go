package events

import (
	"encoding/binary"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordBuilder writes fields at fixed offsets into a zeroed buffer.
type recordBuilder []byte

func newRecord(size int) recordBuilder {
	return make(recordBuilder, size)
}

func (b recordBuilder) u8(off int, v uint8) recordBuilder {
	b[off] = v
	return b
}

func (b recordBuilder) u16(off int, v uint16) recordBuilder {
	binary.LittleEndian.PutUint16(b[off:], v)
	return b
}

func (b recordBuilder) u32(off int, v uint32) recordBuilder {
	binary.LittleEndian.PutUint32(b[off:], v)
	return b
}

func (b recordBuilder) u32be(off int, v uint32) recordBuilder {
	binary.BigEndian.PutUint32(b[off:], v)
	return b
}

func (b recordBuilder) u64(off int, v uint64) recordBuilder {
	binary.LittleEndian.PutUint64(b[off:], v)
	return b
}

func (b recordBuilder) str(off int, s string) recordBuilder {
	copy(b[off:], s)
	return b
}

func TestParseProcessExec(t *testing.T) {
	raw := newRecord(ProcessExecSize).
		u64(0, 1700000000123456789).
		u32(8, 1234).
		u32(12, 1).
		u32(16, 1000).
		u32(20, 1001).
		str(24, "sshd").
		str(40, "/usr/sbin/sshd")

	ev, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, KindProcessExec, ev.Kind())

	exec, ok := ev.(*ProcessExec)
	require.True(t, ok)
	assert.Equal(t, uint64(1700000000123456789), exec.Timestamp)
	assert.Equal(t, uint32(1234), exec.PID)
	assert.Equal(t, uint32(1), exec.PPID)
	assert.Equal(t, uint32(1000), exec.UID)
	assert.Equal(t, uint32(1001), exec.GID)
	assert.Equal(t, "sshd", exec.Comm)
	assert.Equal(t, "/usr/sbin/sshd", exec.Path)
	assert.False(t, exec.HasMalformedText())

	assert.Equal(t, uint32(1234), ev.GetPID())
	assert.Equal(t, "sshd", ev.GetComm())
	assert.Equal(t, uint64(1700000000123456789), ev.GetTimestamp())
}

func TestParseNetworkConnect(t *testing.T) {
	raw := newRecord(NetworkConnectSize).
		u64(0, 42).
		u32(8, 4321).
		u32(12, 33).
		str(16, "curl").
		u32be(32, 0xC0A80102). // 192.168.1.2
		u32be(36, 0x08080808). // 8.8.8.8
		u16(40, 51234).
		u16(42, 443)

	ev, err := Parse(raw)
	require.NoError(t, err)

	conn, ok := ev.(*NetworkConnect)
	require.True(t, ok)
	assert.Equal(t, KindNetworkConnect, conn.Kind())
	assert.Equal(t, uint64(42), conn.Timestamp)
	assert.Equal(t, uint32(4321), conn.PID)
	assert.Equal(t, uint32(33), conn.UID)
	assert.Equal(t, "curl", conn.Comm)
	assert.Equal(t, uint32(0xC0A80102), conn.SrcAddr)
	assert.Equal(t, uint32(0x08080808), conn.DstAddr)
	assert.Equal(t, "192.168.1.2", conn.SrcIP().String())
	assert.Equal(t, "8.8.8.8", conn.DstIP().String())
	assert.Equal(t, uint16(51234), conn.SrcPort)
	assert.Equal(t, uint16(443), conn.DstPort)
}

func TestParseFileOperation(t *testing.T) {
	raw := newRecord(FileOperationSize).
		u64(0, 7).
		u32(8, 99).
		u32(12, 0).
		str(16, "cat").
		u32(32, uint32(FileOpChmod)).
		str(36, "/etc/shadow").
		u32(284, 0o644)

	ev, err := Parse(raw)
	require.NoError(t, err)

	op, ok := ev.(*FileOperation)
	require.True(t, ok)
	assert.Equal(t, uint64(7), op.Timestamp)
	assert.Equal(t, uint32(99), op.PID)
	assert.Equal(t, uint32(0), op.UID)
	assert.Equal(t, "cat", op.Comm)
	assert.Equal(t, FileOpChmod, op.Operation)
	assert.Equal(t, "chmod", op.Operation.String())
	assert.Equal(t, "/etc/shadow", op.Path)
	assert.Equal(t, uint32(0o644), op.Mode)
}

func TestParseSyscallDecision(t *testing.T) {
	raw := newRecord(SyscallDecisionSize).
		u64(0, 555).
		u32(8, 2000).
		u32(12, 0).
		u32(16, 0).
		str(20, "bash").
		u32(36, 257).
		str(40, "/etc/passwd").
		str(296, "/tmp/passwd.decoy").
		u8(552, uint8(ActionRedirect)).
		u8(553, 1).
		u32(554, 70).
		str(558, "sensitive path access by root")

	ev, err := Parse(raw)
	require.NoError(t, err)

	dec, ok := ev.(*SyscallDecision)
	require.True(t, ok)
	assert.Equal(t, KindSyscallDecision, dec.Kind())
	assert.Equal(t, uint64(555), dec.Timestamp)
	assert.Equal(t, uint32(2000), dec.PID)
	assert.Equal(t, uint32(0), dec.UID)
	assert.Equal(t, uint32(0), dec.GID)
	assert.Equal(t, "bash", dec.Comm)
	assert.Equal(t, uint32(257), dec.SyscallNumber)
	assert.Equal(t, "/etc/passwd", dec.OriginalPath)
	assert.Equal(t, "/tmp/passwd.decoy", dec.ModifiedPath)
	assert.Equal(t, ActionRedirect, dec.Action)
	assert.True(t, dec.Blocked)
	assert.Equal(t, uint32(70), dec.ThreatScore)
	assert.Equal(t, "sensitive path access by root", dec.Reason)
}

func TestParseMemoryViolation(t *testing.T) {
	raw := newRecord(MemoryViolationSize).
		u64(0, 9000).
		u32(8, 300).
		u32(12, 301).
		str(16, "nginx").
		u64(32, 0x7ffd0000dead).
		u64(40, 4096).
		u8(48, uint8(AccessWrite)).
		u8(49, 1).
		u32(52, 17).
		u32(56, 90).
		u8(60, 1).
		u8(61, 0).
		str(62, "STACK_OVERFLOW")

	ev, err := Parse(raw)
	require.NoError(t, err)

	mem, ok := ev.(*MemoryViolation)
	require.True(t, ok)
	assert.Equal(t, KindMemoryViolation, mem.Kind())
	assert.Equal(t, uint64(9000), mem.Timestamp)
	assert.Equal(t, uint32(300), mem.PID)
	assert.Equal(t, uint32(301), mem.TID)
	assert.Equal(t, "nginx", mem.Comm)
	assert.Equal(t, uint64(0x7ffd0000dead), mem.Address)
	assert.Equal(t, uint64(4096), mem.Size)
	assert.Equal(t, AccessWrite, mem.AccessType)
	assert.Equal(t, uint8(1), mem.FaultType)
	assert.Equal(t, uint32(17), mem.StackID)
	assert.Equal(t, uint32(90), mem.ThreatScore)
	assert.True(t, mem.IsOverflow)
	assert.False(t, mem.IsLeak)
	assert.Equal(t, "STACK_OVERFLOW", mem.ViolationType)
}

func TestParseUnknownLength(t *testing.T) {
	for _, size := range []int{0, 1, ProcessExecSize + 1, ProcessExecSize - 1, NetworkConnectSize + 4, 69, 593, 4096} {
		ev, err := Parse(make([]byte, size))
		require.Error(t, err, "size %d", size)
		assert.Nil(t, ev)
		assert.True(t, errors.Is(err, ErrUnknownLength), "size %d", size)

		var parseErr *ParseError
		require.True(t, errors.As(err, &parseErr))
		assert.Equal(t, size, parseErr.Length)
	}
}

func TestParseNilBuffer(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrUnknownLength)
}

func TestParseCommWithoutTerminator(t *testing.T) {
	raw := newRecord(ProcessExecSize).
		str(24, "abcdefghijklmnop"). // exactly 16 bytes, no NUL
		str(40, "/bin/true")

	ev, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijklmnop", ev.GetComm())
	assert.Equal(t, "/bin/true", ev.(*ProcessExec).Path)
}

func TestParsePathFillsWindow(t *testing.T) {
	path := make([]byte, 256)
	for i := range path {
		path[i] = 'a'
	}
	raw := newRecord(ProcessExecSize).str(40, string(path))

	ev, err := Parse(raw)
	require.NoError(t, err)
	assert.Len(t, ev.(*ProcessExec).Path, 256)
}

func TestParseStopsAtFirstNul(t *testing.T) {
	raw := newRecord(NetworkConnectSize)
	copy(raw[16:], []byte{'a', 'b', 0, 'c', 'd'})

	ev, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "ab", ev.GetComm())
}

func TestParseMalformedText(t *testing.T) {
	raw := newRecord(ProcessExecSize)
	copy(raw[24:], []byte{'b', 'a', 0xff, 0xfe, 'd'})
	copy(raw[40:], "/ok/path")

	ev, err := Parse(raw)
	require.NoError(t, err)
	assert.True(t, ev.HasMalformedText())
	assert.True(t, utf8.ValidString(ev.GetComm()))
	assert.Contains(t, ev.GetComm(), string(utf8.RuneError))
	assert.Equal(t, "/ok/path", ev.(*ProcessExec).Path)
}

func TestParseUnknownEnumValuesPreserved(t *testing.T) {
	raw := newRecord(SyscallDecisionSize).u8(552, 9).u8(553, 2)

	ev, err := Parse(raw)
	require.NoError(t, err)
	dec := ev.(*SyscallDecision)
	assert.Equal(t, Action(9), dec.Action)
	assert.Equal(t, "unknown(9)", dec.Action.String())
	assert.True(t, dec.Blocked)
}

func TestLengthsAreDistinct(t *testing.T) {
	lengths := Lengths()
	assert.Equal(t, []int{NetworkConnectSize, MemoryViolationSize, FileOperationSize, ProcessExecSize, SyscallDecisionSize}, lengths)

	seen := make(map[int]bool)
	for _, l := range lengths {
		assert.False(t, seen[l], "duplicate length %d", l)
		seen[l] = true
	}
}

func TestFieldReaderOutOfBounds(t *testing.T) {
	r := &fieldReader{buf: make([]byte, 4)}
	assert.Equal(t, uint64(0), r.u64(0))
	assert.Equal(t, "", r.str(2, 16))
	require.Error(t, r.err)
	assert.ErrorIs(t, r.err, errOutOfBounds)
}

func TestParseDoesNotAliasInput(t *testing.T) {
	raw := newRecord(ProcessExecSize).str(24, "sshd")

	ev, err := Parse(raw)
	require.NoError(t, err)
	copy(raw[24:], "XXXX")
	assert.Equal(t, "sshd", ev.GetComm())
}

func BenchmarkParse(b *testing.B) {
	records := [][]byte{
		newRecord(ProcessExecSize).u32(8, 1).str(24, "systemd").str(40, "/lib/systemd/systemd"),
		newRecord(NetworkConnectSize).u32(8, 2).str(16, "sshd"),
		newRecord(FileOperationSize).u32(8, 3).str(16, "rsyslog").str(36, "/var/log/syslog"),
		newRecord(SyscallDecisionSize).u32(8, 4).str(20, "bash").str(40, "/etc/passwd"),
		newRecord(MemoryViolationSize).u32(8, 5).str(16, "nginx").str(62, "LARGE_ALLOC"),
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Parse(records[i%len(records)]); err != nil {
			b.Fatal(err)
		}
	}
}
