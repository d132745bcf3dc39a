package utils

import (
	"encoding/binary"
	"net/netip"
)

// IPv4FromNetworkOrder converts an address whose first octet is the most
// significant byte, as produced by a big-endian read of inet_saddr.
func IPv4FromNetworkOrder(addr uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], addr)
	return netip.AddrFrom4(b)
}

func IPv4ToString(addr uint32) string {
	return IPv4FromNetworkOrder(addr).String()
}
