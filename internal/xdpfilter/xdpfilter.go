// Package xdpfilter is the Go-side model of the kernel SYN filter's
// decision function (spec.md §4.5). The real filter runs as an XDP
// program compiled from bpf/xdp_filter.c and loaded via cilium/ebpf; this
// package exists so the same decision logic can be exercised by `go test`
// without a kernel.
package xdpfilter

import (
	"encoding/binary"
	"errors"

	"github.com/biryukovmaxim/ddos-protection-task/internal/socketv4"
)

// Action mirrors the XDP verdicts relevant to this filter (spec.md §4.5).
type Action int

const (
	ActionPass Action = iota
	ActionDrop
	ActionAborted
)

func (a Action) String() string {
	switch a {
	case ActionPass:
		return "PASS"
	case ActionDrop:
		return "DROP"
	case ActionAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// ErrTruncated is returned when a packet is too short to contain the
// header fields the filter needs to inspect, corresponding to XDP_ABORTED
// in the real program (a bounds failure against data_end).
var ErrTruncated = errors.New("xdpfilter: packet truncated")

const (
	ethHdrLen  = 14
	ethTypeIP4 = 0x0800

	ipv4MinLen  = 20
	ipv4Proto   = 9 // offset of protocol byte within the IPv4 header
	ipProtoTCP  = 6
	ipv4SrcAddr = 12 // offset of source address within the IPv4 header

	tcpMinLen    = 20
	tcpSrcPort   = 0
	tcpDstPort   = 2
	tcpFlagsByte = 13
	tcpSYNBit    = 0x02
)

// Lookup reports whether key is present in the whitelist. It stands in for
// the kernel's lock-free per-bucket map read (spec.md §4.5 step 5).
type Lookup func(key socketv4.SocketV4) bool

// Decide applies spec.md §4.5's seven steps to a raw Ethernet frame and
// returns the verdict the kernel program would emit for protectedPort.
func Decide(frame []byte, protectedPort uint16, lookup Lookup) (Action, error) {
	if len(frame) < ethHdrLen {
		return ActionAborted, ErrTruncated
	}
	etherType := binary.BigEndian.Uint16(frame[12:14])
	if etherType != ethTypeIP4 {
		return ActionPass, nil
	}

	ip := frame[ethHdrLen:]
	if len(ip) < ipv4MinLen {
		return ActionAborted, ErrTruncated
	}
	if ip[ipv4Proto] != ipProtoTCP {
		return ActionPass, nil
	}
	ihl := int(ip[0]&0x0F) * 4
	if ihl < ipv4MinLen {
		return ActionAborted, ErrTruncated
	}
	if len(ip) < ihl+tcpMinLen {
		return ActionAborted, ErrTruncated
	}
	srcAddr := binary.BigEndian.Uint32(ip[ipv4SrcAddr : ipv4SrcAddr+4])

	tcp := ip[ihl:]
	if tcp[tcpFlagsByte]&tcpSYNBit == 0 {
		return ActionPass, nil
	}
	dstPort := binary.BigEndian.Uint16(tcp[tcpDstPort : tcpDstPort+2])
	if dstPort != protectedPort {
		return ActionPass, nil
	}
	srcPort := binary.BigEndian.Uint16(tcp[tcpSrcPort : tcpSrcPort+2])

	key := socketv4.SocketV4{Address: srcAddr, Port: srcPort}
	if lookup(key) {
		return ActionPass, nil
	}
	return ActionDrop, nil
}
