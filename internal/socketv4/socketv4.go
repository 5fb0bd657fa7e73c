// Package socketv4 defines the key type shared by the challenge engine's
// pending map and the kernel-visible whitelist map: an IPv4 address and
// TCP/UDP port pair.
package socketv4

import (
	"fmt"
	"net"
)

// SocketV4 is an unordered (address, port) pair. Address and Port are
// host-byte-order at this API boundary; wire and PoW-input encodings are
// always big-endian and are produced explicitly by callers, never implied
// by this type's memory layout.
type SocketV4 struct {
	Address uint32
	Port    uint16
}

// FromUDPAddr converts a *net.UDPAddr carrying an IPv4 address into a
// SocketV4. It panics if addr does not carry a 4-byte IP, since callers are
// expected to have already rejected non-IPv4 peers per spec.md §4.6.
func FromUDPAddr(addr *net.UDPAddr) SocketV4 {
	ip4 := addr.IP.To4()
	if ip4 == nil {
		panic(fmt.Sprintf("socketv4: not an IPv4 address: %s", addr.IP))
	}
	return SocketV4{
		Address: uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3]),
		Port:    uint16(addr.Port),
	}
}

// IP returns the dotted-quad net.IP for the address.
func (s SocketV4) IP() net.IP {
	return net.IPv4(byte(s.Address>>24), byte(s.Address>>16), byte(s.Address>>8), byte(s.Address))
}

// Octets returns the address in network byte order, as it appears on the
// wire and in the Hashcash PoW input (spec.md §3 I4).
func (s SocketV4) Octets() [4]byte {
	return [4]byte{byte(s.Address >> 24), byte(s.Address >> 16), byte(s.Address >> 8), byte(s.Address)}
}

// PortBytes returns the port in big-endian order.
func (s SocketV4) PortBytes() [2]byte {
	return [2]byte{byte(s.Port >> 8), byte(s.Port)}
}

func (s SocketV4) String() string {
	return fmt.Sprintf("%s:%d", s.IP(), s.Port)
}

// UDPAddr returns a *net.UDPAddr equivalent to s.
func (s SocketV4) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: s.IP(), Port: int(s.Port)}
}

// PoWPrefix builds the 14-byte Hashcash input challenge || ip_be[4] ||
// port_be[2] bound to s, per spec.md §6 and invariant I3/I4. Both the
// engine (verifying) and the client (solving) build this exact prefix;
// keeping it here means there is exactly one implementation to get wrong.
func (s SocketV4) PoWPrefix(challenge [8]byte) []byte {
	prefix := make([]byte, 0, 14)
	prefix = append(prefix, challenge[:]...)
	octets := s.Octets()
	prefix = append(prefix, octets[:]...)
	portBytes := s.PortBytes()
	prefix = append(prefix, portBytes[:]...)
	return prefix
}
