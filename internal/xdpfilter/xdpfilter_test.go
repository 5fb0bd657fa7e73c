package xdpfilter_test

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/biryukovmaxim/ddos-protection-task/internal/socketv4"
	"github.com/biryukovmaxim/ddos-protection-task/internal/xdpfilter"
)

const protectedPort = 5051

func buildTCP(t *testing.T, srcIP net.IP, srcPort uint16, dstPort uint16, syn bool) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    srcIP,
		DstIP:    net.IPv4(10, 0, 0, 1),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		SYN:     syn,
		Window:  1024,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp))
	return buf.Bytes()
}

func buildUDP(t *testing.T, srcIP net.IP, srcPort, dstPort uint16) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIP,
		DstIP:    net.IPv4(10, 0, 0, 1),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload("PING")))
	return buf.Bytes()
}

// S3: empty whitelist, SYN to protected port -> DROP; UDP to same port -> PASS.
func TestDecide_S3(t *testing.T) {
	empty := func(socketv4.SocketV4) bool { return false }

	syn := buildTCP(t, net.IPv4(127, 0, 0, 1), 50000, protectedPort, true)
	action, err := xdpfilter.Decide(syn, protectedPort, empty)
	require.NoError(t, err)
	require.Equal(t, xdpfilter.ActionDrop, action)

	udp := buildUDP(t, net.IPv4(127, 0, 0, 1), 50000, protectedPort)
	action, err = xdpfilter.Decide(udp, protectedPort, empty)
	require.NoError(t, err)
	require.Equal(t, xdpfilter.ActionPass, action)
}

func TestDecide_WhitelistedPasses(t *testing.T) {
	whitelisted := socketv4.SocketV4{Address: 0x7F000001, Port: 40000}
	lookup := func(k socketv4.SocketV4) bool { return k == whitelisted }

	syn := buildTCP(t, net.IPv4(127, 0, 0, 1), 40000, protectedPort, true)
	action, err := xdpfilter.Decide(syn, protectedPort, lookup)
	require.NoError(t, err)
	require.Equal(t, xdpfilter.ActionPass, action)
}

// S4: after revoke, a SYN from the same peer is dropped again.
func TestDecide_S4_RevokeThenDrop(t *testing.T) {
	whitelisted := map[socketv4.SocketV4]bool{
		{Address: 0x7F000001, Port: 40000}: true,
	}
	lookup := func(k socketv4.SocketV4) bool { return whitelisted[k] }

	syn := buildTCP(t, net.IPv4(127, 0, 0, 1), 40000, protectedPort, true)
	action, err := xdpfilter.Decide(syn, protectedPort, lookup)
	require.NoError(t, err)
	require.Equal(t, xdpfilter.ActionPass, action)

	delete(whitelisted, socketv4.SocketV4{Address: 0x7F000001, Port: 40000})

	action, err = xdpfilter.Decide(syn, protectedPort, lookup)
	require.NoError(t, err)
	require.Equal(t, xdpfilter.ActionDrop, action)
}

// P5: non-SYN, non-IPv4 and other-port packets always PASS (the non-TCP
// case is covered by TestDecide_S3).
func TestDecide_P5_AlwaysPassCases(t *testing.T) {
	never := func(socketv4.SocketV4) bool { return false }

	nonSyn := buildTCP(t, net.IPv4(127, 0, 0, 1), 40000, protectedPort, false)
	action, err := xdpfilter.Decide(nonSyn, protectedPort, never)
	require.NoError(t, err)
	require.Equal(t, xdpfilter.ActionPass, action)

	otherPort := buildTCP(t, net.IPv4(127, 0, 0, 1), 40000, protectedPort+1, true)
	action, err = xdpfilter.Decide(otherPort, protectedPort, never)
	require.NoError(t, err)
	require.Equal(t, xdpfilter.ActionPass, action)

	nonIP := make([]byte, 14)
	nonIP[12], nonIP[13] = 0x08, 0x06 // ARP
	action, err = xdpfilter.Decide(nonIP, protectedPort, never)
	require.NoError(t, err)
	require.Equal(t, xdpfilter.ActionPass, action)
}

func TestDecide_TruncatedIsAborted(t *testing.T) {
	action, err := xdpfilter.Decide(make([]byte, 5), protectedPort, func(socketv4.SocketV4) bool { return false })
	require.ErrorIs(t, err, xdpfilter.ErrTruncated)
	require.Equal(t, xdpfilter.ActionAborted, action)
}
