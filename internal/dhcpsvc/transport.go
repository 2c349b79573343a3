package dhcpsvc

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mdlayher/ethernet"
	"github.com/mdlayher/packet"
	"golang.org/x/net/ipv4"
)

// ServerPort and ClientPort are the well-known DHCPv4 UDP ports, per RFC
// 2131 Section 1.
const (
	ServerPort = 67
	ClientPort = 68
)

// Transport sends and receives raw DHCPv4 datagrams on one interface.  It is
// the seam the §1 non-goal "raw-socket setup specifics" carves out: the
// dispatcher only ever calls these methods with an already-encoded datagram
// and the destination implied by the RFC 2131 Section 4.1 transport-
// selection rules; it never touches a socket directly.
//
// Implementations of this interface are how a host actually constructs the
// underlying sockets (UDP and, for the client-has-no-IP-yet case, AF_PACKET
// raw).
type Transport interface {
	// Recv blocks until a datagram arrives and returns its raw bytes.
	Recv() (raw []byte, err error)

	// SendRelayUnicast sends raw by UDP unicast to addr on [ServerPort],
	// used when forwarding to giaddr or to a configured relay target.
	SendRelayUnicast(addr netip.Addr, raw []byte) (err error)

	// SendClientUnicast sends raw by UDP unicast to addr on [ClientPort],
	// used when the client already has ciaddr.
	SendClientUnicast(addr netip.Addr, raw []byte) (err error)

	// SendBroadcast sends raw by UDP broadcast to 255.255.255.255 on
	// [ClientPort].
	SendBroadcast(raw []byte) (err error)

	// SendRawUnicast sends raw as an Ethernet+IPv4+UDP frame directly to
	// hwAddr, with destination IP yiaddr, bypassing ARP — the path used
	// when the client has no usable IP yet.
	SendRawUnicast(hwAddr net.HardwareAddr, yiaddr netip.Addr, raw []byte) (err error)

	// Close releases the underlying sockets.
	Close() (err error)
}

// netTransport is the production [Transport], backed by one UDP socket and
// one AF_PACKET raw socket, grounded on the dual-conn design of the
// teacher's dhcpConn (UDP + raw) and on its buildEtherPkt framing helper.
type netTransport struct {
	udp      net.PacketConn
	pktConn  *ipv4.PacketConn
	raw      net.PacketConn
	ifIndex  int
	selfMAC  net.HardwareAddr
	selfAddr netip.Addr
}

// type check
var _ Transport = (*netTransport)(nil)

// NewTransport opens a UDP socket bound to [ServerPort] on every interface
// and an AF_PACKET raw socket on iface, for the raw-L2 fallback path.
func NewTransport(iface *net.Interface, selfAddr netip.Addr) (t Transport, err error) {
	udpConn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", ServerPort))
	if err != nil {
		return nil, fmt.Errorf("listening udp: %w", err)
	}

	rawConn, err := packet.Listen(iface, packet.Raw, int(ethernet.EtherTypeIPv4), nil)
	if err != nil {
		udpConn.Close()

		return nil, fmt.Errorf("listening raw: %w", err)
	}

	pktConn := ipv4.NewPacketConn(udpConn)
	if cmErr := pktConn.SetControlMessage(ipv4.FlagInterface, true); cmErr != nil {
		// Not fatal: the server falls back to whatever route the kernel
		// would otherwise pick for a broadcast reply.
		pktConn = nil
	}

	return &netTransport{
		udp:      udpConn,
		pktConn:  pktConn,
		raw:      rawConn,
		ifIndex:  iface.Index,
		selfMAC:  iface.HardwareAddr,
		selfAddr: selfAddr,
	}, nil
}

// Recv implements the [Transport] interface for *netTransport.
func (t *netTransport) Recv() (raw []byte, err error) {
	buf := make([]byte, 1500)

	n, _, err := t.udp.ReadFrom(buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}

// SendRelayUnicast implements the [Transport] interface for *netTransport.
func (t *netTransport) SendRelayUnicast(addr netip.Addr, raw []byte) (err error) {
	return t.sendUDP(netip.AddrPortFrom(addr, ServerPort), raw)
}

// SendClientUnicast implements the [Transport] interface for *netTransport.
func (t *netTransport) SendClientUnicast(addr netip.Addr, raw []byte) (err error) {
	return t.sendUDP(netip.AddrPortFrom(addr, ClientPort), raw)
}

// SendBroadcast implements the [Transport] interface for *netTransport.
//
// On a multi-homed host the UDP socket is bound to the wildcard address, so
// the kernel's default route may not send the broadcast out the interface
// this server actually serves; when available, SendBroadcast pins egress to
// that interface via an [ipv4.ControlMessage].
func (t *netTransport) SendBroadcast(raw []byte) (err error) {
	broadcast := netip.AddrFrom4([4]byte{255, 255, 255, 255})
	dst := net.UDPAddrFromAddrPort(netip.AddrPortFrom(broadcast, ClientPort))

	if t.pktConn != nil {
		cm := &ipv4.ControlMessage{IfIndex: t.ifIndex}
		_, err = t.pktConn.WriteTo(raw, cm, dst)

		return err
	}

	_, err = t.udp.WriteTo(raw, dst)

	return err
}

// sendUDP writes raw to dst over the UDP socket.
func (t *netTransport) sendUDP(dst netip.AddrPort, raw []byte) (err error) {
	_, err = t.udp.WriteTo(raw, net.UDPAddrFromAddrPort(dst))

	return err
}

// SendRawUnicast implements the [Transport] interface for *netTransport.
func (t *netTransport) SendRawUnicast(hwAddr net.HardwareAddr, yiaddr netip.Addr, raw []byte) (err error) {
	frame, err := buildEtherFrame(t.selfMAC, hwAddr, t.selfAddr, yiaddr, raw)
	if err != nil {
		return fmt.Errorf("building ethernet frame: %w", err)
	}

	_, err = t.raw.WriteTo(frame, &packet.Addr{HardwareAddr: hwAddr})

	return err
}

// Close implements the [Transport] interface for *netTransport.
func (t *netTransport) Close() (err error) {
	err = t.udp.Close()
	if rawErr := t.raw.Close(); rawErr != nil && err == nil {
		err = rawErr
	}

	return err
}

// buildEtherFrame wraps a DHCPv4 payload in Ethernet+IPv4+UDP headers for
// the raw-L2 unicast path, matching the teacher's buildEtherPkt.
func buildEtherFrame(
	srcMAC, dstMAC net.HardwareAddr,
	srcIP, dstIP netip.Addr,
	payload []byte,
) (frame []byte, err error) {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}

	if !srcIP.IsValid() {
		srcIP = netip.IPv4Unspecified()
	}

	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIP.AsSlice(),
		DstIP:    dstIP.AsSlice(),
	}

	udp := &layers.UDP{
		SrcPort: ServerPort,
		DstPort: ClientPort,
	}

	if err = udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	err = gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload))
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
