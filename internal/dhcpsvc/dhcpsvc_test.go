package dhcpsvc

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/devnetd/devnetd/internal/dhcp4"
)

// fakeTransport is an in-memory [Transport] that records every send, so
// tests can assert on the transport-selection cascade without touching real
// sockets.
type fakeTransport struct {
	relayUnicast  []netip.Addr
	clientUnicast []netip.Addr
	broadcasts    int
	rawUnicasts   []net.HardwareAddr
	lastSent      []byte
}

func (f *fakeTransport) Recv() (raw []byte, err error) { return nil, net.ErrClosed }

func (f *fakeTransport) SendRelayUnicast(addr netip.Addr, raw []byte) (err error) {
	f.relayUnicast = append(f.relayUnicast, addr)
	f.lastSent = raw

	return nil
}

func (f *fakeTransport) SendClientUnicast(addr netip.Addr, raw []byte) (err error) {
	f.clientUnicast = append(f.clientUnicast, addr)
	f.lastSent = raw

	return nil
}

func (f *fakeTransport) SendBroadcast(raw []byte) (err error) {
	f.broadcasts++
	f.lastSent = raw

	return nil
}

func (f *fakeTransport) SendRawUnicast(hw net.HardwareAddr, yiaddr netip.Addr, raw []byte) (err error) {
	f.rawUnicasts = append(f.rawUnicasts, hw)
	f.lastSent = raw

	return nil
}

func (f *fakeTransport) Close() (err error) { return nil }

// fakeClock is an injectable [Clock] for deterministic lease-expiry tests.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() (t time.Time) { return c.now }

func newTestServer(t *testing.T, configure func(c *Config)) (s *Server, tr *fakeTransport) {
	t.Helper()

	tr = &fakeTransport{}
	conf := &Config{
		Logger:           slog.Default(),
		Clock:            &fakeClock{now: time.Unix(1_700_000_000, 0)},
		Transport:        tr,
		Address:          netip.MustParseAddr("192.168.1.1"),
		Subnet:           netip.MustParsePrefix("192.168.1.0/24"),
		PoolOffset:       100,
		PoolSize:         10,
		DefaultLeaseTime: time.Hour,
		MaxLeaseTime:     24 * time.Hour,
	}

	if configure != nil {
		configure(conf)
	}

	s, err := New(conf, "eth-test")
	require.NoError(t, err)

	return s, tr
}

func clientHW(b byte) (hw net.HardwareAddr) {
	return net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, b}
}

func discover(hw net.HardwareAddr, xid uint32) (m *dhcp4.Message) {
	m = &dhcp4.Message{
		Op:            dhcp4.BootRequest,
		HType:         1,
		TransactionID: xid,
		ClientHWAddr:  hw,
		Options:       dhcp4.Options{dhcp4.OptMessageType: {byte(dhcp4.Discover)}},
	}

	return m
}

// S1-equivalent: a fresh client's DISCOVER is offered a pool address via the
// hash-probe policy, and is reachable only by raw unicast since it has no
// IP yet.
func TestServer_discoverOffersPoolAddress(t *testing.T) {
	s, tr := newTestServer(t, nil)

	hw := clientHW(0x01)
	req := discover(hw, 0xabcd1234)

	s.handle(context.Background(), req)

	require.Len(t, tr.rawUnicasts, 1)
	require.Equal(t, hw, tr.rawUnicasts[0])

	reply, err := dhcp4.Decode(tr.lastSent)
	require.NoError(t, err)
	require.Equal(t, dhcp4.Offer, reply.Type())
	require.True(t, s.pool.rng.contains(reply.YourAddr))
}

// A client that REQUESTs the address it was just offered (selecting state)
// receives an ACK, and the lease appears in both indices.
func TestServer_requestSelectingAcks(t *testing.T) {
	s, tr := newTestServer(t, nil)

	hw := clientHW(0x02)
	offered, ok := s.chooseOfferAddress(clientIDFromHW(hw))
	require.True(t, ok)

	req := &dhcp4.Message{
		Op:            dhcp4.BootRequest,
		HType:         1,
		TransactionID: 1,
		ClientHWAddr:  hw,
		Options: dhcp4.Options{
			dhcp4.OptMessageType: {byte(dhcp4.Request)},
			dhcp4.OptServerID:    addrBytes(s.conf.Address),
			dhcp4.OptRequestedIP: addrBytes(offered),
		},
	}

	s.handle(context.Background(), req)

	reply, err := dhcp4.Decode(tr.lastSent)
	require.NoError(t, err)
	require.Equal(t, dhcp4.Ack, reply.Type())
	require.Equal(t, offered, reply.YourAddr)

	l := s.leases.byClientID(clientIDFromHW(hw))
	require.NotNil(t, l)
	require.Equal(t, offered, l.Address)
	require.Equal(t, l, s.leases.byAddress(offered))
}

// An init-reboot REQUEST for an address the server refuses gets a NAK, sent
// by broadcast.
func TestServer_initRebootRefusalNaks(t *testing.T) {
	s, tr := newTestServer(t, nil)

	hw := clientHW(0x03)
	foreign := netip.MustParseAddr("10.0.0.5") // outside the pool entirely

	req := &dhcp4.Message{
		Op:            dhcp4.BootRequest,
		HType:         1,
		TransactionID: 1,
		ClientHWAddr:  hw,
		Options: dhcp4.Options{
			dhcp4.OptMessageType: {byte(dhcp4.Request)},
			dhcp4.OptRequestedIP: addrBytes(foreign),
		},
	}

	s.handle(context.Background(), req)

	require.Equal(t, 1, tr.broadcasts)

	reply, err := dhcp4.Decode(tr.lastSent)
	require.NoError(t, err)
	require.Equal(t, dhcp4.Nak, reply.Type())
}

// A renew/rebind REQUEST (server-id absent, ciaddr set) for a non-assignable
// address is silently dropped, not NAKed.
func TestServer_renewRefusalIsSilent(t *testing.T) {
	s, tr := newTestServer(t, nil)

	hw := clientHW(0x04)
	foreign := netip.MustParseAddr("10.0.0.6")

	req := &dhcp4.Message{
		Op:            dhcp4.BootRequest,
		HType:         1,
		TransactionID: 1,
		ClientAddr:    foreign,
		ClientHWAddr:  hw,
		Options: dhcp4.Options{
			dhcp4.OptMessageType: {byte(dhcp4.Request)},
		},
	}

	s.handle(context.Background(), req)

	require.Nil(t, tr.lastSent)
	require.Zero(t, tr.broadcasts)
	require.Empty(t, tr.clientUnicast)
}

// RELEASE frees a bound lease and its pool reservation.
func TestServer_releaseFreesLease(t *testing.T) {
	s, _ := newTestServer(t, nil)

	hw := clientHW(0x05)
	client := clientIDFromHW(hw)
	addr, ok := s.chooseOfferAddress(client)
	require.True(t, ok)

	req := &dhcp4.Message{ClientHWAddr: hw, Options: dhcp4.Options{}}
	s.commitLease(req, client, addr)
	require.NotNil(t, s.leases.byClientID(client))

	release := &dhcp4.Message{
		Op:           dhcp4.BootRequest,
		ClientAddr:   addr,
		ClientHWAddr: hw,
		Options:      dhcp4.Options{dhcp4.OptMessageType: {byte(dhcp4.Release)}},
	}
	s.handle(context.Background(), release)

	require.Nil(t, s.leases.byClientID(client))
	require.True(t, s.pool.available(addr))
}

// A static lease's address is never inserted into the dynamic bound-leases
// index, even after a full commit cycle.
func TestServer_staticLeaseNeverEntersDynamicIndex(t *testing.T) {
	hw := clientHW(0x06)
	staticAddr := netip.MustParseAddr("192.168.1.50")

	s, tr := newTestServer(t, func(c *Config) {
		c.StaticLeases = []*Lease{{
			ClientID: clientIDFromHW(hw),
			Address:  staticAddr,
			HWAddr:   hw,
			IsStatic: true,
		}}
	})

	req := &dhcp4.Message{
		Op:           dhcp4.BootRequest,
		ClientHWAddr: hw,
		Options: dhcp4.Options{
			dhcp4.OptMessageType: {byte(dhcp4.Request)},
			dhcp4.OptServerID:    addrBytes(s.conf.Address),
			dhcp4.OptRequestedIP: addrBytes(staticAddr),
		},
	}

	s.handle(context.Background(), req)

	reply, err := dhcp4.Decode(tr.lastSent)
	require.NoError(t, err)
	require.Equal(t, dhcp4.Ack, reply.Type())

	require.Nil(t, s.leases.byAddress(staticAddr))
	require.NotNil(t, s.static.byAddress(staticAddr))
}

// Requested lease times are clamped to max; an absent or zero request gets
// the default.
func TestServer_requestedLeaseTimeClamp(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tooLong := &dhcp4.Message{Options: dhcp4.Options{dhcp4.OptLeaseTime: uint32Bytes(1_000_000)}}
	require.Equal(t, s.conf.MaxLeaseTime, s.requestedLeaseTime(tooLong))

	none := &dhcp4.Message{Options: dhcp4.Options{}}
	require.Equal(t, s.conf.DefaultLeaseTime, s.requestedLeaseTime(none))

	zero := &dhcp4.Message{Options: dhcp4.Options{dhcp4.OptLeaseTime: uint32Bytes(0)}}
	require.Equal(t, s.conf.DefaultLeaseTime, s.requestedLeaseTime(zero))
}

// The lease sweep releases expired leases' pool reservations so they become
// assignable again.
func TestServer_sweepReleasesExpiredLeases(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s, _ := newTestServer(t, func(c *Config) { c.Clock = clock })

	hw := clientHW(0x07)
	client := clientIDFromHW(hw)
	addr, ok := s.chooseOfferAddress(client)
	require.True(t, ok)

	req := &dhcp4.Message{ClientHWAddr: hw, Options: dhcp4.Options{}}
	s.commitLease(req, client, addr)
	require.False(t, s.pool.available(addr))

	clock.now = clock.now.Add(2 * s.conf.DefaultLeaseTime)
	s.sweep()

	require.True(t, s.pool.available(addr))
	require.Nil(t, s.leases.byClientID(client))
}

// DECLINE withholds the declined address from dynamic offers until the next
// sweep past its hold-down deadline, rather than leaking it permanently.
func TestServer_declineBlocksAddressUntilSwept(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s, _ := newTestServer(t, func(c *Config) { c.Clock = clock })

	hw := clientHW(0x09)
	addr, ok := s.chooseOfferAddress(clientIDFromHW(hw))
	require.True(t, ok)

	decline := &dhcp4.Message{
		Op:           dhcp4.BootRequest,
		ClientHWAddr: hw,
		Options: dhcp4.Options{
			dhcp4.OptMessageType: {byte(dhcp4.Decline)},
			dhcp4.OptRequestedIP: addrBytes(addr),
		},
	}
	s.handle(context.Background(), decline)

	require.False(t, s.pool.available(addr))

	clock.now = clock.now.Add(s.conf.DefaultLeaseTime / 2)
	s.sweep()
	require.False(t, s.pool.available(addr), "block must survive a sweep before its deadline")

	clock.now = clock.now.Add(s.conf.DefaultLeaseTime)
	s.sweep()
	require.True(t, s.pool.available(addr), "block must be lifted once its deadline passes")
}

// In relay-agent mode, a BOOTREQUEST is forwarded to the relay target with
// hops incremented and giaddr set, and a matching BOOTREPLY is forwarded on
// to the client with the relay-agent information stripped.
func TestServer_relayModeForwardsBothWays(t *testing.T) {
	relayTarget := netip.MustParseAddr("192.168.1.254")
	s, tr := newTestServer(t, func(c *Config) { c.RelayTarget = relayTarget })

	hw := clientHW(0x08)
	req := discover(hw, 42)
	s.handle(context.Background(), req)

	require.Len(t, tr.relayUnicast, 1)
	require.Equal(t, relayTarget, tr.relayUnicast[0])

	forwarded, err := dhcp4.Decode(tr.lastSent)
	require.NoError(t, err)
	require.Equal(t, uint8(1), forwarded.Hops)
	require.Equal(t, s.conf.Address, forwarded.GatewayAddr)

	reply := &dhcp4.Message{
		Op:            dhcp4.BootReply,
		TransactionID: 42,
		ClientHWAddr:  hw,
		GatewayAddr:   s.conf.Address,
		YourAddr:      netip.MustParseAddr("192.168.1.105"),
		Options: dhcp4.Options{
			dhcp4.OptMessageType:    {byte(dhcp4.Offer)},
			dhcp4.OptRelayAgentInfo: {1, 2, 0xaa, 0xbb},
		},
	}
	s.handle(context.Background(), reply)

	require.Len(t, tr.rawUnicasts, 1)

	fwd, err := dhcp4.Decode(tr.lastSent)
	require.NoError(t, err)
	_, hasInfo := fwd.Options[dhcp4.OptRelayAgentInfo]
	require.False(t, hasInfo)
}

// clientIDFromHW mirrors [clientIDFrom]'s synthetic-id fallback for a
// message carrying only a hardware address, for tests that need a
// ClientID without building a full Message.
func clientIDFromHW(hw net.HardwareAddr) (c ClientID) {
	b := make([]byte, 0, len(hw)+1)
	b = append(b, 0x01)
	b = append(b, hw...)

	return ClientID(b)
}

