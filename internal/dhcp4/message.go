// Package dhcp4 models the DHCPv4 wire format: the fixed BOOTP header
// described in RFC 2131 and the TLV option encoding described in RFC 2132.
//
// The actual byte-level encoding and decoding is delegated to
// [github.com/google/gopacket/layers.DHCPv4]; this package adds the
// option-ordering and options-budget policy a relay or server needs on top
// of it, and exposes the result as the [Message]/[Options] types the rest
// of this module works with.
package dhcp4

import (
	"net"
	"net/netip"
	"strconv"
)

// Op is the value of the BOOTP op field.
type Op uint8

// Op values, per RFC 2131 Section 2.
const (
	BootRequest Op = 1
	BootReply   Op = 2
)

// MessageType is the value of DHCP option 53.
type MessageType uint8

// MessageType values, per RFC 2132 Section 9.6.
const (
	MessageTypeNone MessageType = 0

	Discover MessageType = 1
	Offer    MessageType = 2
	Request  MessageType = 3
	Decline  MessageType = 4
	Ack      MessageType = 5
	Nak      MessageType = 6
	Release  MessageType = 7
	Inform   MessageType = 8
)

// String returns a human-readable name for t, for logging purposes.
func (t MessageType) String() (s string) {
	switch t {
	case Discover:
		return "DISCOVER"
	case Offer:
		return "OFFER"
	case Request:
		return "REQUEST"
	case Decline:
		return "DECLINE"
	case Ack:
		return "ACK"
	case Nak:
		return "NAK"
	case Release:
		return "RELEASE"
	case Inform:
		return "INFORM"
	default:
		return "UNKNOWN"
	}
}

// Header sizes and offsets, per RFC 2131 Section 2.
const (
	chaddrLen = 16

	// minMessageLen is the length of the fixed header plus the magic
	// cookie, before any options.
	minMessageLen = 236 + 4

	// minPacketLen is the smallest datagram RFC 2131 Section 2 asks
	// servers to pad replies to, so they survive routers enforcing a
	// historical minimum IP packet size.
	minPacketLen = 300

	// MinOptionsBudget is the smallest options budget a caller may supply
	// to [Encode]; it matches the minimum options-field length mandated by
	// RFC 2131 Section 2.
	MinOptionsBudget = 312
)

// Flags bits within the 16-bit flags field.
const (
	// FlagBroadcast is the "please send the reply as a broadcast" bit,
	// the high bit of the flags field.
	FlagBroadcast uint16 = 1 << 15
)

// Message is a decoded DHCPv4 packet: the fixed header plus its option set.
type Message struct {
	ClientAddr    netip.Addr // ciaddr
	YourAddr      netip.Addr // yiaddr
	NextServer    netip.Addr // siaddr
	GatewayAddr   netip.Addr // giaddr
	ClientHWAddr  net.HardwareAddr
	ServerName    string
	BootFilename  string
	Options       Options
	TransactionID uint32
	Secs          uint16
	Flags         uint16
	Op            Op
	HType         uint8
	Hops          uint8
}

// Broadcast reports whether the client requested a broadcast reply.
func (m *Message) Broadcast() (ok bool) {
	return m.Flags&FlagBroadcast != 0
}

// Type returns the message's DHCP message type, as carried in option 53, or
// [MessageTypeNone] if absent or malformed.
func (m *Message) Type() (t MessageType) {
	v, ok := m.Options[OptMessageType]
	if !ok || len(v) != 1 {
		return MessageTypeNone
	}

	return MessageType(v[0])
}

// ShortBuffer is returned by [Encode] when the supplied options budget is too
// small to hold the message's options.
type ShortBuffer struct {
	// Code is the option code whose emission overflowed the budget, or 0 if
	// the fixed header itself didn't fit.
	Code OptionCode

	// Budget is the options budget that was exceeded.
	Budget int
}

// Error implements the error interface for *ShortBuffer.
func (e *ShortBuffer) Error() (s string) {
	return "dhcp4: short buffer: option " + strconv.Itoa(int(e.Code)) +
		" does not fit in budget " + strconv.Itoa(e.Budget)
}

// Malformed is returned by [Decode] when the input cannot be parsed as a
// DHCPv4 message.
type Malformed struct {
	// Reason is a short description of what was wrong with the input.
	Reason string
}

// Error implements the error interface for *Malformed.
func (e *Malformed) Error() (s string) {
	return "dhcp4: malformed message: " + e.Reason
}
