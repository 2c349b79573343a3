package dhcpsvc

import (
	"encoding/hex"
	"net"

	"github.com/devnetd/devnetd/internal/dhcp4"
)

// ClientID is an opaque client identifier, RFC 2131's "client identifier":
// a non-empty byte sequence of length 1..255.  Two clients are the same iff
// their ClientIDs are byte-equal.
//
// ClientID is used as a Go map key, so it must be a comparable type; a
// string is the natural representation of an immutable byte sequence for
// that purpose.
type ClientID string

// maxClientIDLen is the largest length a [ClientID] may have, per RFC 2132
// Section 9.14 (option data length is one byte, not counting the code and
// length octets themselves, here implicitly bounded to 255).
const maxClientIDLen = 255

// clientIDFrom derives the client identifier for an incoming message: the
// value of option 61 if present, or else a synthetic identifier
// "0x01 || chaddr[:hlen]" built from the link-layer address, per RFC 2131
// Section 4.2.
func clientIDFrom(m *dhcp4.Message) (id ClientID, ok bool) {
	if b, has := m.Options[dhcp4.OptClientID]; has && len(b) > 0 && len(b) <= maxClientIDLen {
		return ClientID(b), true
	}

	if len(m.ClientHWAddr) == 0 {
		return "", false
	}

	buf := make([]byte, 0, 1+len(m.ClientHWAddr))
	buf = append(buf, 0x01)
	buf = append(buf, m.ClientHWAddr...)

	return ClientID(buf), true
}

// HWAddr returns the hardware address encoded by a synthetic
// (type-1-prefixed) client identifier, or nil if id does not have that
// shape.
func (id ClientID) HWAddr() (hw net.HardwareAddr) {
	b := []byte(id)
	if len(b) < 2 || b[0] != 0x01 {
		return nil
	}

	return net.HardwareAddr(b[1:])
}

// String returns id's hex encoding, for logging and persistence.
func (id ClientID) String() (s string) {
	return hex.EncodeToString([]byte(id))
}
