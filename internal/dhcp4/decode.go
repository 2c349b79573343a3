package dhcp4

import (
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Decode parses b as a DHCPv4 datagram, by handing it to
// [layers.DHCPv4.DecodeFromBytes].  It returns a [*Malformed] error if the
// fixed header is truncated, the magic cookie is missing, or an option tag
// is not followed by a length byte and that many payload bytes.
//
// Unknown option codes are preserved verbatim in the returned [Message]'s
// Options map, so that a relay or server that doesn't understand them can
// still re-emit them unchanged.
func Decode(b []byte) (m *Message, err error) {
	var d layers.DHCPv4
	if err = d.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return nil, &Malformed{Reason: err.Error()}
	}

	hw := d.ClientHWAddr
	if len(hw) > chaddrLen {
		hw = hw[:chaddrLen]
	}

	m = &Message{
		Op:            Op(d.Operation),
		HType:         uint8(d.HardwareType),
		Hops:          d.HardwareOpts,
		TransactionID: d.Xid,
		Secs:          d.Secs,
		Flags:         d.Flags,
		ClientAddr:    addrFrom(d.ClientIP),
		YourAddr:      addrFrom(d.YourClientIP),
		NextServer:    addrFrom(d.NextServerIP),
		GatewayAddr:   addrFrom(d.RelayAgentIP),
		ClientHWAddr:  append(net.HardwareAddr(nil), hw...),
		ServerName:    trimZero(d.ServerName),
		BootFilename:  trimZero(d.File),
		Options:       optionsFrom(d.Options),
	}

	return m, nil
}

// addrFrom converts ip, a 4-byte [net.IP] as produced by [layers.DHCPv4], to
// its [netip.Addr] form.  An all-zero field decodes as the invalid
// netip.Addr{}, matching the wire convention that 0.0.0.0 means "unset".
func addrFrom(ip net.IP) (a netip.Addr) {
	ip4 := ip.To4()
	if ip4 == nil || ip4.IsUnspecified() {
		return netip.Addr{}
	}

	return netip.AddrFrom4([4]byte(ip4))
}

// trimZero returns the leading NUL-terminated portion of b as a string.
func trimZero(b []byte) (s string) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}

	return string(b)
}

// optionsFrom converts a decoded [layers.DHCPOptions] slice into an
// [Options] map, concatenating repeated occurrences of the same code, as
// RFC 3396 permits for options that don't otherwise define repetition
// semantics.
func optionsFrom(raw layers.DHCPOptions) (opts Options) {
	opts = make(Options, len(raw))
	for _, opt := range raw {
		code := OptionCode(opt.Type)
		if code == OptPad || code == OptEnd {
			continue
		}

		opts[code] = append(opts[code], opt.Data...)
	}

	return opts
}
