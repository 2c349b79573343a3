package dhcp4

import (
	"net"
	"net/netip"
	"slices"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Encode serializes m into a DHCPv4 datagram, using [layers.DHCPv4] for the
// wire encoding.  optionsBudget bounds the number of bytes available for the
// options area (including the trailing [OptEnd] marker); callers should
// supply at least [MinOptionsBudget].
//
// Encode returns a [*ShortBuffer] if the options, in the order given by
// order (or, if order is nil, by ascending option code), do not fit in the
// budget.
func Encode(m *Message, optionsBudget int, order []OptionCode) (b []byte, err error) {
	opts, err := buildOptions(m.Options, order, optionsBudget)
	if err != nil {
		return nil, err
	}

	d := &layers.DHCPv4{
		Operation:    layers.DHCPOp(m.Op),
		HardwareType: layers.LinkType(m.HType),
		HardwareLen:  uint8(len(m.ClientHWAddr)),
		HardwareOpts: m.Hops,
		Xid:          m.TransactionID,
		Secs:         m.Secs,
		Flags:        m.Flags,
		ClientIP:     addrToIP(m.ClientAddr),
		YourClientIP: addrToIP(m.YourAddr),
		NextServerIP: addrToIP(m.NextServer),
		RelayAgentIP: addrToIP(m.GatewayAddr),
		ClientHWAddr: m.ClientHWAddr,
		ServerName:   []byte(m.ServerName),
		File:         []byte(m.BootFilename),
		Options:      opts,
	}

	buf := gopacket.NewSerializeBuffer()
	if err = d.SerializeTo(buf, gopacket.SerializeOptions{FixLengths: true}); err != nil {
		return nil, err
	}

	b = buf.Bytes()
	if len(b) < minPacketLen {
		// BOOTP minimum padding so replies survive routers enforcing a
		// historical minimum IP packet size.
		b = append(b, make([]byte, minPacketLen-len(b))...)
	}

	return b, nil
}

// addrToIP converts a to the 4-byte [net.IP] form [layers.DHCPv4] expects,
// or net.IPv4zero if a is the zero value.
func addrToIP(a netip.Addr) (ip net.IP) {
	if !a.IsValid() {
		return net.IPv4zero
	}

	a4 := a.As4()

	return net.IP(a4[:])
}

// buildOptions serializes opts as a [layers.DHCPOptions] slice terminated by
// [OptEnd], within budget bytes (including the terminator).  order, if
// non-nil, determines emission order; options not listed in order are
// appended in ascending code order afterward.
func buildOptions(opts Options, order []OptionCode, budget int) (out layers.DHCPOptions, err error) {
	emitted := make(map[OptionCode]bool, len(opts))
	used := 0

	emit := func(code OptionCode) error {
		if emitted[code] {
			return nil
		}

		v, ok := opts[code]
		if !ok {
			return nil
		}

		emitted[code] = true

		return appendOption(&out, &used, code, v, budget)
	}

	for _, code := range order {
		if err = emit(code); err != nil {
			return nil, err
		}
	}

	codes := make([]OptionCode, 0, len(opts))
	for code := range opts {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	for _, code := range codes {
		if err = emit(code); err != nil {
			return nil, err
		}
	}

	if used+1 > budget {
		return nil, &ShortBuffer{Code: OptEnd, Budget: budget}
	}

	out = append(out, layers.NewDHCPOption(layers.DHCPOpt(OptEnd), nil))

	return out, nil
}

// appendOption appends code's value v to *out as one or more DHCP options,
// splitting the payload across multiple occurrences of up to 255 bytes each
// per RFC 3396, and fails if the result would not fit in budget.  used
// tracks the running byte count already committed to *out.
func appendOption(out *layers.DHCPOptions, used *int, code OptionCode, v []byte, budget int) (err error) {
	if len(v) == 0 {
		if *used+2 > budget {
			return &ShortBuffer{Code: code, Budget: budget}
		}

		*out = append(*out, layers.NewDHCPOption(layers.DHCPOpt(code), nil))
		*used += 2

		return nil
	}

	for len(v) > 0 {
		chunk := v
		if len(chunk) > 255 {
			chunk = chunk[:255]
		}
		v = v[len(chunk):]

		if *used+2+len(chunk) > budget {
			return &ShortBuffer{Code: code, Budget: budget}
		}

		*out = append(*out, layers.NewDHCPOption(layers.DHCPOpt(code), chunk))
		*used += 2 + len(chunk)
	}

	return nil
}
