package config

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/devnetd/devnetd/internal/dhcpsvc"
)

// extraOptionHandler decodes one option-value type.
type extraOptionHandler func(s string) (data []byte, err error)

// extraOptionHandlers maps the mini-language's type names to their decoder,
// grounded on the teacher's dhcpOptionParser (internal/dhcpd/options.go).
var extraOptionHandlers = map[string]extraOptionHandler{
	"hex":  hexOptionHandler,
	"ip":   ipOptionHandler,
	"ips":  ipsOptionHandler,
	"text": textOptionHandler,
}

// ParseExtraOption parses one "<code> <type> <value>" string from
// [DHCPConfig.ExtraOptions] into a [dhcpsvc.ExtraOption], per the mini
// language: "<code> hex <data>", "<code> ip <addr>",
// "<code> ips <addr,addr,...>", "<code> text <string>".
func ParseExtraOption(s string) (opt dhcpsvc.ExtraOption, err error) {
	s = strings.TrimSpace(s)

	parts := strings.SplitN(s, " ", 3)
	if len(parts) < 3 {
		return opt, fmt.Errorf("invalid option string %q: need at least three fields", s)
	}

	code64, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return opt, fmt.Errorf("invalid option string %q: parsing code: %w", s, err)
	}

	h, ok := extraOptionHandlers[parts[1]]
	if !ok {
		return opt, fmt.Errorf("invalid option string %q: unknown type %q", s, parts[1])
	}

	data, err := h(parts[2])
	if err != nil {
		return opt, fmt.Errorf("invalid option string %q: %w", s, err)
	}

	return dhcpsvc.ExtraOption{Code: byte(code64), Data: data}, nil
}

// ParseExtraOptions parses every entry in ss, per [ParseExtraOption].
func ParseExtraOptions(ss []string) (opts []dhcpsvc.ExtraOption, err error) {
	opts = make([]dhcpsvc.ExtraOption, 0, len(ss))
	for _, s := range ss {
		opt, parseErr := ParseExtraOption(s)
		if parseErr != nil {
			return nil, parseErr
		}

		opts = append(opts, opt)
	}

	return opts, nil
}

// hexOptionHandler decodes a hexadecimal byte string, e.g. "a1b2c3".
func hexOptionHandler(s string) (data []byte, err error) {
	return hex.DecodeString(s)
}

// ipOptionHandler decodes a single dotted IPv4 address into its 4-byte
// big-endian form.
func ipOptionHandler(s string) (data []byte, err error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return nil, err
	}

	if !addr.Is4() {
		return nil, fmt.Errorf("%q is not an IPv4 address", s)
	}

	a4 := addr.As4()

	return a4[:], nil
}

// ipsOptionHandler decodes a comma-separated list of dotted IPv4 addresses
// into their concatenated 4-byte forms.
func ipsOptionHandler(s string) (data []byte, err error) {
	for _, part := range strings.Split(s, ",") {
		b, ipErr := ipOptionHandler(strings.TrimSpace(part))
		if ipErr != nil {
			return nil, ipErr
		}

		data = append(data, b...)
	}

	return data, nil
}

// textOptionHandler returns s's raw bytes, unquoted.
func textOptionHandler(s string) (data []byte, err error) {
	return []byte(s), nil
}
