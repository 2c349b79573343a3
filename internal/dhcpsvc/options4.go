package dhcpsvc

import (
	"net/netip"
	"time"

	"github.com/devnetd/devnetd/internal/dhcp4"
)

// Auxiliary-server-list option codes not otherwise named in [dhcp4], kept
// local to this file since nothing else in the codec needs them by name.
const (
	optSIPServers  dhcp4.OptionCode = 120
	optPOP3Servers dhcp4.OptionCode = 70
	optSMTPServers dhcp4.OptionCode = 69
	optLPRServers  dhcp4.OptionCode = 9
)

// buildOptions assembles the option set for an OFFER or ACK, in the order
// described by §4.2: server identifier, verbatim relay-agent info, lease
// time, subnet mask, router, boot server name/file, auxiliary server
// lists, timezone, IPv6-only-preferred, extra options, vendor options.
func (s *Server) buildOptions(
	msgType dhcp4.MessageType,
	reqOpts dhcp4.Options,
	leaseTime time.Duration,
) (opts dhcp4.Options, order []dhcp4.OptionCode) {
	opts = dhcp4.Options{
		dhcp4.OptMessageType: {byte(msgType)},
		dhcp4.OptServerID:    addrBytes(s.conf.Address),
	}
	order = []dhcp4.OptionCode{dhcp4.OptMessageType, dhcp4.OptServerID}

	if relayInfo, ok := reqOpts[dhcp4.OptRelayAgentInfo]; ok {
		opts[dhcp4.OptRelayAgentInfo] = relayInfo
		order = append(order, dhcp4.OptRelayAgentInfo)
	}

	if msgType == dhcp4.Nak {
		return opts, order
	}

	opts[dhcp4.OptLeaseTime] = uint32Bytes(uint32(leaseTime.Seconds()))
	order = append(order, dhcp4.OptLeaseTime)

	opts[dhcp4.OptSubnetMask] = maskBytes(s.conf.Subnet)
	order = append(order, dhcp4.OptSubnetMask)

	router := s.conf.RouterAddress
	if !router.IsValid() {
		router = s.conf.Address
	}
	opts[dhcp4.OptRouter] = addrBytes(router)
	order = append(order, dhcp4.OptRouter)

	if s.conf.BootServerName != "" {
		opts[dhcp4.OptServerName] = []byte(s.conf.BootServerName)
		order = append(order, dhcp4.OptServerName)
	}

	if s.conf.BootFilename != "" {
		opts[dhcp4.OptBootFileName] = []byte(s.conf.BootFilename)
		order = append(order, dhcp4.OptBootFileName)
	}

	s.addAddrList(opts, &order, dhcp4.OptDNSServer, s.conf.DNSServers)
	s.addAddrList(opts, &order, dhcp4.OptNTPServer, s.conf.NTPServers)
	s.addAddrList(opts, &order, optSIPServers, s.conf.SIPServers)
	s.addAddrList(opts, &order, optPOP3Servers, s.conf.POP3Servers)
	s.addAddrList(opts, &order, optSMTPServers, s.conf.SMTPServers)
	s.addAddrList(opts, &order, optLPRServers, s.conf.LPRServers)

	if s.conf.Timezone != "" {
		opts[dhcp4.OptTZDBTimezone] = []byte(s.conf.Timezone)
		order = append(order, dhcp4.OptTZDBTimezone)
	}

	if s.conf.IPv6OnlyPreferredTime > 0 && reqOpts.HasParam(dhcp4.OptIPv6OnlyPreferred) {
		opts[dhcp4.OptIPv6OnlyPreferred] = uint32Bytes(uint32(s.conf.IPv6OnlyPreferredTime.Seconds()))
		order = append(order, dhcp4.OptIPv6OnlyPreferred)
	}

	for _, extra := range s.conf.ExtraOptions {
		code := dhcp4.OptionCode(extra.Code)
		opts[code] = extra.Data
		order = append(order, code)
	}

	if len(s.conf.VendorOptions) > 0 {
		opts[dhcp4.OptVendorSpecific] = s.conf.VendorOptions
		order = append(order, dhcp4.OptVendorSpecific)
	}

	return opts, order
}

// addAddrList appends an auxiliary server list option, if non-empty, as the
// concatenation of each address's 4 bytes.
func (s *Server) addAddrList(
	opts dhcp4.Options,
	order *[]dhcp4.OptionCode,
	code dhcp4.OptionCode,
	addrs []netip.Addr,
) {
	if len(addrs) == 0 {
		return
	}

	b := make([]byte, 0, 4*len(addrs))
	for _, a := range addrs {
		b = append(b, addrBytes(a)...)
	}

	opts[code] = b
	*order = append(*order, code)
}

// addrBytes returns a's 4-byte big-endian form, or four zero bytes for an
// invalid address.
func addrBytes(a netip.Addr) (b []byte) {
	if !a.IsValid() {
		return []byte{0, 0, 0, 0}
	}

	a4 := a.As4()

	return a4[:]
}

// maskBytes returns p's network mask as 4 bytes.
func maskBytes(p netip.Prefix) (b []byte) {
	ones := p.Bits()
	var mask uint32
	if ones > 0 {
		mask = ^uint32(0) << uint(32-ones)
	}

	return []byte{byte(mask >> 24), byte(mask >> 16), byte(mask >> 8), byte(mask)}
}

// uint32Bytes encodes v as 4 big-endian bytes.
func uint32Bytes(v uint32) (b []byte) {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
