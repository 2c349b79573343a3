package dhcpsvc

import (
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/devnetd/devnetd/internal/dhcp4"
)

// errTooManyHops is logged and the datagram dropped when a relayed
// BOOTREQUEST's hop count would reach the RFC 2131 Section 4.2 limit.
const errTooManyHops errors.Error = "relay: too many hops"

const maxHops = 16

// relayRequest implements the outbound half of relay-agent mode (§4.3): it
// mutates m in place to become the forwarded BOOTREQUEST, or returns
// [errTooManyHops] if it must be dropped.
func (s *Server) relayRequest(m *dhcp4.Message) (err error) {
	if m.Hops >= maxHops-1 {
		return errTooManyHops
	}

	m.Hops++

	if !m.GatewayAddr.IsValid() {
		m.GatewayAddr = s.conf.Address
	}

	if _, hasInfo := m.Options[dhcp4.OptRelayAgentInfo]; !hasInfo {
		sub := dhcp4.EncodeRelaySubOptions(s.conf.AgentCircuitID, s.conf.AgentRemoteID)
		if len(sub) > 0 {
			m.Options[dhcp4.OptRelayAgentInfo] = sub
		}
	}

	return nil
}

// relayReply implements the inbound half of relay-agent mode: validating and
// stripping a BOOTREPLY received from the relay target before it is
// forwarded on to the client using the normal transport-selection rules.
// It reports false if the reply should be dropped (giaddr mismatch).
func (s *Server) relayReply(m *dhcp4.Message) (ok bool) {
	if m.GatewayAddr != s.conf.Address {
		return false
	}

	delete(m.Options, dhcp4.OptRelayAgentInfo)

	// giaddr has now been consumed by this hop; clear it so the transport-
	// selection rules fall through to ciaddr/broadcast/raw-unicast instead
	// of looping the reply back to this relay's own address.
	m.GatewayAddr = netip.Addr{}

	return true
}
