package dhcpsvc

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/netutil"

	"github.com/devnetd/devnetd/internal/dhcp4"
)

// handle dispatches one decoded BOOTREQUEST, per the table in §4.2.  It
// performs the lease sweep first, then routes by message type, and finally
// sends whatever reply (if any) the branch produced.
func (s *Server) handle(ctx context.Context, m *dhcp4.Message) {
	s.sweep()

	if s.conf.RelayTarget.IsValid() {
		s.handleRelayed(ctx, m)

		return
	}

	var r *outgoingReply

	switch m.Type() {
	case dhcp4.Discover:
		r = s.handleDiscover(m)
	case dhcp4.Request:
		r = s.handleRequest(m)
	case dhcp4.Release:
		s.handleRelease(m)
	case dhcp4.Decline:
		s.handleDecline(m)
	default:
		s.logger.DebugContext(ctx, "ignoring message", slog.Any("type", m.Type()))
	}

	if r != nil {
		s.send(ctx, m, r)
	}
}

// handleRelayed implements relay-agent mode (§4.3): BOOTREQUESTs are
// forwarded to the relay target instead of answered directly; BOOTREPLYs
// received from the relay target are validated, stripped of relay-agent
// info, and forwarded on to the client using the normal transport-selection
// rules.
func (s *Server) handleRelayed(ctx context.Context, m *dhcp4.Message) {
	switch m.Op {
	case dhcp4.BootRequest:
		s.handleForward(m)
	case dhcp4.BootReply:
		if s.relayReply(m) {
			s.send(ctx, m, &outgoingReply{msg: m})
		}
	}
}

// handleForward implements relay-agent mode's outbound half (§4.3): forward
// the request to the configured relay target instead of answering it
// directly.
func (s *Server) handleForward(m *dhcp4.Message) {
	if err := s.relayRequest(m); err != nil {
		s.logger.Debug("relaying request", slogError(err))

		return
	}

	raw, err := dhcp4.Encode(m, s.optionsBudget(), nil)
	if err != nil {
		s.logger.Debug("encoding relayed request", slogError(err))

		return
	}

	if err = s.conf.Transport.SendRelayUnicast(s.conf.RelayTarget, raw); err != nil {
		s.logger.Debug("sending relayed request", slogError(err))
	}
}

// handleDiscover implements the DISCOVER branch of §4.2.
func (s *Server) handleDiscover(m *dhcp4.Message) (r *outgoingReply) {
	client, ok := clientIDFrom(m)
	if !ok {
		return nil
	}

	addr, ok := s.chooseOfferAddress(client)
	if !ok {
		return nil
	}

	return s.buildReply(m, dhcp4.Offer, addr, s.conf.DefaultLeaseTime)
}

// chooseOfferAddress implements the address-selection policy for DISCOVER:
// static lease, then existing bound lease, then hash-probe of the pool.
func (s *Server) chooseOfferAddress(client ClientID) (addr netip.Addr, ok bool) {
	if l := s.static.byClientID(client); l != nil {
		return l.Address, true
	}

	if l := s.leases.byClientID(client); l != nil {
		return l.Address, true
	}

	var chosen netip.Addr
	s.pool.probe(client, func(candidate netip.Addr) (stop bool) {
		available, err := s.checker.IsAvailable(candidate)
		if err != nil {
			s.logger.Debug("checking address availability", slogError(err))

			return false
		}

		if !available {
			return false
		}

		chosen = candidate

		return true
	})

	return chosen, chosen.IsValid()
}

// handleRequest implements the three REQUEST branches of §4.2, selected by
// which of server-id/requested-ip/ciaddr are present.
func (s *Server) handleRequest(m *dhcp4.Message) (r *outgoingReply) {
	client, ok := clientIDFrom(m)
	if !ok {
		return nil
	}

	srvID, hasSrvID := m.Options.Uint32(dhcp4.OptServerID)
	reqIPBytes, hasReqIP := m.Options[dhcp4.OptRequestedIP]
	hasCiaddr := m.ClientAddr.IsValid()

	switch {
	case hasSrvID && !hasCiaddr && hasReqIP:
		if netip.AddrFrom4(s.conf.Address.As4()) != addrFromUint32(srvID) {
			return nil
		}

		return s.handleSelecting(m, client, addrFromBytes(reqIPBytes), false)

	case !hasSrvID && hasReqIP && !hasCiaddr:
		return s.handleSelecting(m, client, addrFromBytes(reqIPBytes), true)

	case !hasSrvID && hasCiaddr:
		return s.handleRenew(m, client, m.ClientAddr)

	default:
		return nil
	}
}

// handleSelecting implements the SELECTING and INIT-REBOOT REQUEST
// branches, which share the same assignability check but differ in whether
// a refusal produces a NAK or silence.
func (s *Server) handleSelecting(
	m *dhcp4.Message,
	client ClientID,
	addr netip.Addr,
	initReboot bool,
) (r *outgoingReply) {
	if !addr.IsValid() {
		return nil
	}

	if !s.assignable(client, addr) {
		if initReboot {
			return s.buildReply(m, dhcp4.Nak, netip.Addr{}, 0)
		}

		return nil
	}

	return s.commitLease(m, client, addr)
}

// handleRenew implements the RENEWING/REBINDING REQUEST branch.
func (s *Server) handleRenew(m *dhcp4.Message, client ClientID, addr netip.Addr) (r *outgoingReply) {
	if !s.assignable(client, addr) {
		return nil
	}

	return s.commitLease(m, client, addr)
}

// assignable implements the assignability check shared by all REQUEST
// branches.
func (s *Server) assignable(client ClientID, addr netip.Addr) (ok bool) {
	if addr == s.conf.Address {
		return false
	}

	if static := s.static.byClientID(client); static != nil {
		return static.Address == addr
	}

	if !s.pool.rng.contains(addr) {
		return false
	}

	if existing := s.leases.byClientID(client); existing != nil {
		return existing.Address == addr
	}

	return s.pool.available(addr)
}

// commitLease implements the ACK side-effects: recompute expiration, upsert
// the lease in both indices, invoke the lease-changed callback.  A client
// whose address comes from a static lease never touches the dynamic index
// at all — per the invariant that a static address must never also appear
// in bound_leases, the static store's own record is authoritative and the
// server merely acknowledges it.
func (s *Server) commitLease(m *dhcp4.Message, client ClientID, addr netip.Addr) (r *outgoingReply) {
	leaseTime := s.requestedLeaseTime(m)

	if static := s.static.byClientID(client); static != nil && static.Address == addr {
		s.notifyLeaseChanged(static)

		return s.buildReply(m, dhcp4.Ack, addr, leaseTime)
	}

	l := s.leases.byClientID(client)
	if l == nil {
		l = &Lease{ClientID: client, Address: addr}
		l.HWAddr = append([]byte(nil), m.ClientHWAddr...)
		l.HType = m.HType
		l.Gateway = m.GatewayAddr
		l.updateExpiry(s.clock.Now(), leaseTime)

		if err := s.leases.insert(l); err != nil {
			s.logger.Debug("inserting lease", slogError(err))

			return nil
		}

		s.pool.reserve(addr)
	} else {
		oldAddr := l.Address
		l.Address = addr
		l.HWAddr = append([]byte(nil), m.ClientHWAddr...)
		l.Gateway = m.GatewayAddr
		l.updateExpiry(s.clock.Now(), leaseTime)

		if err := s.leases.update(l); err != nil {
			s.logger.Debug("updating lease", slogError(err))

			return nil
		}

		if oldAddr != addr {
			s.pool.release(oldAddr)
			s.pool.reserve(addr)
		}
	}

	if hostname, ok := m.Options.String(dhcp4.OptHostname); ok {
		if hErr := netutil.ValidateHostname(hostname); hErr != nil {
			s.logger.Debug("ignoring invalid hostname option", "hostname", hostname, slogError(hErr))
		} else {
			l.Hostname = hostname
		}
	}

	s.persist()
	s.notifyLeaseChanged(l)

	return s.buildReply(m, dhcp4.Ack, addr, leaseTime)
}

// requestedLeaseTime returns the client's requested lease time, clamped to
// [1, MaxLeaseTime], per the lease-time-clamp testable property.
func (s *Server) requestedLeaseTime(m *dhcp4.Message) (ttl time.Duration) {
	requested, ok := m.Options.Uint32(dhcp4.OptLeaseTime)
	if !ok {
		return s.conf.DefaultLeaseTime
	}

	t := secondsToDuration(requested)
	if t > s.conf.MaxLeaseTime {
		return s.conf.MaxLeaseTime
	}

	if t <= 0 {
		return minDuration(s.conf.DefaultLeaseTime, s.conf.MaxLeaseTime)
	}

	return t
}

// handleRelease implements the RELEASE branch: free the bound lease
// matching ciaddr, if any.
func (s *Server) handleRelease(m *dhcp4.Message) {
	client, ok := clientIDFrom(m)
	if !ok {
		return
	}

	l := s.leases.byClientID(client)
	if l == nil || l.Address != m.ClientAddr {
		return
	}

	s.leases.removeByClient(client)
	s.pool.release(l.Address)
	s.persist()
	s.notifyLeaseChanged(l)
}

// handleDecline implements the DECLINE branch: log the event and withhold
// the declined address from dynamic offers for one default lease time, so
// the conflict it reported has a chance to be resolved or investigated
// before the address is handed to another client.  The block is lifted by
// the next [Server.sweep] once that interval passes.
func (s *Server) handleDecline(m *dhcp4.Message) {
	client, ok := clientIDFrom(m)
	if !ok {
		return
	}

	addr := addrFromBytes(m.Options[dhcp4.OptRequestedIP])
	if !addr.IsValid() {
		addr = m.ClientAddr
	}

	s.logger.Warn("client declined address", "client_id", client.String(), "address", addr)
	s.metrics.declines.Inc()

	s.pool.block(addr, s.clock.Now().Add(s.conf.DefaultLeaseTime))
}
