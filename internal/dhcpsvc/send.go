package dhcpsvc

import (
	"context"

	"github.com/devnetd/devnetd/internal/dhcp4"
)

// send implements the transport-selection cascade for replies, per §4.2's
// closing bullet list: giaddr unicast, else ciaddr unicast (non-NAK), else
// broadcast (NAK or client requested it), else raw L2 unicast to the
// client's hardware address.
//
// req carries the addressing context (giaddr/ciaddr/broadcast flag/chaddr);
// r carries the reply payload and its option order.  For the relay-reply
// forwarding path, req and r.msg are the same message.
func (s *Server) send(ctx context.Context, req *dhcp4.Message, r *outgoingReply) {
	raw, err := dhcp4.Encode(r.msg, s.optionsBudget(), r.order)
	if err != nil {
		s.logger.DebugContext(ctx, "encoding reply", slogError(err))

		return
	}

	t := s.conf.Transport
	isNak := r.msg.Type() == dhcp4.Nak

	switch {
	case req.GatewayAddr.IsValid():
		err = t.SendRelayUnicast(req.GatewayAddr, raw)
	case req.ClientAddr.IsValid() && !isNak:
		err = t.SendClientUnicast(req.ClientAddr, raw)
	case req.Broadcast() || isNak:
		err = t.SendBroadcast(raw)
	default:
		err = t.SendRawUnicast(req.ClientHWAddr, r.msg.YourAddr, raw)
	}

	if err != nil {
		s.logger.DebugContext(ctx, "sending reply", slogError(err))
	}
}
