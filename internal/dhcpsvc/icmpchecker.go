package dhcpsvc

import (
	"fmt"
	"net/netip"
	"time"

	probing "github.com/go-ping/ping"
)

// ICMPChecker is an [AddressChecker] that probes a candidate address with a
// single ICMP echo request before it is offered, to catch another DHCP
// server (or a statically-configured host) already using it — the same
// precaution the teacher's v4Server.addrAvailable applies before a
// DISCOVER is answered.
//
// It is opt-in: the default [noopAddressChecker] assumes the operator's
// network has no rogue holders of addresses in the pool, and ICMP probing
// needs raw-socket privileges this module otherwise avoids requiring.
type ICMPChecker struct {
	Timeout time.Duration
}

// type check
var _ AddressChecker = (*ICMPChecker)(nil)

// IsAvailable implements the [AddressChecker] interface for *ICMPChecker.
func (c *ICMPChecker) IsAvailable(addr netip.Addr) (ok bool, err error) {
	pinger, err := probing.NewPinger(addr.String())
	if err != nil {
		return false, fmt.Errorf("creating pinger: %w", err)
	}

	pinger.Count = 1
	pinger.Timeout = c.Timeout
	pinger.SetPrivileged(true)

	if err = pinger.Run(); err != nil {
		return false, fmt.Errorf("running pinger: %w", err)
	}

	stats := pinger.Statistics()

	// No reply means nothing answered, so the address is free to assign.
	return stats.PacketsRecv == 0, nil
}
