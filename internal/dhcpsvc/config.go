package dhcpsvc

import (
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
)

// Config is the configuration for one DHCPv4 server instance.
type Config struct {
	// Logger is used to log server events.  It must not be nil.
	Logger *slog.Logger

	// Clock supplies the boot-clock instant used for lease expiration. If
	// nil, [SystemClock] is used.
	Clock Clock

	// AddressChecker probes a candidate address for conflicts before it is
	// offered.  If nil, no probing is performed.
	AddressChecker AddressChecker

	// Transport sends and receives DHCPv4 datagrams on the configured
	// interface.  It must not be nil.
	Transport Transport

	// OnLeaseChanged, if set, is invoked after every ACK and RELEASE.
	OnLeaseChanged func(event LeaseEvent)

	// DBFilePath is the path to the lease-persistence file.  Empty
	// disables persistence.
	DBFilePath string

	// Address is the server's own IPv4 address.
	Address netip.Addr

	// Subnet is the subnet the server serves.
	Subnet netip.Prefix

	// PoolOffset is the first host offset, within Subnet, usable for
	// dynamic assignment.
	PoolOffset uint32

	// PoolSize is the number of addresses, starting at PoolOffset, usable
	// for dynamic assignment.
	PoolSize uint32

	// DefaultLeaseTime is used when a client's REQUEST does not ask for a
	// specific lease time.
	DefaultLeaseTime time.Duration

	// MaxLeaseTime clamps any requested lease time.
	MaxLeaseTime time.Duration

	// StaticLeases are leases assigned out-of-band by configuration.
	StaticLeases []*Lease

	// RelayTarget, if valid, switches the server into relay-agent mode:
	// instead of originating replies, it forwards requests to this
	// address (§4.3).
	RelayTarget netip.Addr

	// AgentCircuitID and AgentRemoteID are injected into outgoing relay
	// requests' option 82 sub-options 1 and 2, when the server operates
	// in relay-agent mode and the upstream option is absent.
	AgentCircuitID []byte
	AgentRemoteID  []byte

	// RouterAddress, if valid, is emitted as the router option instead of
	// Address.
	RouterAddress netip.Addr

	// BootServerAddress and BootServerName/BootFilename configure the
	// next-server and sname/file header fields on ACK/OFFER.
	BootServerAddress netip.Addr
	BootServerName    string
	BootFilename      string

	// Timezone is a TZDB name string, emitted as option 100 when set.
	Timezone string

	// DNSServers, NTPServers, SIPServers, POP3Servers, SMTPServers, and
	// LPRServers are auxiliary server lists, each emitted as a
	// concatenation of 4-byte addresses.
	DNSServers  []netip.Addr
	NTPServers  []netip.Addr
	SIPServers  []netip.Addr
	POP3Servers []netip.Addr
	SMTPServers []netip.Addr
	LPRServers  []netip.Addr

	// ExtraOptions are caller-supplied options emitted in configured
	// order, before vendor-specific options.
	ExtraOptions []ExtraOption

	// VendorOptions, if non-empty, are packaged under option 43.
	VendorOptions []byte

	// IPv6OnlyPreferredTime, if non-zero, is emitted as option 108 when
	// the client's Parameter Request List names it.
	IPv6OnlyPreferredTime time.Duration

	// MaxOptionsLen bounds the size of the options area the codec may
	// produce.  If zero, [dhcp4.MinOptionsBudget] is used.
	MaxOptionsLen int
}

// ExtraOption is a single caller-supplied DHCP option.
type ExtraOption struct {
	Code byte
	Data []byte
}

// AddressChecker probes an address for conflicts.
type AddressChecker interface {
	// IsAvailable returns true if addr is free to assign.
	IsAvailable(addr netip.Addr) (ok bool, err error)
}

// noopAddressChecker is the default [AddressChecker] when none is
// configured: every address is reported available.
type noopAddressChecker struct{}

// type check
var _ AddressChecker = noopAddressChecker{}

// IsAvailable implements the [AddressChecker] interface for
// noopAddressChecker.
func (noopAddressChecker) IsAvailable(netip.Addr) (ok bool, err error) {
	return true, nil
}

// LeaseEventKind enumerates the kinds of [LeaseEvent].
type LeaseEventKind uint8

// LeaseEventKind values.
const (
	LeaseChanged LeaseEventKind = iota + 1
)

// LeaseEvent is passed to [Config.OnLeaseChanged].
type LeaseEvent struct {
	Lease *Lease
	Kind  LeaseEventKind
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (c *Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotNil("Logger", c.Logger),
		validate.NotNil("Transport", c.Transport),
		validate.Positive("PoolSize", int(c.PoolSize)),
		validate.Positive("DefaultLeaseTime", c.DefaultLeaseTime),
		validate.Positive("MaxLeaseTime", c.MaxLeaseTime),
	}

	if !c.Address.Is4() {
		errs = append(errs, fmt.Errorf("Address: %w", errors.ErrBadEnumValue))
	}

	if !c.Subnet.IsValid() || !c.Subnet.Addr().Is4() {
		errs = append(errs, fmt.Errorf("Subnet: %w", errors.ErrBadEnumValue))
	}

	if c.DefaultLeaseTime > c.MaxLeaseTime {
		errs = append(errs, errors.Error("DefaultLeaseTime must not exceed MaxLeaseTime"))
	}

	return errors.Join(errs...)
}

// hwAddrFrom parses a hardware-address string with [net.ParseMAC].
func hwAddrFrom(s string) (hw net.HardwareAddr, err error) {
	return net.ParseMAC(s)
}
