package dhcpsvc

import (
	"context"
	"log/slog"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/devnetd/devnetd/internal/dhcp4"
)

// Server is one DHCPv4 server instance: one address pool, one pair of
// dynamic/static lease indices, bound to one [Transport].
//
// Per the single-authority design note, leases enter and leave the dynamic
// and static sets only through leases/static, the two [leaseIndex]
// instances it owns; a renewal updates the fields of an already-indexed
// [Lease] in place.
type Server struct {
	conf    *Config
	logger  *slog.Logger
	clock   Clock
	checker AddressChecker
	pool    *pool
	leases  *leaseIndex
	static  *leaseIndex
	metrics *metrics
	running atomic.Bool
}

// New validates conf and constructs a *Server ready to [Server.Start].
func New(conf *Config, ifaceName string) (s *Server, err error) {
	if conf == nil {
		return nil, errNilConfig
	}

	if err = conf.Validate(); err != nil {
		return nil, errors.Annotate(err, "validating config: %w")
	}

	rng, err := newIPRange(conf.Subnet, conf.PoolOffset, conf.PoolSize)
	if err != nil {
		return nil, errors.Annotate(err, "building pool range: %w")
	}

	clock := conf.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	checker := conf.AddressChecker
	if checker == nil {
		checker = noopAddressChecker{}
	}

	s = &Server{
		conf:    conf,
		logger:  conf.Logger,
		clock:   clock,
		checker: checker,
		pool:    newPool(rng, conf.Address),
		leases:  newLeaseIndex(),
		static:  newLeaseIndex(),
		metrics: newMetrics(nil, ifaceName),
	}

	for _, l := range conf.StaticLeases {
		l.IsStatic = true
		if err = s.static.insert(l); err != nil {
			return nil, errors.Annotate(err, "loading static lease: %w")
		}

		s.pool.reserve(l.Address)
	}

	if conf.DBFilePath != "" {
		if err = s.loadLeases(); err != nil {
			return nil, errors.Annotate(err, "loading lease database: %w")
		}
	}

	return s, nil
}

// Start runs the server's receive loop until [Server.Shutdown] is called.
// Canceling ctx does not interrupt a pending receive; Start returns once a
// receive fails while ctx is canceled.  It is meant to be run in its own goroutine,
// matching the teacher's one-goroutine-per-interface pattern
// (`go srv.serveEther4(...)`).
func (s *Server) Start(ctx context.Context) (err error) {
	s.running.Store(true)

	for s.running.Load() {
		raw, err := s.conf.Transport.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			s.logger.DebugContext(ctx, "receiving datagram", slogError(err))

			continue
		}

		s.handleDatagram(ctx, raw)
	}

	return nil
}

// handleDatagram decodes one raw datagram and dispatches it, recovering
// from a malformed-input error the way the outer event loop is specified to
// (§7): log and continue, never propagate.
func (s *Server) handleDatagram(ctx context.Context, raw []byte) {
	m, err := dhcp4.Decode(raw)
	if err != nil {
		s.logger.DebugContext(ctx, "decoding datagram", slogError(err))
		s.metrics.dropped.Inc()

		return
	}

	if m.Op != dhcp4.BootRequest && m.Op != dhcp4.BootReply {
		return
	}

	s.handle(ctx, m)
}

// Shutdown stops the receive loop and closes the transport.
func (s *Server) Shutdown(ctx context.Context) (err error) {
	s.running.Store(false)

	return s.conf.Transport.Close()
}

// Leases returns a snapshot of every dynamic lease currently held.
func (s *Server) Leases() (leases []*Lease) {
	return s.leases.all()
}

// sweep performs the lease-sweep-on-every-message rule: expire every lease
// whose expiry has passed as of now, freeing its pool reservation, and lift
// every decline block whose hold-down interval has elapsed.
func (s *Server) sweep() {
	now := s.clock.Now()

	for _, l := range s.leases.sweep(now) {
		s.pool.release(l.Address)
		s.metrics.leasesExpired.Inc()
	}

	s.pool.sweepBlocks(now)
}

// notifyLeaseChanged invokes the configured callback, if any.
func (s *Server) notifyLeaseChanged(l *Lease) {
	s.metrics.leasesIssued.Inc()

	if s.conf.OnLeaseChanged != nil {
		s.conf.OnLeaseChanged(LeaseEvent{Kind: LeaseChanged, Lease: l.Clone()})
	}
}

// optionsBudget returns the configured options-area size limit, defaulting
// to [dhcp4.MinOptionsBudget].
func (s *Server) optionsBudget() (budget int) {
	if s.conf.MaxOptionsLen > 0 {
		return s.conf.MaxOptionsLen
	}

	return dhcp4.MinOptionsBudget
}

// outgoingReply bundles a built [dhcp4.Message] with the option-emission
// order [Server.buildOptions] computed for it, since the wire codec takes
// order as a separate argument to [dhcp4.Encode].
type outgoingReply struct {
	msg   *dhcp4.Message
	order []dhcp4.OptionCode
}

// buildReply assembles the full reply for an OFFER, ACK, or NAK, per §4.2's
// option-composition list.
func (s *Server) buildReply(
	req *dhcp4.Message,
	msgType dhcp4.MessageType,
	yourAddr netip.Addr,
	leaseTime time.Duration,
) (r *outgoingReply) {
	opts, order := s.buildOptions(msgType, req.Options, leaseTime)

	m := &dhcp4.Message{
		Op:            dhcp4.BootReply,
		HType:         req.HType,
		TransactionID: req.TransactionID,
		Secs:          req.Secs,
		Flags:         req.Flags,
		ClientAddr:    req.ClientAddr,
		GatewayAddr:   req.GatewayAddr,
		ClientHWAddr:  req.ClientHWAddr,
		Options:       opts,
	}

	if msgType != dhcp4.Nak {
		m.YourAddr = yourAddr
	}

	if s.conf.BootServerAddress.IsValid() {
		m.NextServer = s.conf.BootServerAddress
	}

	m.ServerName = s.conf.BootServerName
	m.BootFilename = s.conf.BootFilename

	if msgType == dhcp4.Nak {
		s.metrics.naksSent.Inc()
	}

	return &outgoingReply{msg: m, order: order}
}
