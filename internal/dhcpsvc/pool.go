package dhcpsvc

import (
	"net/netip"
	"time"

	"github.com/dchest/siphash"
)

// poolHashKey is the fixed 128-bit SipHash key used to turn a client
// identifier into a starting probe position within the dynamic pool.  It is
// fixed, not per-instance-random, so that the pool-bijection property in
// the testable-properties list holds across restarts: a given client
// identifier always starts its probe at the same offset.
var poolHashKey = [16]byte{
	0x64, 0x65, 0x76, 0x6e, 0x65, 0x74, 0x64, 0x2d,
	0x70, 0x6f, 0x6f, 0x6c, 0x2d, 0x6b, 0x65, 0x79,
}

// pool is the server's dynamic-assignment address range plus the sparse set
// of currently-leased offsets within it.
type pool struct {
	leased  *bitSet
	blocked map[netip.Addr]time.Time
	rng     ipRange
	server  netip.Addr
}

// newPool returns a *pool over rng, excluding the server's own address.
func newPool(rng ipRange, server netip.Addr) (p *pool) {
	return &pool{rng: rng, server: server, leased: newBitSet(), blocked: map[netip.Addr]time.Time{}}
}

// reserve marks addr as leased.  It is a no-op if addr is outside p's range.
func (p *pool) reserve(addr netip.Addr) {
	if p.rng.contains(addr) {
		p.leased.set(p.rng.offset(addr))
	}
}

// release marks addr as free again.
func (p *pool) release(addr netip.Addr) {
	if p.rng.contains(addr) {
		p.leased.clear(p.rng.offset(addr))
	}
}

// available reports whether addr may be dynamically assigned: inside the
// pool, not the server's own address, not already leased, and not under a
// temporary decline block.
func (p *pool) available(addr netip.Addr) (ok bool) {
	if !p.rng.contains(addr) || addr == p.server {
		return false
	}

	if p.leased.isSet(p.rng.offset(addr)) {
		return false
	}

	_, blocked := p.blocked[addr]

	return !blocked
}

// block withholds addr from dynamic offers until until, per the client
// DECLINE handling in RFC 2131 Section 4.3.3: a server that receives a
// DECLINE should not reoffer that address for some interval.  It is a
// no-op if addr is outside p's range.
func (p *pool) block(addr netip.Addr, until time.Time) {
	if p.rng.contains(addr) {
		p.blocked[addr] = until
	}
}

// sweepBlocks removes every decline block whose deadline is at or before
// now, making those addresses eligible for offers again.
func (p *pool) sweepBlocks(now time.Time) {
	for addr, until := range p.blocked {
		if !until.After(now) {
			delete(p.blocked, addr)
		}
	}
}

// find probes the pool starting at a position derived by hashing client,
// per the address-selection policy: hash the client id with a fixed
// 128-bit key to get a 64-bit digest, then probe positions
// (digest+i) mod size for i in [0, size), returning the first available
// one.  It returns errPoolExhausted if none is available.
func (p *pool) find(client ClientID) (addr netip.Addr, err error) {
	found := false
	p.probe(client, func(candidate netip.Addr) (stop bool) {
		addr, found = candidate, true

		return true
	})

	if !found {
		return netip.Addr{}, errPoolExhausted
	}

	return addr, nil
}

// probe calls visit, in probe order, with each pool position that passes
// [pool.available], until visit reports stop or the whole pool has been
// walked once.  It is the hook [Server.chooseOfferAddress] uses to layer an
// [AddressChecker] probe on top of the plain index-based availability
// check, without duplicating the hash-probe walk.
func (p *pool) probe(client ClientID, visit func(addr netip.Addr) (stop bool)) {
	size := p.rng.size()
	if size == 0 {
		return
	}

	digest := siphash.Hash(
		leUint64(poolHashKey[:8]),
		leUint64(poolHashKey[8:]),
		[]byte(client),
	)
	start := uint32(digest % uint64(size))

	for i := uint32(0); i < size; i++ {
		pos := (start + i) % size
		candidate := p.rng.at(pos)

		if p.available(candidate) && visit(candidate) {
			return
		}
	}
}

// leUint64 decodes an 8-byte slice as a little-endian uint64, matching the
// key-halves signature [siphash.Hash] expects.
func leUint64(b []byte) (v uint64) {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}
