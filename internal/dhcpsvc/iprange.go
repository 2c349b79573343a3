package dhcpsvc

import (
	"fmt"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
)

// ipRange is a contiguous, inclusive range of IPv4 addresses, used to model
// the server's dynamic-assignment pool.
type ipRange struct {
	start netip.Addr
	end   netip.Addr
}

// newIPRange validates and constructs an *ipRange from offset and size
// within subnet.
func newIPRange(subnet netip.Prefix, offset, size uint32) (r ipRange, err error) {
	if size == 0 {
		return ipRange{}, errors.Error("pool size must be positive")
	}

	base := subnet.Masked().Addr()
	hostBits := 32 - subnet.Bits()
	maxHosts := uint32(1) << uint(hostBits)

	if uint64(offset)+uint64(size) > uint64(maxHosts) {
		return ipRange{}, fmt.Errorf("pool [%d,%d) overflows subnet %s", offset, offset+size, subnet)
	}

	start, err := addrAddOffset(base, offset)
	if err != nil {
		return ipRange{}, err
	}

	end, err := addrAddOffset(base, offset+size-1)
	if err != nil {
		return ipRange{}, err
	}

	return ipRange{start: start, end: end}, nil
}

// addrAddOffset returns base shifted forward by offset host addresses.
func addrAddOffset(base netip.Addr, offset uint32) (a netip.Addr, err error) {
	b4 := base.As4()
	n := uint32(b4[0])<<24 | uint32(b4[1])<<16 | uint32(b4[2])<<8 | uint32(b4[3])
	n += offset

	return netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}), nil
}

// contains reports whether addr falls within r.
func (r ipRange) contains(addr netip.Addr) (ok bool) {
	return addr.Is4() && !addr.Less(r.start) && !r.end.Less(addr)
}

// size returns the number of addresses in r.
func (r ipRange) size() (n uint32) {
	return r.offset(r.end) + 1
}

// offset returns addr's zero-based position within r; it assumes
// r.contains(addr).
func (r ipRange) offset(addr netip.Addr) (n uint32) {
	s4 := r.start.As4()
	a4 := addr.As4()

	sn := uint32(s4[0])<<24 | uint32(s4[1])<<16 | uint32(s4[2])<<8 | uint32(s4[3])
	an := uint32(a4[0])<<24 | uint32(a4[1])<<16 | uint32(a4[2])<<8 | uint32(a4[3])

	return an - sn
}

// at returns the address at zero-based position n within r.
func (r ipRange) at(n uint32) (addr netip.Addr) {
	a, _ := addrAddOffset(r.start, n)

	return a
}

// String implements the [fmt.Stringer] interface for ipRange.
func (r ipRange) String() (s string) {
	return fmt.Sprintf("%s-%s", r.start, r.end)
}
