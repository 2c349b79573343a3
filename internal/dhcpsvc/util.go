package dhcpsvc

import (
	"log/slog"
	"net/netip"
	"time"
)

// slogError is a small convenience so call sites read `slogError(err)`
// instead of repeating `slog.Any("err", err)` throughout the dispatcher.
func slogError(err error) (attr slog.Attr) {
	return slog.Any("err", err)
}

// addrFromUint32 interprets v as a big-endian IPv4 address.
func addrFromUint32(v uint32) (a netip.Addr) {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// addrFromBytes interprets a 4-byte big-endian option payload as an IPv4
// address, returning the invalid [netip.Addr]{} if b isn't exactly 4 bytes
// or is all-zero.
func addrFromBytes(b []byte) (a netip.Addr) {
	if len(b) != 4 {
		return netip.Addr{}
	}

	if b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 0 {
		return netip.Addr{}
	}

	return netip.AddrFrom4([4]byte{b[0], b[1], b[2], b[3]})
}

// secondsToDuration converts a wire lease-time value to a [time.Duration].
func secondsToDuration(seconds uint32) (d time.Duration) {
	return time.Duration(seconds) * time.Second
}

// minDuration returns the smaller of a and b.
func minDuration(a, b time.Duration) (min time.Duration) {
	if a < b {
		return a
	}

	return b
}
