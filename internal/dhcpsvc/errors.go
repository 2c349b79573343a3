package dhcpsvc

import "github.com/AdguardTeam/golibs/errors"

const (
	// errNilConfig is returned when a nil config is passed to [New].
	errNilConfig errors.Error = "config is nil"

	// errNoSuchLease is returned when an update or removal names a client
	// with no existing lease.
	errNoSuchLease errors.Error = "no such lease"

	// errPoolExhausted is returned by the pool allocator when every
	// position in the dynamic range is taken.
	errPoolExhausted errors.Error = "address pool exhausted"

	// errAddressUnavailable is returned when a requested address fails
	// the assignability check.
	errAddressUnavailable errors.Error = "address unavailable"
)
