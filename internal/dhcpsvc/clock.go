package dhcpsvc

import "time"

// Clock abstracts the boot clock used to compute and compare lease
// expirations.  Expirations live on a monotonic clock unaffected by
// wall-clock jumps (NTP steps, manual date changes); the persisted lease
// database instead records an absolute wall-clock instant, converted at load
// and save time, see [Server.loadLeases] and [Server.persist].
//
// The production implementation is [SystemClock]; tests inject a fake to
// make expiry assertions deterministic.
type Clock interface {
	// Now returns the current instant on the boot clock.
	Now() (now time.Time)
}

// SystemClock is the [Clock] backed by the real monotonic clock.
type SystemClock struct{}

// type check
var _ Clock = SystemClock{}

// Now implements the [Clock] interface for SystemClock.  Go's [time.Now]
// already carries a monotonic reading piggy-backed on the wall-clock value,
// which [time.Time.Sub] uses in preference to the wall clock whenever both
// operands have one; that is sufficient to satisfy the "unaffected by
// wall-clock jumps" requirement without a separate syscall.
func (SystemClock) Now() (now time.Time) {
	return time.Now()
}
