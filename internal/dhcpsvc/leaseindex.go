package dhcpsvc

import (
	"net/netip"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
)

// leaseIndex is the dual-indexed lease store: every lease it holds is
// reachable both by client identifier and by address, and the two views are
// always kept in agreement.  leaseIndex is the sole authority over lease
// lifetime — [Lease] values never self-remove; every mutation funnels
// through insert/remove/sweep here.
type leaseIndex struct {
	mu       *sync.RWMutex
	byClient map[ClientID]*Lease
	byAddr   map[netip.Addr]*Lease
}

// newLeaseIndex returns an empty *leaseIndex.
func newLeaseIndex() (idx *leaseIndex) {
	return &leaseIndex{
		mu:       &sync.RWMutex{},
		byClient: map[ClientID]*Lease{},
		byAddr:   map[netip.Addr]*Lease{},
	}
}

// errDuplicateAddress and errDuplicateClient are returned by insert when the
// lease would violate the dual-index consistency invariant.
const (
	errDuplicateAddress errors.Error = "address already leased"
	errDuplicateClient  errors.Error = "client already has a lease"
)

// byClientID returns the lease for client, or nil if there is none.
func (idx *leaseIndex) byClientID(client ClientID) (l *Lease) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.byClient[client]
}

// byAddress returns the lease for addr, or nil if there is none.
func (idx *leaseIndex) byAddress(addr netip.Addr) (l *Lease) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.byAddr[addr]
}

// insert adds l to both indices.  It returns an error, without mutating
// either index, if l's address or client id is already present.
func (idx *leaseIndex) insert(l *Lease) (err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.byAddr[l.Address]; ok {
		return errDuplicateAddress
	}

	if _, ok := idx.byClient[l.ClientID]; ok {
		return errDuplicateClient
	}

	idx.byAddr[l.Address] = l
	idx.byClient[l.ClientID] = l

	return nil
}

// update replaces the lease for l.ClientID, which must already exist, moving
// it to a new address if l.Address differs from the existing lease's.  It
// returns an error, without mutating either index, if the new address is
// already held by a different client.
func (idx *leaseIndex) update(l *Lease) (err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	old, ok := idx.byClient[l.ClientID]
	if !ok {
		return errNoSuchLease
	}

	if l.Address != old.Address {
		if existing, ok := idx.byAddr[l.Address]; ok && existing.ClientID != l.ClientID {
			return errDuplicateAddress
		}

		delete(idx.byAddr, old.Address)
	}

	idx.byAddr[l.Address] = l
	idx.byClient[l.ClientID] = l

	return nil
}

// removeByClient removes the lease for client from both indices.  It
// reports whether a lease was present.
func (idx *leaseIndex) removeByClient(client ClientID) (removed bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	l, ok := idx.byClient[client]
	if !ok {
		return false
	}

	delete(idx.byClient, client)
	delete(idx.byAddr, l.Address)

	return true
}

// sweep removes every lease whose expiry has passed as of now, per the
// "lease sweep on every incoming message" rule.  It returns the removed
// leases, for callback notification.
func (idx *leaseIndex) sweep(now time.Time) (expired []*Lease) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for client, l := range idx.byClient {
		if l.Expired(now) {
			expired = append(expired, l)
			delete(idx.byClient, client)
			delete(idx.byAddr, l.Address)
		}
	}

	return expired
}

// all returns a snapshot slice of every lease currently indexed.
func (idx *leaseIndex) all() (leases []*Lease) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	leases = make([]*Lease, 0, len(idx.byClient))
	for _, l := range idx.byClient {
		leases = append(leases, l)
	}

	return leases
}
