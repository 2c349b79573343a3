// Package arbiter maintains /dev/ symlinks that multiple devices may claim
// at differing priorities, resolving conflicts by highest-priority claim
// and recording every claim in a crash-safe on-disk stack directory so that
// a restarted arbiter can reconstruct state without replaying every device
// event since boot.
package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/devnetd/devnetd/internal/filelock"
)

// ownerEntry and lockFile name the two reserved files inside a stack
// directory; every other entry name is a device id.
const (
	ownerEntry = "owner"
	lockFile   = ".lock"
)

// Claim is one device's bid for a symlink: its priority and the devnode it
// would point the symlink at.
type Claim struct {
	DeviceID string
	Priority int
	Devnode  string
}

// Arbiter resolves and persists symlink ownership under a root directory
// of per-symlink stack directories (conventionally /run/udev/links) and
// maintains the corresponding /dev/ symlinks.
type Arbiter struct {
	logger   *slog.Logger
	metrics  *metrics
	stackDir string
	devRoot  string
}

// New returns an *Arbiter rooted at stackDir (stack directories) and devRoot
// (where the visible symlinks live, conventionally "/dev"). reg registers the owner-change counter; if
// nil, a private registry is used (see [newMetrics]).
func New(logger *slog.Logger, reg prometheus.Registerer, stackDir, devRoot string) (a *Arbiter) {
	if logger == nil {
		logger = slog.Default()
	}

	return &Arbiter{
		logger:   logger,
		metrics:  newMetrics(reg),
		stackDir: stackDir,
		devRoot:  devRoot,
	}
}

// Add implements the add flow of §4.5: register device's claim on symlink,
// then re-arbitrate ownership if the new claim outranks the incumbent.
func (a *Arbiter) Add(ctx context.Context, symlink string, c Claim) (err error) {
	dir, err := a.openStackDir(symlink)
	if err != nil {
		return fmt.Errorf("opening stack dir for %q: %w", symlink, err)
	}

	lock, err := filelock.Acquire(filepath.Join(dir, lockFile), filelock.Exclusive, true)
	if err != nil {
		return fmt.Errorf("locking stack dir for %q: %w", symlink, err)
	}
	defer lock.Release()

	if err = writeEntry(dir, c.DeviceID, c.Priority, c.Devnode); err != nil {
		return fmt.Errorf("writing claim entry: %w", err)
	}

	owner, ownerPriority, _, hasOwner := readOwner(dir)
	if hasOwner && ownerPriority >= c.Priority {
		// Shortcut: the incumbent already outranks (or ties) the new
		// claim, and per the correctness argument in §4.5 no other live
		// claim can outrank the incumbent either, so there is nothing to
		// re-arbitrate.
		return nil
	}

	a.logger.Debug(
		"symlink ownership changing",
		"symlink", symlink, "from", owner, "to", c.DeviceID,
	)

	return a.crown(symlink, dir, c.DeviceID, c.Devnode)
}

// Remove implements the remove flow of §4.5: drop deviceID's claim entry,
// and if it held ownership, re-scan the remaining claims for a successor.
func (a *Arbiter) Remove(ctx context.Context, symlink, deviceID string) (err error) {
	dir := a.pathFor(symlink)

	lock, err := filelock.Acquire(filepath.Join(dir, lockFile), filelock.Exclusive, true)
	if err != nil {
		return fmt.Errorf("locking stack dir for %q: %w", symlink, err)
	}
	defer lock.Release()

	if rmErr := os.Remove(filepath.Join(dir, deviceID)); rmErr != nil && !os.IsNotExist(rmErr) {
		return fmt.Errorf("removing claim entry: %w", rmErr)
	}

	owner, _, _, hasOwner := readOwner(dir)
	if hasOwner && owner != deviceID {
		// A concurrent claim is intact; nothing to re-arbitrate.
		return nil
	}

	winner, ok, err := a.pickSuccessor(dir, deviceID)
	if err != nil {
		return fmt.Errorf("scanning remaining claims: %w", err)
	}

	if !ok {
		return a.vacate(symlink, dir)
	}

	return a.crown(symlink, dir, winner.DeviceID, winner.Devnode)
}

// Update implements the device-update flow: replace deviceID's claim set
// from old to next, running Remove on claims that disappeared and Add on
// every claim in next, so a claim held in both sets has its entry rewritten.
func (a *Arbiter) Update(ctx context.Context, deviceID string, old, next map[string]Claim) (err error) {
	for symlink := range old {
		if _, still := next[symlink]; !still {
			if rmErr := a.Remove(ctx, symlink, deviceID); rmErr != nil {
				return rmErr
			}
		}
	}

	for symlink, c := range next {
		if addErr := a.Add(ctx, symlink, c); addErr != nil {
			return addErr
		}
	}

	return nil
}

// pickSuccessor scans dir's remaining claim entries (excluding exclude and
// the reserved files), skips any whose devnode no longer exists, and
// returns the highest-priority survivor. Among equal priorities, the entry
// whose name sorts first wins.
func (a *Arbiter) pickSuccessor(dir, exclude string) (winner Claim, ok bool, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Claim{}, false, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if name == exclude || name == ownerEntry || name == lockFile {
			continue
		}

		priority, devnode, readErr := readEntry(dir, name)
		if readErr != nil {
			continue
		}

		if _, statErr := os.Stat(devnode); statErr != nil {
			// Stale claim: the subsequent remove event for this device
			// will clean up its entry file.
			continue
		}

		if !ok || priority > winner.Priority {
			winner = Claim{DeviceID: name, Priority: priority, Devnode: devnode}
			ok = true
		}
	}

	return winner, ok, nil
}

// crown points the visible symlink at devnode and records deviceID as
// owner, both via atomic rename-over-temp.
func (a *Arbiter) crown(symlink, dir, deviceID, devnode string) (err error) {
	target := filepath.Join(a.devRoot, symlink)
	if err = os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return fmt.Errorf("creating parent directory for %q: %w", symlink, err)
	}

	if err = atomicSymlink(devnode, target); err != nil {
		return fmt.Errorf("updating %q symlink: %w", symlink, err)
	}

	if err = atomicSymlink(deviceID, filepath.Join(dir, ownerEntry)); err != nil {
		return fmt.Errorf("updating owner record: %w", err)
	}

	a.metrics.ownerChanges.Inc()

	return nil
}

// vacate removes the visible symlink (and empty parent directories beneath
// devRoot) and the owner record, because no claim survives.
func (a *Arbiter) vacate(symlink, dir string) (err error) {
	target := filepath.Join(a.devRoot, symlink)
	if rmErr := os.Remove(target); rmErr != nil && !os.IsNotExist(rmErr) {
		return fmt.Errorf("removing %q symlink: %w", symlink, rmErr)
	}

	removeEmptyParents(filepath.Dir(target), a.devRoot)

	if rmErr := os.Remove(filepath.Join(dir, ownerEntry)); rmErr != nil && !os.IsNotExist(rmErr) {
		return fmt.Errorf("removing owner record: %w", rmErr)
	}

	return nil
}

// removeEmptyParents removes dir and any now-empty ancestor up to (but
// excluding) root, stopping at the first non-empty directory.
func removeEmptyParents(dir, root string) {
	for dir != root && dir != "." && dir != string(filepath.Separator) {
		if err := os.Remove(dir); err != nil {
			return
		}

		dir = filepath.Dir(dir)
	}
}
