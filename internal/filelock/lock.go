// Package filelock implements the file-lock coordinator described in §4.6:
// a portable lock record binding a path, an acquired file descriptor, and
// an operation mode, using open-file-description (OFD) locks rather than
// classic per-process locks so that concurrent goroutines in the same
// process lock correctly against each other, not just against other
// processes.
package filelock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mode selects shared vs. exclusive locking.
type Mode uint8

// Mode values.
const (
	Shared Mode = iota
	Exclusive
)

// Lock is an acquired OFD lock on one path.  The zero Lock is not valid;
// obtain one from [Acquire].  Lock is move-only in spirit: callers must not
// copy a held *Lock, only pass its pointer, since [Lock.Release] consumes
// the underlying file descriptor.
type Lock struct {
	f    *os.File
	path string
	mode Mode
}

// Busy is returned by [Acquire] in non-blocking mode when the lock is
// currently held elsewhere.
const Busy lockError = "filelock: busy"

type lockError string

// Error implements the error interface for lockError.
func (e lockError) Error() (s string) { return string(e) }

// Acquire creates path if it does not exist, then places an OFD lock on it
// in the given mode.  If block is false and the file is already locked
// incompatibly, Acquire returns [Busy] immediately.
//
// After acquiring the lock, Acquire re-checks that path's link count is
// still positive: if a racing holder unlinked the file between open and
// lock (see [Lock.Release]), the lock is on a now-nameless inode and must
// be retried against a freshly created file.
func Acquire(path string, mode Mode, block bool) (l *Lock, err error) {
	for {
		f, openErr := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if openErr != nil {
			return nil, fmt.Errorf("opening %q: %w", path, openErr)
		}

		lockErr := ofdLock(f, mode, block)
		if lockErr != nil {
			f.Close()

			if !block && lockErr == unix.EAGAIN {
				return nil, Busy
			}

			return nil, fmt.Errorf("locking %q: %w", path, lockErr)
		}

		live, statErr := stillLinked(f)
		if statErr != nil {
			f.Close()

			return nil, fmt.Errorf("statting %q: %w", path, statErr)
		}

		if live {
			return &Lock{f: f, path: path, mode: mode}, nil
		}

		// The file was unlinked after we opened it but before we locked it;
		// our lock is on an orphaned inode.  Start over.
		f.Close()
	}
}

// stillLinked reports whether f's inode still has a name, i.e. Nlink > 0.
func stillLinked(f *os.File) (ok bool, err error) {
	fi, err := f.Stat()
	if err != nil {
		return false, err
	}

	st, ok := fi.Sys().(*unixStatT)
	if !ok {
		// Best effort on platforms whose Stat_t this package doesn't know
		// about: assume the file is live, since we cannot tell otherwise.
		return true, nil
	}

	return st.Nlink > 0, nil
}

// Release drops the lock.  If the holder was exclusive, it unlinks path
// before closing, so that the next [Acquire] on the same path starts fresh.
// If the holder was shared, it attempts to upgrade to exclusive first; on
// success it unlinks, on failure (another shared holder remains) it just
// closes, per §4.6's contract.
func (l *Lock) Release() (err error) {
	defer l.f.Close()

	canUnlink := l.mode == Exclusive
	if l.mode == Shared {
		if upErr := ofdLock(l.f, Exclusive, false); upErr == nil {
			canUnlink = true
		}
	}

	if canUnlink {
		if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("unlinking %q: %w", l.path, rmErr)
		}
	}

	return nil
}
