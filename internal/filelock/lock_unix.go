//go:build unix

package filelock

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// unixStatT is the concrete Sys() type filelock knows how to read Nlink
// from.
type unixStatT = syscall.Stat_t

// ofdLock places (or blocks placing) an open-file-description lock on f's
// whole extent, matching §4.6's "F_OFD_SETLK / F_OFD_SETLKW" contract. OFD
// locks are associated with the open file description, not the process, so
// two goroutines in this process that each open path separately contend
// correctly instead of one silently overriding the other the way classic
// flock(2)/fcntl(F_SETLK) process-level locks would.
func ofdLock(f *os.File, mode Mode, block bool) (err error) {
	typ := int16(unix.F_RDLCK)
	if mode == Exclusive {
		typ = unix.F_WRLCK
	}

	flock := unix.Flock_t{
		Type:   typ,
		Whence: int16(os.SEEK_SET),
		Start:  0,
		Len:    0,
	}

	cmd := unix.F_OFD_SETLK
	if block {
		cmd = unix.F_OFD_SETLKW
	}

	for {
		err = unix.FcntlFlock(f.Fd(), cmd, &flock)
		if err != unix.EINTR {
			return err
		}
	}
}
