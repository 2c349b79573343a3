package arbiter

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// dirPerm and entryPerm match the conservative permissions the rest of this
// codebase uses for small bookkeeping files; stack directories are
// world-unreadable trust boundaries, not shared state.
const (
	dirPerm   = 0o750
	entryPerm = 0o640
)

// pathFor returns the stack directory path for symlink, without creating
// it.
func (a *Arbiter) pathFor(symlink string) (path string) {
	return filepath.Join(a.stackDir, escapeSymlink(symlink))
}

// openStackDir returns (creating if necessary) the stack directory for
// symlink.
func (a *Arbiter) openStackDir(symlink string) (path string, err error) {
	path = a.pathFor(symlink)
	if mkErr := os.MkdirAll(path, dirPerm); mkErr != nil {
		return "", mkErr
	}

	return path, nil
}

// writeEntry writes (atomically) device's claim entry in dir: a symlink
// whose target is "<priority>:<devnode>".
func writeEntry(dir, deviceID string, priority int, devnode string) (err error) {
	target := fmt.Sprintf("%d:%s", priority, devnode)

	return atomicSymlink(target, filepath.Join(dir, deviceID))
}

// readEntry reads back a claim entry written by [writeEntry].
func readEntry(dir, deviceID string) (priority int, devnode string, err error) {
	target, err := os.Readlink(filepath.Join(dir, deviceID))
	if err != nil {
		return 0, "", err
	}

	prio, rest, ok := strings.Cut(target, ":")
	if !ok {
		return 0, "", fmt.Errorf("malformed entry target %q", target)
	}

	priority, err = strconv.Atoi(prio)
	if err != nil {
		return 0, "", fmt.Errorf("malformed priority in %q: %w", target, err)
	}

	return priority, rest, nil
}

// readOwner reads the owner record in dir, if any, and resolves its
// priority and devnode from its own claim entry.
func readOwner(dir string) (deviceID string, priority int, devnode string, ok bool) {
	deviceID, err := os.Readlink(filepath.Join(dir, ownerEntry))
	if err != nil {
		return "", 0, "", false
	}

	priority, devnode, err = readEntry(dir, deviceID)
	if err != nil {
		return deviceID, 0, "", true
	}

	return deviceID, priority, devnode, true
}

// atomicSymlink creates (or replaces) the symlink at path so that it points
// to target, visible to readers as an atomic rename rather than an
// unlink-then-create window. A random suffix (via [uuid.NewString]) on the
// temporary symlink's name avoids collisions between concurrent callers
// racing to replace the same path.
func atomicSymlink(target, path string) (err error) {
	tmp := path + ".tmp-" + uuid.NewString()

	if err = os.Symlink(target, tmp); err != nil {
		return err
	}

	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)

		return err
	}

	return nil
}
