package filelock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func lockPath(t *testing.T) (path string) {
	t.Helper()

	return filepath.Join(t.TempDir(), "test.lock")
}

func TestAcquire_createsMissingFile(t *testing.T) {
	path := lockPath(t)

	l, err := Acquire(path, Exclusive, false)
	require.NoError(t, err)
	defer l.Release()

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestAcquire_exclusiveExcludesExclusive(t *testing.T) {
	path := lockPath(t)

	l1, err := Acquire(path, Exclusive, false)
	require.NoError(t, err)
	defer l1.Release()

	_, err = Acquire(path, Exclusive, false)
	require.ErrorIs(t, err, Busy)
}

func TestAcquire_exclusiveExcludesShared(t *testing.T) {
	path := lockPath(t)

	l1, err := Acquire(path, Exclusive, false)
	require.NoError(t, err)
	defer l1.Release()

	_, err = Acquire(path, Shared, false)
	require.ErrorIs(t, err, Busy)
}

func TestAcquire_sharedAllowsShared(t *testing.T) {
	path := lockPath(t)

	l1, err := Acquire(path, Shared, false)
	require.NoError(t, err)
	defer l1.Release()

	l2, err := Acquire(path, Shared, false)
	require.NoError(t, err)
	defer l2.Release()
}

func TestRelease_exclusiveUnlinksPath(t *testing.T) {
	path := lockPath(t)

	l, err := Acquire(path, Exclusive, false)
	require.NoError(t, err)
	require.NoError(t, l.Release())

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestRelease_sharedWithOtherHolderDoesNotUnlink(t *testing.T) {
	path := lockPath(t)

	l1, err := Acquire(path, Shared, false)
	require.NoError(t, err)

	l2, err := Acquire(path, Shared, false)
	require.NoError(t, err)
	defer l2.Release()

	require.NoError(t, l1.Release())

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestAcquire_blockingWaitsForRelease(t *testing.T) {
	path := lockPath(t)

	l1, err := Acquire(path, Exclusive, false)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		l2, acqErr := Acquire(path, Exclusive, true)
		if acqErr == nil {
			l2.Release()
		}

		done <- acqErr
	}()

	// Give the blocking goroutine time to register its lock request before
	// releasing, so the test actually exercises the wait path.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, l1.Release())

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("blocking Acquire did not return after release")
	}
}
