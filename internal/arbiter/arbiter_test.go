package arbiter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestArbiter(t *testing.T) (a *Arbiter, devRoot string) {
	t.Helper()

	root := t.TempDir()
	stackDir := filepath.Join(root, "links")
	devRoot = filepath.Join(root, "dev")
	require.NoError(t, os.MkdirAll(devRoot, 0o755))

	return New(nil, nil, stackDir, devRoot), devRoot
}

func touch(t *testing.T, path string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

// S5: add then add higher priority.
func TestArbiter_addHigherPriorityPreempts(t *testing.T) {
	a, devRoot := newTestArbiter(t)
	ctx := context.Background()

	sda := filepath.Join(devRoot, "sda")
	sdb := filepath.Join(devRoot, "sdb")
	touch(t, sda)
	touch(t, sdb)

	require.NoError(t, a.Add(ctx, "by-label/DATA", Claim{DeviceID: "a1", Priority: 10, Devnode: sda}))
	require.NoError(t, a.Add(ctx, "by-label/DATA", Claim{DeviceID: "b2", Priority: 20, Devnode: sdb}))

	link := filepath.Join(devRoot, "by-label/DATA")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	require.Equal(t, sdb, target)

	dir := a.pathFor("by-label/DATA")
	owner, _, _, ok := readOwner(dir)
	require.True(t, ok)
	require.Equal(t, "b2", owner)
}

// S7: equal priority does not preempt.
func TestArbiter_equalPriorityDoesNotPreempt(t *testing.T) {
	a, devRoot := newTestArbiter(t)
	ctx := context.Background()

	foo := filepath.Join(devRoot, "foo-dev")
	bar := filepath.Join(devRoot, "bar-dev")
	touch(t, foo)
	touch(t, bar)

	require.NoError(t, a.Add(ctx, "foo", Claim{DeviceID: "a1", Priority: 10, Devnode: foo}))
	require.NoError(t, a.Add(ctx, "foo", Claim{DeviceID: "c1", Priority: 10, Devnode: bar}))

	link := filepath.Join(devRoot, "foo")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	require.Equal(t, foo, target)

	dir := a.pathFor("foo")
	owner, _, _, ok := readOwner(dir)
	require.True(t, ok)
	require.Equal(t, "a1", owner)
}

// Single-owner property across a remove that forces re-arbitration.
func TestArbiter_removeOwnerReArbitrates(t *testing.T) {
	a, devRoot := newTestArbiter(t)
	ctx := context.Background()

	sda := filepath.Join(devRoot, "sda")
	sdb := filepath.Join(devRoot, "sdb")
	touch(t, sda)
	touch(t, sdb)

	require.NoError(t, a.Add(ctx, "disk", Claim{DeviceID: "a1", Priority: 20, Devnode: sda}))
	require.NoError(t, a.Add(ctx, "disk", Claim{DeviceID: "b2", Priority: 10, Devnode: sdb}))

	// a1 is owner (higher priority); remove it and expect b2 to take over.
	require.NoError(t, a.Remove(ctx, "disk", "a1"))

	link := filepath.Join(devRoot, "disk")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	require.Equal(t, sdb, target)
}

// Removing the last claim vacates the symlink entirely.
func TestArbiter_removeLastClaimVacates(t *testing.T) {
	a, devRoot := newTestArbiter(t)
	ctx := context.Background()

	sda := filepath.Join(devRoot, "sda")
	touch(t, sda)

	require.NoError(t, a.Add(ctx, "solo", Claim{DeviceID: "a1", Priority: 5, Devnode: sda}))
	require.NoError(t, a.Remove(ctx, "solo", "a1"))

	link := filepath.Join(devRoot, "solo")
	_, err := os.Lstat(link)
	require.True(t, os.IsNotExist(err))

	dir := a.pathFor("solo")
	_, _, _, ok := readOwner(dir)
	require.False(t, ok)
}

// Idempotence: re-running add with identical (id, priority, devnode)
// leaves the visible state unchanged.
func TestArbiter_addIsIdempotent(t *testing.T) {
	a, devRoot := newTestArbiter(t)
	ctx := context.Background()

	sda := filepath.Join(devRoot, "sda")
	touch(t, sda)

	claim := Claim{DeviceID: "a1", Priority: 5, Devnode: sda}
	require.NoError(t, a.Add(ctx, "idem", claim))
	require.NoError(t, a.Add(ctx, "idem", claim))

	link := filepath.Join(devRoot, "idem")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	require.Equal(t, sda, target)
}

func TestEscapeSymlink_escapesSlashesAndBackslashes(t *testing.T) {
	require.Equal(t, `by-label\x2fDATA`, escapeSymlink("/dev/by-label/DATA"))
	require.Equal(t, `weird\x5cname`, escapeSymlink(`/dev/weird\name`))
}

func TestEscapeSymlink_longNameGetsHashSuffix(t *testing.T) {
	escaped := escapeSymlink("/dev/" + repeatA(300))
	require.LessOrEqual(t, len(escaped), nameMax)
	require.Contains(t, escaped, "_")
}

func repeatA(n int) (s string) {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}

	return string(b)
}
