package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeCoalescesEvents(t *testing.T) {
	dir := t.TempDir()
	var rescans atomic.Int32
	b, err := New([]string{dir}, 100*time.Millisecond, func() {
		rescans.Add(1)
	})
	require.NoError(t, err)
	defer b.Close()

	// a burst of changes must collapse into a single rescan
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "germany.obf"), []byte{byte(i)}, 0664))
		time.Sleep(10 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return rescans.Load() >= 1
	}, 2*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.LessOrEqual(t, rescans.Load(), int32(2))
}

func TestBridgeSeparateBursts(t *testing.T) {
	dir := t.TempDir()
	var rescans atomic.Int32
	b, err := New([]string{dir}, 50*time.Millisecond, func() {
		rescans.Add(1)
	})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.obf"), []byte("a"), 0664))
	assert.Eventually(t, func() bool { return rescans.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.obf"), []byte("b"), 0664))
	assert.Eventually(t, func() bool { return rescans.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestBridgeRejectsMissingPath(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "missing")}, 0, func() {})
	assert.Error(t, err)
}

func TestBridgeClose(t *testing.T) {
	b, err := New([]string{t.TempDir()}, 0, func() {})
	require.NoError(t, err)
	assert.NoError(t, b.Close())
}
