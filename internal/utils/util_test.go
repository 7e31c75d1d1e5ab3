package utils

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	p, err := ExpandHome("~/maps")
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "maps"), p)

	p, err = ExpandHome("/var/lib/maps")
	assert.NoError(t, err)
	assert.Equal(t, "/var/lib/maps", p)

	p, err = ExpandHome("relative/maps")
	assert.NoError(t, err)
	assert.Equal(t, "relative/maps", p)
}

func TestToTrimmedLower(t *testing.T) {
	assert.Equal(t, "germany.obf", ToTrimmedLower("  Germany.OBF "))
	assert.Equal(t, "", ToTrimmedLower("   "))
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, ".timestamp")

	require.NoError(t, AtomicWriteFile(name, []byte("2000"), 0664))
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "2000", string(data))

	// overwrites in place
	require.NoError(t, AtomicWriteFile(name, []byte("3000"), 0664))
	data, err = os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "3000", string(data))
}

func TestParseAsList(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b"}, ParseAsList("/a, /b", ",", true))
	assert.Equal(t, []string{"/a", "/b"}, ParseAsList("/a,,/b,", ",", false))
	assert.Empty(t, ParseAsList("", ",", true))
}

func TestGetLogger(t *testing.T) {
	l := GetLogger(context.Background(), "scanner")
	assert.NotNil(t, l)

	custom := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.WithValue(context.Background(), CtxKeyLogger, custom)
	l = GetLogger(ctx, "")
	assert.Equal(t, custom, l)
}

func TestGetResmanVersion(t *testing.T) {
	old := ResmanVersion
	defer func() { ResmanVersion = old }()

	ResmanVersion = "v1.2.3"
	assert.Equal(t, "1.2.3", GetResmanVersion())

	ResmanVersion = "n/a"
	assert.Equal(t, "n/a", GetResmanVersion())
}
