package obf

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omaps-oss/resman/internal/testutils"
)

func TestHeaderProbe(t *testing.T) {
	t.Run("valid header", func(t *testing.T) {
		data := testutils.MapFileHeader(2, 1700000000000)
		data = append(data, []byte("section payload does not matter")...)

		info, err := HeaderProbe{}.Probe(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, int32(2), info.Version)
		assert.Equal(t, uint64(1700000000000), info.CreationTimestamp)
	})

	t.Run("version only", func(t *testing.T) {
		info, err := HeaderProbe{}.Probe(bytes.NewReader([]byte{0x08, 0x02}))
		require.NoError(t, err)
		assert.Equal(t, int32(2), info.Version)
		assert.Equal(t, uint64(0), info.CreationTimestamp)
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := HeaderProbe{}.Probe(bytes.NewReader(nil))
		assert.ErrorIs(t, err, ErrNoVersion)
	})

	t.Run("truncated varint", func(t *testing.T) {
		_, err := HeaderProbe{}.Probe(bytes.NewReader([]byte{0x08, 0x80}))
		assert.ErrorIs(t, err, ErrHeaderTooShort)
	})

	t.Run("version zero rejected", func(t *testing.T) {
		_, err := HeaderProbe{}.Probe(bytes.NewReader([]byte{0x08, 0x00}))
		assert.ErrorIs(t, err, ErrHeaderMalformed)
	})

	t.Run("no version field", func(t *testing.T) {
		data := append([]byte{0x90, 0x01}, testutils.EncodeVarint(1700000000000)...)
		_, err := HeaderProbe{}.Probe(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrNoVersion)
	})
}

func TestProbeFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	err := afero.WriteFile(fs, "/storage/germany.obf", testutils.MapFileHeader(2, 1000), 0664)
	require.NoError(t, err)

	info, err := ProbeFile(fs, HeaderProbe{}, "/storage/germany.obf")
	require.NoError(t, err)
	assert.Equal(t, int32(2), info.Version)

	_, err = ProbeFile(fs, HeaderProbe{}, "/storage/missing.obf")
	assert.Error(t, err)
}

func TestMapFileRemovalLock(t *testing.T) {
	f := NewMapFile("/storage/germany.obf", 100, &Info{Version: 2})
	assert.False(t, f.IsLockedForRemoval())
	f.LockForRemoval()
	assert.True(t, f.IsLockedForRemoval())
}
