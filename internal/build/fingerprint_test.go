package build

import (
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprints(t *testing.T) {
	f := NewFingerprints()
	path := filepath.Join(t.TempDir(), "logo.svg")
	require.NoError(t, os.WriteFile(path, []byte("<svg/>"), 0o644))

	sum, err := f.File(path)
	require.NoError(t, err)
	assert.Equal(t, crc32.Checksum([]byte("<svg/>"), crc32.MakeTable(crc32.Castagnoli)), sum)
	assert.Equal(t, sum, f.Bytes([]byte("<svg/>")))

	again, err := f.File(path)
	require.NoError(t, err)
	assert.Equal(t, sum, again)

	stats := f.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.InDelta(t, 0.5, stats.Ratio, 0.001)

	t.Run("changed metadata rehashes", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("<svg></svg>"), 0o644))
		later := time.Now().Add(time.Minute)
		require.NoError(t, os.Chtimes(path, later, later))

		changed, err := f.File(path)
		require.NoError(t, err)
		assert.NotEqual(t, sum, changed)
	})

	t.Run("invalidate", func(t *testing.T) {
		f.Invalidate(path)
		assert.Zero(t, f.Stats().Entries)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := f.File(filepath.Join(t.TempDir(), "none"))
		assert.True(t, os.IsNotExist(err))
	})
}
