package diskmanager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDetailedDiskUsage(t *testing.T) {
	t.Parallel()

	info, err := GetDetailedDiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, info.TotalBytes)
	assert.LessOrEqual(t, info.FreeBytes, info.TotalBytes)

	pct, err := GetDiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pct, 0.0)
	assert.LessOrEqual(t, pct, 100.0)
}

func TestGetDetailedDiskUsageMissingPath(t *testing.T) {
	t.Parallel()

	_, err := GetDetailedDiskUsage("/definitely/not/a/real/path")
	assert.Error(t, err)
}

func fixedProbe(freeMB uint64) func(string) (DiskSpaceInfo, error) {
	return func(string) (DiskSpaceInfo, error) {
		return DiskSpaceInfo{TotalBytes: 1 << 40, FreeBytes: freeMB * bytesPerMB}, nil
	}
}

func TestSpaceGuardStartup(t *testing.T) {
	t.Parallel()

	g := NewSpaceGuard(t.TempDir(), 100)
	g.probe = fixedProbe(50)
	require.ErrorIs(t, g.CheckStartup(), ErrInsufficientSpace)

	g.probe = fixedProbe(500)
	require.NoError(t, g.CheckStartup())

	disabled := NewSpaceGuard(t.TempDir(), 0)
	disabled.probe = fixedProbe(0)
	assert.False(t, disabled.Enabled())
	require.NoError(t, disabled.CheckStartup())
	assert.False(t, disabled.Check())
}

func TestSpaceGuardTracksTransitions(t *testing.T) {
	t.Parallel()

	g := NewSpaceGuard(t.TempDir(), 100)

	g.probe = fixedProbe(500)
	assert.False(t, g.Check())
	assert.False(t, g.Low())

	g.probe = fixedProbe(10)
	assert.True(t, g.Check())
	assert.True(t, g.Check())
	assert.True(t, g.Low())

	g.probe = fixedProbe(200)
	assert.False(t, g.Check())
	assert.False(t, g.Low())

	g.probe = func(string) (DiskSpaceInfo, error) { return DiskSpaceInfo{}, errors.New("statfs failed") }
	assert.False(t, g.Check(), "probe failures do not report low space")
}

func TestSpaceGuardObserver(t *testing.T) {
	t.Parallel()

	g := NewSpaceGuard(t.TempDir(), 100)
	var seen []uint64
	var crossings int
	g.SetObserver(func(info DiskSpaceInfo, becameLow bool) {
		seen = append(seen, info.FreeMB())
		if becameLow {
			crossings++
		}
	})

	g.probe = fixedProbe(500)
	require.NoError(t, g.CheckStartup())
	g.Check()
	g.probe = fixedProbe(10)
	g.Check()
	g.Check()

	assert.Equal(t, []uint64{500, 500, 10, 10}, seen)
	assert.Equal(t, 1, crossings)
}
