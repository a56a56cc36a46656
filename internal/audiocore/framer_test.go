package audiocore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialPCM(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestFramerRechunksArbitraryWrites(t *testing.T) {
	t.Parallel()

	var frames []Frame
	f, err := NewFramer(8, func(fr Frame) { frames = append(frames, fr) })
	require.NoError(t, err)

	input := sequentialPCM(30)
	// Driver callbacks of uneven sizes
	f.Write(input[:3])
	f.Write(input[3:13])
	f.Write(input[13:29])
	f.Write(input[29:])

	require.Len(t, frames, 3)
	assert.Equal(t, 6, f.Pending())

	var joined []byte
	for _, fr := range frames {
		assert.Len(t, fr, 8)
		joined = append(joined, fr...)
	}
	assert.Equal(t, input[:24], joined)
}

func TestFramerEmitsCopies(t *testing.T) {
	t.Parallel()

	var frames []Frame
	f, err := NewFramer(4, func(fr Frame) { frames = append(frames, fr) })
	require.NoError(t, err)

	buf := []byte{1, 2, 3, 4}
	f.Write(buf)
	buf[0] = 99

	require.Len(t, frames, 1)
	assert.Equal(t, byte(1), frames[0][0])
}

func TestFramerReset(t *testing.T) {
	t.Parallel()

	count := 0
	f, err := NewFramer(4, func(Frame) { count++ })
	require.NoError(t, err)

	f.Write([]byte{1, 2})
	f.Reset()
	f.Write([]byte{3, 4})
	assert.Equal(t, 0, count)
	assert.Equal(t, 2, f.Pending())
}

func TestNewFramerRejectsBadSize(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, -2, 3} {
		_, err := NewFramer(n, func(Frame) {})
		assert.ErrorIs(t, err, ErrInvalidFrameSize, "size %d", n)
	}
}

func TestFramerFlush(t *testing.T) {
	t.Parallel()

	var frames []Frame
	f, err := NewFramer(8, func(fr Frame) { frames = append(frames, fr) })
	require.NoError(t, err)

	assert.Nil(t, f.Flush())

	f.Write(sequentialPCM(12))
	require.Len(t, frames, 1)

	tail := f.Flush()
	assert.Equal(t, Frame{8, 9, 10, 11}, tail)
	assert.Zero(t, f.Pending())
	assert.Nil(t, f.Flush())
}
