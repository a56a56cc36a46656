package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreRollBufferKeepsNewestInOrder(t *testing.T) {
	t.Parallel()

	p, err := NewPreRollBuffer(3, testFrameBytes)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, p.Push(voiceFrame(false, i)))
	}
	assert.Equal(t, 3, p.Len())

	snap := p.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, 3, frameSeq(snap[0]))
	assert.Equal(t, 4, frameSeq(snap[1]))
	assert.Equal(t, 5, frameSeq(snap[2]))

	// snapshot leaves the contents in place
	assert.Equal(t, 3, p.Len())
	require.NoError(t, p.Push(voiceFrame(false, 6)))
	snap = p.Snapshot()
	assert.Equal(t, 4, frameSeq(snap[0]))
	assert.Equal(t, 6, frameSeq(snap[2]))
}

func TestPreRollBufferSnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	p, err := NewPreRollBuffer(2, testFrameBytes)
	require.NoError(t, err)
	require.NoError(t, p.Push(voiceFrame(true, 1)))

	snap := p.Snapshot()
	snap[0][0] = 9

	again := p.Snapshot()
	assert.Equal(t, byte(1), again[0][0])
}

func TestPreRollBufferResetAndValidation(t *testing.T) {
	t.Parallel()

	p, err := NewPreRollBuffer(2, testFrameBytes)
	require.NoError(t, err)
	require.NoError(t, p.Push(voiceFrame(false, 1)))
	p.Reset()
	assert.Equal(t, 0, p.Len())
	assert.Nil(t, p.Snapshot())

	assert.ErrorIs(t, p.Push(make([]byte, 10)), ErrInvalidFrame)

	_, err = NewPreRollBuffer(0, testFrameBytes)
	assert.ErrorIs(t, err, ErrInvalidPolicyConfig)
}

func TestActivityWindow(t *testing.T) {
	t.Parallel()

	w := NewActivityWindow(3)
	w.Push(true)
	w.Push(false)
	assert.Equal(t, 1, w.Voiced())
	assert.Equal(t, 2, w.Len())

	w.Push(true)
	w.Push(true) // evicts the first flag
	assert.Equal(t, 2, w.Voiced())
	assert.Equal(t, 3, w.Len())

	w.Push(false)
	w.Push(false)
	assert.Equal(t, 1, w.Voiced())

	w.Reset()
	assert.Equal(t, 0, w.Voiced())
	assert.Equal(t, 0, w.Len())
}
