package audiocore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFrameQueueDropsWhenFull(t *testing.T) {
	t.Parallel()

	q, err := NewFrameQueue(2, 4)
	require.NoError(t, err)

	assert.True(t, q.Push(Frame{1, 1, 1, 1}))
	assert.True(t, q.Push(Frame{2, 2, 2, 2}))
	assert.False(t, q.Push(Frame{3, 3, 3, 3}), "full queue must drop the incoming frame")

	stats := q.Stats()
	assert.Equal(t, uint64(2), stats.Pushed)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, 2, stats.Depth)
	assert.Equal(t, 2, stats.Capacity)

	// Queued frames survive in order, the dropped one never appears
	f, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, Frame{1, 1, 1, 1}, f)
	f, ok = q.TryPop()
	require.True(t, ok)
	assert.Equal(t, Frame{2, 2, 2, 2}, f)
	_, ok = q.TryPop()
	assert.False(t, ok)
}

func TestFrameQueueSkipsMalformedFrames(t *testing.T) {
	t.Parallel()

	q, err := NewFrameQueue(4, 4)
	require.NoError(t, err)

	assert.False(t, q.Push(Frame{1, 2, 3}))
	assert.False(t, q.Push(nil))
	assert.Equal(t, uint64(2), q.Stats().Malformed)
	assert.Equal(t, 0, q.Len())
}

func TestFrameQueuePopTimeout(t *testing.T) {
	t.Parallel()

	q, err := NewFrameQueue(1, 2)
	require.NoError(t, err)

	start := time.Now()
	_, ok := q.Pop(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestFrameQueuePopCancelled(t *testing.T) {
	t.Parallel()

	q, err := NewFrameQueue(1, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, ok := q.Pop(ctx, 5*time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFrameQueuePreservesOrderAcrossGoroutines(t *testing.T) {
	t.Parallel()

	const total = 500
	q, err := NewFrameQueue(total, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range total {
			q.Push(Frame{byte(i), byte(i >> 8)})
		}
	}()

	for i := range total {
		f, ok := q.Pop(context.Background(), time.Second)
		require.True(t, ok)
		assert.Equal(t, i, int(f[0])|int(f[1])<<8)
	}
	wg.Wait()
}

func TestNewFrameQueueValidates(t *testing.T) {
	t.Parallel()

	_, err := NewFrameQueue(0, 4)
	require.ErrorIs(t, err, ErrInvalidQueueSize)
	_, err = NewFrameQueue(4, 0)
	require.ErrorIs(t, err, ErrInvalidQueueSize)
}
