package lipsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameWithVolume(v float64) FrameFeatures {
	f := FrameFeatures{Volume: v, Centroid: v * 1000}
	for i := range f.Bands {
		f.Bands[i] = v
	}
	return f
}

func TestHistoryDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultHistorySize, NewHistory(0).Cap())
	assert.Equal(t, 3, NewHistory(3).Cap())
}

func TestHistoryEvictsOldestFirst(t *testing.T) {
	const n = 4
	h := NewHistory(n)

	for i := 1; i <= n+1; i++ {
		h.Push(frameWithVolume(float64(i) / 10))
		assert.LessOrEqual(t, h.Len(), n)
	}

	require.Equal(t, n, h.Len())
	// 0.2..0.5 remain; 0.1 would pull the mean down to 0.3.
	assert.InDelta(t, 0.35, h.Average().Volume, 1e-9, "first push must be evicted")

	last, ok := h.Last()
	require.True(t, ok)
	assert.InDelta(t, 0.5, last.Volume, 1e-9)
}

func TestHistoryNeverExceedsCapacity(t *testing.T) {
	h := NewHistory(8)
	for i := 0; i < 100; i++ {
		h.Push(frameWithVolume(0.5))
		require.LessOrEqual(t, h.Len(), 8)
	}
	assert.Equal(t, 8, h.Len())
}

func TestHistoryAverageEmpty(t *testing.T) {
	h := NewHistory(8)
	assert.Equal(t, FrameFeatures{}, h.Average())

	_, ok := h.Last()
	assert.False(t, ok)
}

func TestHistoryAverage(t *testing.T) {
	h := NewHistory(8)
	h.Push(frameWithVolume(0.2))
	h.Push(frameWithVolume(0.4))

	avg := h.Average()
	assert.InDelta(t, 0.3, avg.Volume, 1e-9)
	assert.InDelta(t, 300, avg.Centroid, 1e-9)
	for i := range avg.Bands {
		assert.InDelta(t, 0.3, avg.Bands[i], 1e-9)
	}
	assert.Equal(t, avg.Bands, avg.DeltaBands, "average deltas mirror the averaged bands")
}

func TestHistoryReset(t *testing.T) {
	h := NewHistory(2)
	h.Push(frameWithVolume(0.1))
	h.Push(frameWithVolume(0.2))
	h.Push(frameWithVolume(0.3))
	h.Reset()

	assert.Equal(t, 0, h.Len())
	assert.Zero(t, h.Average().Volume)

	h.Push(frameWithVolume(0.7))
	last, ok := h.Last()
	require.True(t, ok)
	assert.InDelta(t, 0.7, last.Volume, 1e-9)
}
