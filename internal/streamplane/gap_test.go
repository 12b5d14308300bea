package streamplane

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGapTrackerFirstObservationIsNeverAGap(t *testing.T) {
	g := NewGapTracker()
	require.False(t, g.Observe(1, 5))
	require.Equal(t, uint64(0), g.LostPackets(1))
}

func TestGapTrackerDetectsMissingPacket(t *testing.T) {
	g := NewGapTracker()
	g.Observe(1, 5)
	require.True(t, g.Observe(1, 7)) // skipped 6
	require.Equal(t, uint64(1), g.LostPackets(1))
}

func TestGapTrackerSequentialCountsAreNotGaps(t *testing.T) {
	g := NewGapTracker()
	g.Observe(1, 14)
	require.False(t, g.Observe(1, 15))
	require.False(t, g.Observe(1, 0)) // mod-16 wrap
	require.Equal(t, uint64(0), g.LostPackets(1))
}

func TestGapTrackerTracksStreamsIndependently(t *testing.T) {
	g := NewGapTracker()
	g.Observe(1, 0)
	g.Observe(2, 0)
	require.True(t, g.Observe(1, 2))
	require.False(t, g.Observe(2, 1))
}

func TestGapTrackerForgetResetsState(t *testing.T) {
	g := NewGapTracker()
	g.Observe(1, 0)
	g.Forget(1)
	require.False(t, g.Observe(1, 9), "after Forget, the next observation is treated as first-seen")
}
