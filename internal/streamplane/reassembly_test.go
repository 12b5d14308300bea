package streamplane

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReassemblerCompletesOnFinalSegment(t *testing.T) {
	r := NewReassembler()

	_, ok := r.Feed(1, 100, 0, 4, 8, 2, []byte{0, 1, 0, 2, 0, 3, 0, 4})
	require.False(t, ok)

	complete, ok := r.Feed(1, 100, 4, 4, 8, 2, []byte{0, 5, 0, 6, 0, 7, 0, 8})
	require.True(t, ok)
	require.Equal(t, []byte{0, 1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0, 7, 0, 8}, complete)
	require.Equal(t, 0, r.Pending())
}

func TestReassemblerOrdersOutOfOrderSegments(t *testing.T) {
	r := NewReassembler()

	// Second half arrives first; the reassembled buffer must still place
	// it at its declared offset, not wherever it happened to arrive.
	_, ok := r.Feed(1, 200, 4, 4, 8, 2, []byte{0, 5, 0, 6, 0, 7, 0, 8})
	require.False(t, ok)

	complete, ok := r.Feed(1, 200, 0, 4, 8, 2, []byte{0, 1, 0, 2, 0, 3, 0, 4})
	require.True(t, ok)
	require.Equal(t, []byte{0, 1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0, 7, 0, 8}, complete)
}

func TestReassemblerEvictsStaleFrames(t *testing.T) {
	r := NewReassembler()
	_, ok := r.Feed(1, 300, 0, 2, 4, 2, []byte{0, 1, 0, 2})
	require.False(t, ok)
	require.Equal(t, 1, r.Pending())

	evicted := r.EvictStale(time.Now().Add(600 * time.Millisecond))
	require.Equal(t, 1, evicted)
	require.Equal(t, 0, r.Pending())
}

func TestReassemblerLeavesFreshFramesAlone(t *testing.T) {
	r := NewReassembler()
	_, ok := r.Feed(1, 400, 0, 2, 4, 2, []byte{0, 1, 0, 2})
	require.False(t, ok)

	evicted := r.EvictStale(time.Now())
	require.Equal(t, 0, evicted)
	require.Equal(t, 1, r.Pending())
}

func TestReassemblerDistinctStreamsAndTimestampsDoNotCollide(t *testing.T) {
	r := NewReassembler()
	_, ok := r.Feed(1, 1, 0, 2, 2, 2, []byte{0, 1, 0, 2})
	require.True(t, ok)

	_, ok = r.Feed(2, 1, 0, 2, 2, 2, []byte{0, 3, 0, 4})
	require.True(t, ok)

	_, ok = r.Feed(1, 2, 0, 2, 2, 2, []byte{0, 5, 0, 6})
	require.True(t, ok)
}

func TestReassemblerRejectsOutOfRangeSegment(t *testing.T) {
	r := NewReassembler()
	_, ok := r.Feed(1, 500, 6, 4, 8, 2, make([]byte, 8))
	require.False(t, ok)
	require.Equal(t, 0, r.Pending())
}
