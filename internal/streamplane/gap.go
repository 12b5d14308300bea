package streamplane

import (
	"sync"

	"github.com/flexradio/flex-sdr/internal/wire"
)

// GapTracker detects missing VITA packets via the header's mod-16 packet
// count (spec §4.1, §4.6): "a gap increments a per-stream lost_packets
// counter; it never halts the stream."
type GapTracker struct {
	mu   sync.Mutex
	last map[uint32]uint8
	lost map[uint32]uint64
}

// NewGapTracker constructs an empty tracker.
func NewGapTracker() *GapTracker {
	return &GapTracker{last: make(map[uint32]uint8), lost: make(map[uint32]uint64)}
}

// Observe records the packet count for streamID and reports whether a
// gap was detected relative to the previous observation. The first
// observation for a given stream is never a gap (nothing to compare
// against yet).
func (g *GapTracker) Observe(streamID uint32, count uint8) (gap bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev, seen := g.last[streamID]
	g.last[streamID] = count
	if !seen {
		return false
	}
	if count != wire.NextCount(prev) {
		g.lost[streamID]++
		return true
	}
	return false
}

// LostPackets reports the cumulative gap count observed for streamID.
func (g *GapTracker) LostPackets(streamID uint32) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lost[streamID]
}

// Forget drops tracking state for a stream that has been torn down, so a
// reused stream id does not inherit a stale packet count.
func (g *GapTracker) Forget(streamID uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, streamID)
	delete(g.lost, streamID)
}
