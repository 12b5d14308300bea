package streamplane

import (
	"sync"
	"time"
)

// staleFrameAge is the eviction window for incomplete FFT/waterfall
// frames (spec §4.6: "incomplete frames older than 500 ms are dropped").
const staleFrameAge = 500 * time.Millisecond

type frameKey struct {
	streamID  uint32
	timestamp uint32
}

type partialFrame struct {
	buf       []byte
	total     int // total samples expected, in sample units (not bytes)
	received  int // samples placed so far, counting overlap once
	filled    []bool
	createdAt time.Time
}

// Reassembler assembles multi-packet FFT/waterfall frames keyed by
// (stream_id, timestamp), per spec §4.6. Segments are written into a
// fixed-size buffer at their declared start offset rather than appended
// in arrival order, so the reassembled frame always concatenates in
// ascending start-bin order (spec §8) regardless of UDP reordering.
type Reassembler struct {
	mu      sync.Mutex
	partial map[frameKey]*partialFrame
}

// NewReassembler constructs an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{partial: make(map[frameKey]*partialFrame)}
}

// Feed adds one packet's worth of samples to the frame identified by
// (streamID, timestamp). sampleSize is the byte width of one sample (2
// for both FFT int16 dB values and waterfall uint16 intensities). It
// returns the completed, ordered byte buffer once every sample in
// [0, totalSamples) has been received.
func (r *Reassembler) Feed(streamID, timestamp uint32, startSample, samplesInPacket, totalSamples, sampleSize int, data []byte) (complete []byte, ok bool) {
	if samplesInPacket <= 0 || totalSamples <= 0 || startSample < 0 || startSample+samplesInPacket > totalSamples {
		return nil, false
	}

	key := frameKey{streamID, timestamp}
	r.mu.Lock()
	defer r.mu.Unlock()

	pf, exists := r.partial[key]
	if !exists {
		pf = &partialFrame{
			buf:       make([]byte, totalSamples*sampleSize),
			total:     totalSamples,
			filled:    make([]bool, totalSamples),
			createdAt: time.Now(),
		}
		r.partial[key] = pf
	}

	offset := startSample * sampleSize
	need := samplesInPacket * sampleSize
	if offset+need > len(pf.buf) || need > len(data) {
		return nil, false
	}
	copy(pf.buf[offset:offset+need], data[:need])
	for i := startSample; i < startSample+samplesInPacket; i++ {
		if !pf.filled[i] {
			pf.filled[i] = true
			pf.received++
		}
	}

	if pf.received < pf.total {
		return nil, false
	}
	delete(r.partial, key)
	return pf.buf, true
}

// EvictStale drops partial frames whose first segment arrived more than
// staleFrameAge ago, and reports how many were dropped.
func (r *Reassembler) EvictStale(now time.Time) (evicted int) {
	cutoff := now.Add(-staleFrameAge)
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, pf := range r.partial {
		if pf.createdAt.Before(cutoff) {
			delete(r.partial, k)
			evicted++
		}
	}
	return evicted
}

// Pending reports the number of in-flight partial frames, for tests and
// diagnostics.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.partial)
}
