package consoleapi

import (
	"math/rand"

	"github.com/pion/rtp"
)

// opusPayloader treats each incoming payload as exactly one Opus
// packet (spec §4.6: "Opus: one packet per VITA frame, no additional
// framing") — rtp.Packetizer only ever sees whole packets here, never
// splits.
type opusPayloader struct{}

func (opusPayloader) Payload(mtu uint16, payload []byte) [][]byte {
	return [][]byte{payload}
}

func newOpusPacketizer() rtp.Packetizer {
	return rtp.NewPacketizer(1200, 111, rand.Uint32(), opusPayloader{}, rtp.NewRandomSequencer(), 48000)
}

// opusFrameSamples returns the number of 48kHz samples a single Opus
// packet represents, decoded from the TOC byte per RFC 6716 §3.1
// instead of the teacher's fixed 20ms (960-sample) guess.
func opusFrameSamples(payload []byte) uint32 {
	if len(payload) == 0 {
		return 960
	}
	config := payload[0] >> 3
	var frameMS float64
	switch {
	case config < 12: // SILK-only: 10/20/40/60ms in groups of 4
		durations := [4]float64{10, 20, 40, 60}
		frameMS = durations[config%4]
	case config < 16: // Hybrid: 10 or 20ms
		if config%2 == 0 {
			frameMS = 10
		} else {
			frameMS = 20
		}
	default: // CELT-only: 2.5/5/10/20ms
		durations := [4]float64{2.5, 5, 10, 20}
		frameMS = durations[config%4]
	}
	return uint32(frameMS * 48000 / 1000)
}

// RTPSink is anything that accepts marshaled RTP packets: a
// pion/webrtc TrackLocalStaticRTP, a raw net.Conn, or a test buffer.
// Generalizing to this interface is what lets one Opus repacketizer
// serve both the WebRTC publishing path and a plain UDP relay, where
// the teacher's opusrtp.go wrote directly into one fixed WebRTC track.
type RTPSink interface {
	WriteRTP(pkt *rtp.Packet) error
}

// OpusRepacketizer turns a sequence of Opus VITA payloads (as decoded
// by streamplane.DecodeOpus) into RTP packets delivered to an RTPSink.
type OpusRepacketizer struct {
	pktzr rtp.Packetizer
	sink  RTPSink
}

// NewOpusRepacketizer constructs a repacketizer writing to sink.
func NewOpusRepacketizer(sink RTPSink) *OpusRepacketizer {
	return &OpusRepacketizer{pktzr: newOpusPacketizer(), sink: sink}
}

// Write packetizes one Opus payload and forwards every resulting RTP
// packet to the sink, stopping at the first write error.
func (o *OpusRepacketizer) Write(payload []byte) error {
	for _, pkt := range o.pktzr.Packetize(payload, opusFrameSamples(payload)) {
		if err := o.sink.WriteRTP(pkt); err != nil {
			return err
		}
	}
	return nil
}
