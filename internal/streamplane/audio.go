package streamplane

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/flexradio/flex-sdr/internal/objgraph"
)

// AudioFrame is one decoded audio stream packet, as either interleaved
// stereo PCM samples or a single opaque Opus packet (spec §4.6: "Opus:
// one packet per VITA frame, no additional framing").
type AudioFrame struct {
	StreamID uint32
	Codec    objgraph.AudioCodec
	PCM      []float32 // interleaved L/R, valid when Codec == AudioCodecPCM
	Opus     []byte    // valid when Codec == AudioCodecOpus
}

// DecodePCM decodes a big-endian float32 interleaved stereo payload, the
// wire format FlexRadio uses for uncompressed DAX audio.
func DecodePCM(payload []byte) ([]float32, error) {
	if len(payload)%4 != 0 {
		return nil, fmt.Errorf("streamplane: pcm payload length %d not a multiple of 4", len(payload))
	}
	out := make([]float32, len(payload)/4)
	for i := range out {
		bits := binary.BigEndian.Uint32(payload[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

// DecodeOpus copies one Opus packet out of a VITA payload. The payload
// is not reassembled or otherwise interpreted: Opus framing is opaque to
// the stream plane and handed to an Opus decoder downstream.
func DecodeOpus(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("streamplane: empty opus payload")
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}
