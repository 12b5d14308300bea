package streamplane

import (
	"encoding/binary"
	"time"

	"github.com/flexradio/flex-sdr/internal/wire"
)

// meterPairBytes is the width of one (meter index, raw value) pair in a
// meter stream packet: u16 index, i16 signed Q8.8 fixed-point value.
const meterPairBytes = 4

// MeterSample is one decoded meter reading, ready to apply to the
// object graph via status.MeterHandler.ApplySample.
type MeterSample struct {
	Index     int
	RawValue  int16
	Value     float64 // engineering units (raw/256.0, Q8.8 fixed point)
	Timestamp time.Time
}

// DecodeMeterPacket decodes every (index, value) pair carried in one
// meter stream packet. A meter packet is never reassembled: every
// datagram is a complete, self-contained batch of samples (spec §4.6).
func DecodeMeterPacket(pkt wire.Packet, at time.Time) []MeterSample {
	p := pkt.Payload
	n := len(p) / meterPairBytes
	out := make([]MeterSample, 0, n)
	for i := 0; i < n; i++ {
		off := i * meterPairBytes
		idx := binary.BigEndian.Uint16(p[off : off+2])
		raw := int16(binary.BigEndian.Uint16(p[off+2 : off+4]))
		out = append(out, MeterSample{
			Index:     int(idx),
			RawValue:  raw,
			Value:     float64(raw) / 256.0,
			Timestamp: at,
		})
	}
	return out
}
