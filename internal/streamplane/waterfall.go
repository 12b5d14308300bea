package streamplane

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/flexradio/flex-sdr/internal/wire"
)

// waterfallDescriptorBytes extends the FFT-style descriptor with the
// waterfall-specific line metadata named in spec §4.6: start bin (u16),
// total bins (u16), bins in this packet (u16), line height (u16), line
// duration in ms (u16), auto-black level (u16), width (u16), frame low
// frequency in Hz (u32), bin bandwidth in Hz (u32), capture timestamp
// (u32).
const waterfallDescriptorBytes = 26

// waterfallSampleBytes is the width of one reassembled intensity value.
const waterfallSampleBytes = 2

// WaterfallFrame is one fully reassembled waterfall line.
type WaterfallFrame struct {
	StreamID         uint32
	Timestamp        uint32
	LineHeight       uint16
	LineDurationMS   uint16
	AutoBlackLevel   uint16
	Width            uint16
	FrameLowFreqHz   uint32
	BinBandwidthHz   uint32
	CaptureTimestamp uint32
	Samples          []uint16 // intensity values, ascending bin order
}

// WaterfallDecoder reassembles waterfall stream packets into complete
// lines. See FFTDecoder.SampleOrder for the sample byte order caveat.
type WaterfallDecoder struct {
	reassembler *Reassembler
	SampleOrder binary.ByteOrder
}

// NewWaterfallDecoder constructs a decoder with the spec's documented
// default sample byte order (little-endian).
func NewWaterfallDecoder() *WaterfallDecoder {
	return &WaterfallDecoder{reassembler: NewReassembler(), SampleOrder: binary.LittleEndian}
}

// Decode feeds one VITA packet's payload into the reassembler. ok is
// true only when pkt completed a line.
func (d *WaterfallDecoder) Decode(pkt wire.Packet) (frame *WaterfallFrame, ok bool, err error) {
	p := pkt.Payload
	if len(p) < waterfallDescriptorBytes {
		return nil, false, fmt.Errorf("streamplane: waterfall payload too short: %d bytes", len(p))
	}

	startBin := int(binary.BigEndian.Uint16(p[0:2]))
	totalBins := int(binary.BigEndian.Uint16(p[2:4]))
	binsInPacket := int(binary.BigEndian.Uint16(p[4:6]))
	lineHeight := binary.BigEndian.Uint16(p[6:8])
	lineDurationMS := binary.BigEndian.Uint16(p[8:10])
	autoBlackLevel := binary.BigEndian.Uint16(p[10:12])
	width := binary.BigEndian.Uint16(p[12:14])
	frameLowFreqHz := binary.BigEndian.Uint32(p[14:18])
	binBandwidthHz := binary.BigEndian.Uint32(p[18:22])
	captureTimestamp := binary.BigEndian.Uint32(p[22:26])

	samples := p[waterfallDescriptorBytes:]
	need := binsInPacket * waterfallSampleBytes
	if len(samples) < need {
		return nil, false, fmt.Errorf("streamplane: waterfall sample payload short: need %d, have %d", need, len(samples))
	}

	complete, done := d.reassembler.Feed(pkt.StreamID, pkt.IntegerTimestamp, startBin, binsInPacket, totalBins, waterfallSampleBytes, samples[:need])
	if !done {
		return nil, false, nil
	}

	out := make([]uint16, totalBins)
	for i := range out {
		out[i] = d.SampleOrder.Uint16(complete[i*waterfallSampleBytes : i*waterfallSampleBytes+waterfallSampleBytes])
	}
	return &WaterfallFrame{
		StreamID:         pkt.StreamID,
		Timestamp:        pkt.IntegerTimestamp,
		LineHeight:       lineHeight,
		LineDurationMS:   lineDurationMS,
		AutoBlackLevel:   autoBlackLevel,
		Width:            width,
		FrameLowFreqHz:   frameLowFreqHz,
		BinBandwidthHz:   binBandwidthHz,
		CaptureTimestamp: captureTimestamp,
		Samples:          out,
	}, true, nil
}

// EvictStale drops incomplete lines older than the 500ms window.
func (d *WaterfallDecoder) EvictStale() int {
	return d.reassembler.EvictStale(time.Now())
}
