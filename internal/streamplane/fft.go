package streamplane

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/flexradio/flex-sdr/internal/wire"
)

// fftDescriptorBytes is the fixed-width header FlexRadio prepends to
// each FFT payload segment, ahead of the int16 dB samples themselves:
// start bin (u16), total bins in the frame (u16), bins carried in this
// packet (u16), frame low frequency in Hz (u32), bin bandwidth in Hz
// (u32), capture timestamp (u32).
const fftDescriptorBytes = 18

// fftSampleBytes is the width of one reassembled FFT sample.
const fftSampleBytes = 2

// FFTFrame is one fully reassembled panadapter spectrum frame.
type FFTFrame struct {
	StreamID         uint32
	Timestamp        uint32
	FrameLowFreqHz   uint32
	BinBandwidthHz   uint32
	CaptureTimestamp uint32
	Samples          []int16 // dB values, ascending bin order, len == total bins
}

// FFTDecoder reassembles FFT stream packets into complete frames.
//
// SampleOrder resolves the open question over on-wire sample byte
// order (spec §12 OQ-1): the descriptor fields are always big-endian
// network order, matching the VITA-49 header, but the sample array
// itself is configurable to accommodate radios observed emitting
// little-endian sample payloads.
type FFTDecoder struct {
	reassembler *Reassembler
	SampleOrder binary.ByteOrder
}

// NewFFTDecoder constructs a decoder with the spec's documented default
// sample byte order (little-endian).
func NewFFTDecoder() *FFTDecoder {
	return &FFTDecoder{reassembler: NewReassembler(), SampleOrder: binary.LittleEndian}
}

// Decode feeds one VITA packet's payload into the reassembler. ok is
// true only when pkt completed a frame.
func (d *FFTDecoder) Decode(pkt wire.Packet) (frame *FFTFrame, ok bool, err error) {
	p := pkt.Payload
	if len(p) < fftDescriptorBytes {
		return nil, false, fmt.Errorf("streamplane: fft payload too short: %d bytes", len(p))
	}

	startBin := int(binary.BigEndian.Uint16(p[0:2]))
	totalBins := int(binary.BigEndian.Uint16(p[2:4]))
	binsInPacket := int(binary.BigEndian.Uint16(p[4:6]))
	frameLowFreqHz := binary.BigEndian.Uint32(p[6:10])
	binBandwidthHz := binary.BigEndian.Uint32(p[10:14])
	captureTimestamp := binary.BigEndian.Uint32(p[14:18])

	samples := p[fftDescriptorBytes:]
	need := binsInPacket * fftSampleBytes
	if len(samples) < need {
		return nil, false, fmt.Errorf("streamplane: fft sample payload short: need %d, have %d", need, len(samples))
	}

	complete, done := d.reassembler.Feed(pkt.StreamID, pkt.IntegerTimestamp, startBin, binsInPacket, totalBins, fftSampleBytes, samples[:need])
	if !done {
		return nil, false, nil
	}

	out := make([]int16, totalBins)
	for i := range out {
		out[i] = int16(d.SampleOrder.Uint16(complete[i*fftSampleBytes : i*fftSampleBytes+fftSampleBytes]))
	}
	return &FFTFrame{
		StreamID:         pkt.StreamID,
		Timestamp:        pkt.IntegerTimestamp,
		FrameLowFreqHz:   frameLowFreqHz,
		BinBandwidthHz:   binBandwidthHz,
		CaptureTimestamp: captureTimestamp,
		Samples:          out,
	}, true, nil
}

// EvictStale drops incomplete frames older than the 500ms window.
func (d *FFTDecoder) EvictStale() int {
	return d.reassembler.EvictStale(time.Now())
}
