package streamplane

import (
	"encoding/binary"
	"testing"

	"github.com/flexradio/flex-sdr/internal/wire"
	"github.com/stretchr/testify/require"
)

func waterfallSegmentPayload(startBin, totalBins, binsInPacket int, lineHeight, lineDurationMS, autoBlack, width uint16, frameLowFreqHz, binBandwidthHz, captureTS uint32, samples []uint16) []byte {
	out := make([]byte, waterfallDescriptorBytes+len(samples)*2)
	binary.BigEndian.PutUint16(out[0:2], uint16(startBin))
	binary.BigEndian.PutUint16(out[2:4], uint16(totalBins))
	binary.BigEndian.PutUint16(out[4:6], uint16(binsInPacket))
	binary.BigEndian.PutUint16(out[6:8], lineHeight)
	binary.BigEndian.PutUint16(out[8:10], lineDurationMS)
	binary.BigEndian.PutUint16(out[10:12], autoBlack)
	binary.BigEndian.PutUint16(out[12:14], width)
	binary.BigEndian.PutUint32(out[14:18], frameLowFreqHz)
	binary.BigEndian.PutUint32(out[18:22], binBandwidthHz)
	binary.BigEndian.PutUint32(out[22:26], captureTS)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[waterfallDescriptorBytes+i*2:waterfallDescriptorBytes+i*2+2], s)
	}
	return out
}

func TestWaterfallDecoderAssemblesSingleSegmentLine(t *testing.T) {
	d := NewWaterfallDecoder()
	payload := waterfallSegmentPayload(0, 3, 3, 150, 100, 40, 480, 14_200_000, 100, 99, []uint16{1, 2, 3})
	pkt, err := wire.ParsePacket(buildIFDataPacket(t, 0x42000001, payload))
	require.NoError(t, err)

	frame, ok, err := d.Decode(pkt)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []uint16{1, 2, 3}, frame.Samples)
	require.Equal(t, uint16(480), frame.Width)
	require.Equal(t, uint16(40), frame.AutoBlackLevel)
}

func TestWaterfallDecoderReassemblesOutOfOrderSegments(t *testing.T) {
	d := NewWaterfallDecoder()
	second := waterfallSegmentPayload(2, 4, 2, 150, 100, 40, 480, 1, 1, 1, []uint16{30, 40})
	first := waterfallSegmentPayload(0, 4, 2, 150, 100, 40, 480, 1, 1, 1, []uint16{10, 20})

	pkt2, err := wire.ParsePacket(buildIFDataPacket(t, 9, second))
	require.NoError(t, err)
	pkt1, err := wire.ParsePacket(buildIFDataPacket(t, 9, first))
	require.NoError(t, err)

	_, ok, err := d.Decode(pkt2)
	require.NoError(t, err)
	require.False(t, ok)

	frame, ok, err := d.Decode(pkt1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []uint16{10, 20, 30, 40}, frame.Samples)
}
