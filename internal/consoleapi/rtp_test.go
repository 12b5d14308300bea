package consoleapi

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func TestOpusFrameSamplesDecodesTOC(t *testing.T) {
	cases := []struct {
		name    string
		config  byte
		samples uint32
	}{
		{"silk 10ms", 0, 480},
		{"silk 20ms", 1, 960},
		{"hybrid 10ms", 12, 480},
		{"hybrid 20ms", 13, 960},
		{"celt 20ms", 19, 960}, // config 19 % 4 == 3 -> 20ms
		{"celt 2.5ms", 16, 120},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			toc := c.config << 3
			require.Equal(t, c.samples, opusFrameSamples([]byte{toc, 0x00}))
		})
	}
}

func TestOpusFrameSamplesEmptyPayloadFallsBack(t *testing.T) {
	require.Equal(t, uint32(960), opusFrameSamples(nil))
}

type collectingSink struct {
	packets []*rtp.Packet
}

func (c *collectingSink) WriteRTP(pkt *rtp.Packet) error {
	c.packets = append(c.packets, pkt)
	return nil
}

func TestNewOpusRepacketizerPacketizesPayload(t *testing.T) {
	sink := &collectingSink{}
	rep := NewOpusRepacketizer(sink)
	require.NoError(t, rep.Write([]byte{0x78, 0x01, 0x02, 0x03}))
	require.Len(t, sink.packets, 1)
	require.Equal(t, uint8(111), sink.packets[0].PayloadType)
}
