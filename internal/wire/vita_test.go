package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildPacket assembles a minimal VITA-49 IF-data-with-stream-id packet
// carrying a class id but no timestamps or trailer.
func buildPacket(t *testing.T, streamID uint32, classCode uint16, payload []byte) []byte {
	t.Helper()
	words := 1 + 1 + 2 + (len(payload)+3)/4
	b := make([]byte, words*4)

	word0 := uint32(PacketTypeIFDataWithStream)<<28 | 1<<27 /* class id present */ | uint32(words)
	binary.BigEndian.PutUint32(b[0:4], word0)
	binary.BigEndian.PutUint32(b[4:8], streamID)
	binary.BigEndian.PutUint32(b[8:12], 0x00001234) // OUI word
	binary.BigEndian.PutUint32(b[12:16], uint32(classCode))
	copy(b[16:], payload)
	return b[:16+len(payload)]
}

func TestParsePacketBasic(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	b := buildPacket(t, 0x40000001, ClassCodeFFT, payload)

	p, err := ParsePacket(b)
	require.NoError(t, err)
	require.Equal(t, uint32(0x40000001), p.StreamID)
	require.Equal(t, ClassCodeFFT, p.ClassCode)
	require.True(t, p.HasClassID)
	require.False(t, p.HasTrailer)
	require.Equal(t, payload, p.Payload)
}

func TestParsePacketRejectsTruncated(t *testing.T) {
	_, err := ParsePacket([]byte{0, 1, 2})
	require.ErrorIs(t, err, ErrShortPacket)
}

func TestParsePacketRejectsSizeMismatch(t *testing.T) {
	b := buildPacket(t, 1, ClassCodeMeter, []byte{9, 9})
	// Corrupt the header's word count so it disagrees with len(b).
	word0 := binary.BigEndian.Uint32(b[0:4])
	wordCount := word0 & 0xFFFF
	word0 = (word0 &^ 0xFFFF) | (wordCount + 1)
	binary.BigEndian.PutUint32(b[0:4], word0)

	_, err := ParsePacket(b)
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestParsePacketNoStreamIDType(t *testing.T) {
	b := make([]byte, 8)
	word0 := uint32(PacketTypeIFDataNoStreamID)<<28 | 2 // 2 words, no optionals
	binary.BigEndian.PutUint32(b[0:4], word0)
	binary.BigEndian.PutUint32(b[4:8], 0xAABBCCDD) // treated as payload, not stream id

	p, err := ParsePacket(b)
	require.NoError(t, err)
	require.False(t, p.HasStreamID)
	require.Equal(t, uint32(0), p.StreamID)
	require.Len(t, p.Payload, 4)
}

func TestNextCountWrap(t *testing.T) {
	require.Equal(t, uint8(0), NextCount(15))
	require.Equal(t, uint8(5), NextCount(4))
}

func TestEscapeValueRoundTrip(t *testing.T) {
	v := "Generic Xcvr"
	esc := EscapeValue(v)
	require.NotContains(t, esc, " ")
	require.Equal(t, v, UnescapeValue(esc))
}
