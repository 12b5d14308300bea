package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandRoundTrip(t *testing.T) {
	cmd := Command{Seq: 17, Text: "slice tune 0 14.250000"}
	encoded, err := cmd.Encode()
	require.NoError(t, err)
	require.Equal(t, "C17|slice tune 0 14.250000", encoded)

	line, err := ParseLine(encoded)
	require.NoError(t, err)
	require.Equal(t, KindCommand, line.Kind)
	require.Equal(t, cmd.Seq, line.Command.Seq)
	require.Equal(t, cmd.Text, line.Command.Text)
}

func TestCommandRejectsEmbeddedNewline(t *testing.T) {
	cmd := Command{Seq: 1, Text: "slice tune 0 14.25\nslice tune 1 7.1"}
	_, err := cmd.Encode()
	require.ErrorIs(t, err, ErrEmbeddedNewline)
}

func TestParseReplySuccess(t *testing.T) {
	line, err := ParseLine("R17|0|")
	require.NoError(t, err)
	require.Equal(t, KindReply, line.Kind)
	require.Equal(t, uint32(17), line.Reply.Seq)
	require.True(t, line.Reply.Success())
	require.Equal(t, "", line.Reply.Message)
}

func TestParseReplyError(t *testing.T) {
	line, err := ParseLine("R18|50000015|slice not found")
	require.NoError(t, err)
	require.False(t, line.Reply.Success())
	require.Equal(t, uint32(0x50000015), line.Reply.Status)
	require.Equal(t, "slice not found", line.Reply.Message)
}

func TestParseReplyMessageMayContainPipes(t *testing.T) {
	line, err := ParseLine("R3|0|a|b|c")
	require.NoError(t, err)
	require.Equal(t, "a|b|c", line.Reply.Message)
}

func TestParseStatus(t *testing.T) {
	line, err := ParseLine("S591502EF|slice 0 rf_frequency=14.250000")
	require.NoError(t, err)
	require.Equal(t, KindStatus, line.Kind)
	require.Equal(t, uint32(0x591502EF), line.Status.Handle)
	require.Equal(t, "slice 0 rf_frequency=14.250000", line.Status.Body)
}

func TestParseMessageAndVersionAndHandle(t *testing.T) {
	m, err := ParseLine("M00000001|radio booted")
	require.NoError(t, err)
	require.Equal(t, KindMessage, m.Kind)
	require.Equal(t, uint32(1), m.Message.Level)
	require.Equal(t, "radio booted", m.Message.Text)

	v, err := ParseLine("V1.4.0.0")
	require.NoError(t, err)
	require.Equal(t, KindVersion, v.Kind)
	require.Equal(t, "1.4.0.0", v.Version)

	h, err := ParseLine("H591502EF")
	require.NoError(t, err)
	require.Equal(t, KindHandle, h.Kind)
	require.Equal(t, uint32(0x591502EF), h.Handle)
}

func TestParseLineRejectsUnknownKind(t *testing.T) {
	_, err := ParseLine("Xsomething")
	require.Error(t, err)
}

func TestParseLineRejectsMalformedReply(t *testing.T) {
	_, err := ParseLine("R17")
	require.Error(t, err)
}
