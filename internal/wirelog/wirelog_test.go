package wirelog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenEmptyPathDisablesLogging(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	require.Nil(t, l)

	c := l.NewConnection(0, "10.0.0.5", 4992)
	require.Nil(t, c)
	c.OnRawLine("OUT", "C0|slice tune 0 14.250000")
	require.NoError(t, l.Close())
}

func TestConnectionWritesLabeledLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wire.log")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	c := l.NewConnection(0x591502EF, "10.0.0.5", 4992)
	c.OnRawLine("OUT", "C0|slice tune 0 14.250000")
	c.OnRawLine("IN", "R0|0|0x00000001")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "OUT ")
	require.Contains(t, string(data), "IN  ")
	require.Contains(t, string(data), "H591502EF")
	require.Contains(t, string(data), "slice tune 0 14.250000")
}

func TestSanitizeMessageLabelsEmptyLines(t *testing.T) {
	require.Equal(t, "<empty>", sanitizeMessage("\r\n"))
	require.Equal(t, "foo", sanitizeMessage("foo\r\n"))
}
