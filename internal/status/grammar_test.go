package status

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBodyBasic(t *testing.T) {
	l := ParseBody("slice 0 rf_frequency=14.250000 mode=USB")
	require.Equal(t, "slice", l.ObjectType)
	require.Equal(t, "0", l.Selector)
	require.False(t, l.Removed)
	v, ok := l.Get("rf_frequency")
	require.True(t, ok)
	require.Equal(t, "14.250000", v)
	v, ok = l.Get("mode")
	require.True(t, ok)
	require.Equal(t, "USB", v)
}

func TestParseBodyRemoved(t *testing.T) {
	l := ParseBody("slice 3 removed")
	require.Equal(t, "slice", l.ObjectType)
	require.Equal(t, "3", l.Selector)
	require.True(t, l.Removed)
}

func TestParseBodySkipsMalformedTokenButKeepsGoing(t *testing.T) {
	l := ParseBody("pan 0x40000001 bogus_no_equals bandwidth=0.200000")
	v, ok := l.Get("bandwidth")
	require.True(t, ok)
	require.Equal(t, "0.200000", v)
}

func TestParseBodyUnescapesSpaces(t *testing.T) {
	l := ParseBody("usb_cable ABC123 name=Generic\x7fXcvr")
	v, ok := l.Get("name")
	require.True(t, ok)
	require.Equal(t, "Generic Xcvr", v)
}

func TestSelectorIndexAndStreamID(t *testing.T) {
	l := ParseBody("slice 3 mode=USB")
	idx, ok := l.SelectorIndex()
	require.True(t, ok)
	require.Equal(t, 3, idx)

	l2 := ParseBody("pan 0x40000001 bandwidth=0.2")
	sid, ok := l2.SelectorStreamID()
	require.True(t, ok)
	require.Equal(t, uint32(0x40000001), sid)
}

func TestClampPercent(t *testing.T) {
	require.Equal(t, 0, ClampPercent(-5))
	require.Equal(t, 100, ClampPercent(250))
	require.Equal(t, 42, ClampPercent(42))
}

func TestParseBoolOnlyAcceptsZeroOne(t *testing.T) {
	v, ok := ParseBool("1")
	require.True(t, ok)
	require.True(t, v)

	_, ok = ParseBool("true")
	require.False(t, ok)
}
