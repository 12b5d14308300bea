package status

import (
	"testing"
	"time"

	"github.com/flexradio/flex-sdr/internal/objgraph"
	"github.com/flexradio/flex-sdr/internal/replyreg"
	"github.com/flexradio/flex-sdr/internal/wire"
	"github.com/stretchr/testify/require"
)

type fakeSessionSink struct {
	version string
	handle  uint32
	msgs    []wire.Message
}

func (f *fakeSessionSink) HandleVersion(v string)      { f.version = v }
func (f *fakeSessionSink) HandleHandle(h uint32)        { f.handle = h }
func (f *fakeSessionSink) HandleMessage(m wire.Message) { f.msgs = append(f.msgs, m) }

func newTestRouter() (*Router, *objgraph.Graph) {
	g := objgraph.New()
	sink := &fakeSessionSink{}
	r := NewRouter(replyreg.New(5*time.Second), sink)
	r.RegisterHandler("slice", SliceHandler{Slices: g.Slices})
	r.RegisterHandler("pan", PanadapterHandler{Panadapters: g.Panadapters})
	r.RegisterHandler("waterfall", WaterfallHandler{Waterfalls: g.Waterfalls})
	r.RegisterHandler("meter", MeterHandler{Meters: g.Meters})
	r.RegisterHandler("audio_stream", AudioStreamHandler{AudioStreams: g.AudioStreams})
	r.RegisterHandler("usb_cable", USBCableHandler{USBCables: g.USBCables})
	r.RegisterHandler("memory", MemoryHandler{Memories: g.Memories})
	return r, g
}

// Scenario 2 (spec §8): command/reply success, no graph change until the
// radio confirms over status.
func TestScenarioCommandReplySuccessThenStatusConfirms(t *testing.T) {
	r, g := newTestRouter()

	var got wire.Reply
	r.Replies.Register(17, replyreg.FuncSink{OnComplete: func(reply wire.Reply) { got = reply }})

	line, err := wire.ParseLine("R17|0|")
	require.NoError(t, err)
	r.Route(line)
	require.True(t, got.Success())

	// No slice change yet.
	_, ok := g.Slices.Find(0)
	require.False(t, ok)

	statusLine, err := wire.ParseLine("S591502EF|slice 0 rf_frequency=14.250000")
	require.NoError(t, err)
	r.Route(statusLine)

	slice, ok := g.Slices.Find(0)
	require.True(t, ok)
	require.Equal(t, 14.25, slice.FrequencyMHz)
}

// Scenario 3 (spec §8): command/reply error.
func TestScenarioCommandReplyError(t *testing.T) {
	r, _ := newTestRouter()
	var got wire.Reply
	r.Replies.Register(18, replyreg.FuncSink{OnComplete: func(reply wire.Reply) { got = reply }})

	line, err := wire.ParseLine("R18|50000015|slice not found")
	require.NoError(t, err)
	r.Route(line)

	require.False(t, got.Success())
	require.Equal(t, uint32(0x50000015), got.Status)
	require.Equal(t, "slice not found", got.Message)
}

// Scenario 5 (spec §8): slice removal.
func TestScenarioSliceRemoval(t *testing.T) {
	r, g := newTestRouter()
	r.Route(mustLine(t, "S1|slice 3 rf_frequency=7.150000"))
	_, ok := g.Slices.Find(3)
	require.True(t, ok)

	ch := g.Slices.Subscribe()
	defer g.Slices.Unsubscribe(ch)

	r.Route(mustLine(t, "S1|slice 3 removed"))
	change := <-ch
	require.Equal(t, objgraph.Removed, change.Kind)
	require.Equal(t, 3, change.Key)

	_, ok = g.Slices.Find(3)
	require.False(t, ok)
}

func TestIdempotentStatusAppliedTwice(t *testing.T) {
	r, g := newTestRouter()
	ch := g.Slices.Subscribe()
	defer g.Slices.Unsubscribe(ch)

	r.Route(mustLine(t, "S1|slice 0 rf_frequency=14.250000"))
	first := <-ch
	require.Equal(t, objgraph.Added, first.Kind)

	r.Route(mustLine(t, "S1|slice 0 rf_frequency=14.250000"))
	second := <-ch
	require.Equal(t, objgraph.Updated, second.Kind)
	require.Empty(t, second.KeysChanged)
}

// TestIdempotentStatusWithChangedField checks the companion case: a
// re-applied line that now carries a genuinely different value still
// reports exactly that field in KeysChanged, proving setIfChanged
// doesn't just suppress every notification.
func TestIdempotentStatusWithChangedField(t *testing.T) {
	r, g := newTestRouter()
	ch := g.Slices.Subscribe()
	defer g.Slices.Unsubscribe(ch)

	r.Route(mustLine(t, "S1|slice 0 rf_frequency=14.250000 mode=USB"))
	<-ch

	r.Route(mustLine(t, "S1|slice 0 rf_frequency=14.260000 mode=USB"))
	second := <-ch
	require.Equal(t, objgraph.Updated, second.Kind)
	require.Equal(t, []string{"rf_frequency"}, second.KeysChanged)
}

// TestIdempotentUSBCableSameVariantTwice guards against the
// allocate-and-zero pattern in USBCableHandler.Apply: re-sending the
// same cable_type alongside unchanged sub-config fields must not mark
// those fields changed on the second application.
func TestIdempotentUSBCableSameVariantTwice(t *testing.T) {
	r, g := newTestRouter()
	ch := g.USBCables.Subscribe()
	defer g.USBCables.Unsubscribe(ch)

	r.Route(mustLine(t, "S1|usb_cable ABC123 cable_type=cat baud_rate=9600"))
	first := <-ch
	require.Equal(t, objgraph.Added, first.Kind)

	r.Route(mustLine(t, "S1|usb_cable ABC123 cable_type=cat baud_rate=9600"))
	second := <-ch
	require.Equal(t, objgraph.Updated, second.Kind)
	require.Empty(t, second.KeysChanged)
}

func TestUnregisteredReplyIsDroppedAndCounted(t *testing.T) {
	r, _ := newTestRouter()
	r.Route(mustLine(t, "R99|0|"))
	require.Equal(t, 1, r.UnknownReplies)
}

func TestUnknownObjectTypeDropped(t *testing.T) {
	r, _ := newTestRouter()
	require.NotPanics(t, func() {
		r.Route(mustLine(t, "S1|tuner 0 power=on"))
	})
}

func TestHandleVersionMessageRouted(t *testing.T) {
	r, _ := newTestRouter()
	sink := r.Session.(*fakeSessionSink)

	r.Route(mustLine(t, "H591502EF"))
	require.Equal(t, uint32(0x591502EF), sink.handle)

	r.Route(mustLine(t, "V1.4.0.0"))
	require.Equal(t, "1.4.0.0", sink.version)

	r.Route(mustLine(t, "M00000001|radio booted"))
	require.Len(t, sink.msgs, 1)
}

func mustLine(t *testing.T, raw string) wire.Line {
	t.Helper()
	l, err := wire.ParseLine(raw)
	require.NoError(t, err)
	return l
}
