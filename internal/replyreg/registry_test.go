package replyreg

import (
	"testing"
	"time"

	"github.com/flexradio/flex-sdr/internal/flexerr"
	"github.com/flexradio/flex-sdr/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestCompleteSignalsExactlyOnce(t *testing.T) {
	r := New(5 * time.Second)
	var got []wire.Reply
	r.Register(17, FuncSink{OnComplete: func(reply wire.Reply) {
		got = append(got, reply)
	}})

	require.True(t, r.Complete(wire.Reply{Seq: 17, Status: 0}))
	require.False(t, r.Complete(wire.Reply{Seq: 17, Status: 0}), "second completion must be dropped, already removed")
	require.Len(t, got, 1)
	require.Equal(t, 0, r.Len())
}

func TestCompleteUnknownSeqDropped(t *testing.T) {
	r := New(5 * time.Second)
	require.False(t, r.Complete(wire.Reply{Seq: 99}))
}

func TestSweepEvictsStaleEntriesWithTimeout(t *testing.T) {
	r := New(10 * time.Millisecond)
	var failErr error
	r.Register(1, FuncSink{OnFail: func(err error) { failErr = err }})

	evicted := r.Sweep(time.Now().Add(time.Hour))
	require.Equal(t, 1, evicted)
	var timeoutErr *flexerr.Timeout
	require.ErrorAs(t, failErr, &timeoutErr)
	require.Equal(t, 0, r.Len())
}

func TestSweepLeavesFreshEntries(t *testing.T) {
	r := New(time.Hour)
	r.Register(1, FuncSink{})
	evicted := r.Sweep(time.Now())
	require.Equal(t, 0, evicted)
	require.Equal(t, 1, r.Len())
}

func TestFailAllSignalsDisconnected(t *testing.T) {
	r := New(time.Second)
	var errs []error
	r.Register(20, FuncSink{OnFail: func(err error) { errs = append(errs, err) }})
	r.Register(21, FuncSink{OnFail: func(err error) { errs = append(errs, err) }})

	r.FailAll()
	require.Len(t, errs, 2)
	for _, err := range errs {
		var disconnectedErr *flexerr.Disconnected
		require.ErrorAs(t, err, &disconnectedErr)
	}
	require.Equal(t, 0, r.Len())
}
