// Package replyreg implements the reply registry described in spec §4.3:
// a seq → sink map completed exactly once, either by an inbound reply or
// by a timeout sweep.
package replyreg

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flexradio/flex-sdr/internal/flexerr"
	"github.com/flexradio/flex-sdr/internal/wire"
)

// Sink receives exactly one of Complete or Fail.
type Sink interface {
	Complete(reply wire.Reply)
	Fail(err error)
}

// FuncSink adapts two closures into a Sink, convenient for tests and for
// futures implemented with channels.
type FuncSink struct {
	OnComplete func(wire.Reply)
	OnFail     func(error)
}

func (f FuncSink) Complete(reply wire.Reply) {
	if f.OnComplete != nil {
		f.OnComplete(reply)
	}
}

func (f FuncSink) Fail(err error) {
	if f.OnFail != nil {
		f.OnFail(err)
	}
}

type entry struct {
	sink      Sink
	createdAt time.Time
	traceID   uuid.UUID
}

// Registry maps sequence numbers to pending reply sinks. It is shared by
// a writer task (Register, called before the command hits the wire) and
// a reader task (Complete, called as R-lines arrive); both hold the lock
// only for the duration of a map operation.
type Registry struct {
	timeout time.Duration

	mu      sync.Mutex
	pending map[uint32]entry
}

// New creates a registry with the given reply timeout (suggested 5s per
// spec §3; zero disables the sweep's timeout check, useful in tests).
func New(timeout time.Duration) *Registry {
	return &Registry{timeout: timeout, pending: make(map[uint32]entry)}
}

// Register records a pending sink for seq. Registration must happen
// before the corresponding command is flushed to the transport, so that
// an immediate reply can never race ahead of the registration. It
// returns a trace id useful for correlating this registration across
// wirelog and metrics output, independent of seq reuse across sessions.
func (r *Registry) Register(seq uint32, sink Sink) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.pending[seq] = entry{sink: sink, createdAt: time.Now(), traceID: id}
	r.mu.Unlock()
	return id
}

// TraceID returns the trace id assigned when seq was registered, if it
// is still pending.
func (r *Registry) TraceID(seq uint32) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pending[seq]
	return e.traceID, ok
}

// Complete signals the sink registered for reply.Seq exactly once, and
// removes it from the registry. A reply with no matching registration is
// dropped (the caller should bump an orphan-reply counter).
func (r *Registry) Complete(reply wire.Reply) (found bool) {
	r.mu.Lock()
	e, ok := r.pending[reply.Seq]
	if ok {
		delete(r.pending, reply.Seq)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.sink.Complete(reply)
	return true
}

// Cancel drops the registration for seq without signaling it, used when
// a caller abandons a reply future before it completes.
func (r *Registry) Cancel(seq uint32) {
	r.mu.Lock()
	delete(r.pending, seq)
	r.mu.Unlock()
}

// Sweep evicts entries older than the registry's timeout, as of now, and
// signals them with *flexerr.Timeout. Intended to run off a periodic ticker in
// the session's housekeeping task.
func (r *Registry) Sweep(now time.Time) (evicted int) {
	if r.timeout <= 0 {
		return 0
	}
	var stale []struct {
		seq  uint32
		sink Sink
	}
	r.mu.Lock()
	for seq, e := range r.pending {
		if now.Sub(e.createdAt) >= r.timeout {
			stale = append(stale, struct {
				seq  uint32
				sink Sink
			}{seq, e.sink})
			delete(r.pending, seq)
		}
	}
	r.mu.Unlock()
	for _, s := range stale {
		s.sink.Fail(&flexerr.Timeout{Seq: s.seq})
	}
	return len(stale)
}

// FailAll signals every outstanding sink with *flexerr.Disconnected and clears
// the registry, used on session teardown.
func (r *Registry) FailAll() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[uint32]entry)
	r.mu.Unlock()
	for _, e := range pending {
		e.sink.Fail(&flexerr.Disconnected{})
	}
}

// Len reports the number of outstanding registrations, for tests and
// diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
