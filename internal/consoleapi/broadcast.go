package consoleapi

import (
	"encoding/json"
	"sync"

	"github.com/flexradio/flex-sdr/internal/session"
	"github.com/flexradio/flex-sdr/internal/streamplane"
)

// Broadcaster implements session.StreamSink and fans decoded stream-
// plane samples out to any number of dynamically attached subscribers.
// A caller passes one Broadcaster to session.Connect as the sink, then
// hands the same Broadcaster to NewWSHandler (and/or the WebRTC
// Server) so any number of observers can attach to one radio session
// without the session itself knowing consoleapi exists — the fan-out
// the teacher's internal/rtc hard-wired to exactly one PeerConnection.
//
// Per-subscriber delivery honors audioPolicy for audio samples (spec
// §5/§6 stream_overflow_policy): session.Block waits for room on each
// subscriber's own channel rather than dropping, since by the time a
// sample reaches here it has already cleared the session's own
// per-stream queue, so blocking only stalls this one subscriber's
// pump goroutine, never the VITA receive loop. FFT/waterfall/meter
// samples always drop the oldest pending entry per subscriber,
// matching the "latest wins" policy spec §5 fixes for spectrum data.
type Broadcaster struct {
	mu          sync.Mutex
	subs        map[chan []byte]chan struct{} // value closes when the subscriber leaves
	audioPolicy session.OverflowPolicy
}

// NewBroadcaster constructs an empty Broadcaster that drops samples
// under subscriber back-pressure for every kind, including audio.
func NewBroadcaster() *Broadcaster {
	return NewBroadcasterWithPolicy(session.DropOldest)
}

// NewBroadcasterWithPolicy constructs an empty Broadcaster whose audio
// delivery honors audioPolicy (spec §6 stream_overflow_policy); FFT,
// waterfall, and meter delivery are always drop-oldest regardless.
func NewBroadcasterWithPolicy(audioPolicy session.OverflowPolicy) *Broadcaster {
	return &Broadcaster{subs: make(map[chan []byte]chan struct{}), audioPolicy: audioPolicy}
}

// Subscribe returns a channel of marshaled sample envelopes. The
// channel is buffered; a slow subscriber under drop-oldest delivery
// misses samples rather than applying back-pressure, but a blocking
// audioPolicy subscriber can hold up its own audio delivery (never any
// other subscriber's, and never the radio's own receive path, which
// has already cleared the session's per-stream queue by the time a
// sample reaches here).
func (b *Broadcaster) Subscribe() chan []byte {
	ch := make(chan []byte, 256)
	b.mu.Lock()
	b.subs[ch] = make(chan struct{})
	b.mu.Unlock()
	return ch
}

// Unsubscribe stops and closes a channel returned by Subscribe. Any
// publish currently blocked sending to ch (audio under a blocking
// policy) is released instead of leaking.
func (b *Broadcaster) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	done, ok := b.subs[ch]
	if ok {
		delete(b.subs, ch)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	close(done)
	close(ch)
}

func (b *Broadcaster) publish(kind string, data any) {
	payload, err := json.Marshal(sampleEvent{Type: kind, Data: data})
	if err != nil {
		return
	}

	b.mu.Lock()
	targets := make(map[chan []byte]chan struct{}, len(b.subs))
	for ch, done := range b.subs {
		targets[ch] = done
	}
	b.mu.Unlock()

	block := kind == "audio" && b.audioPolicy == session.Block
	for ch, done := range targets {
		if block {
			select {
			case ch <- payload:
			case <-done:
			}
			continue
		}
		select {
		case ch <- payload:
		default:
			// Full: evict the oldest pending entry, then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- payload:
			default:
			}
		}
	}
}

type sampleEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// FFT implements session.StreamSink.
func (b *Broadcaster) FFT(frame streamplane.FFTFrame) { b.publish("fft", frame) }

// Waterfall implements session.StreamSink.
func (b *Broadcaster) Waterfall(frame streamplane.WaterfallFrame) { b.publish("waterfall", frame) }

// Meter implements session.StreamSink.
func (b *Broadcaster) Meter(samples []streamplane.MeterSample) { b.publish("meter", samples) }

// Audio implements session.StreamSink. Opus frames are republished
// verbatim here; NewOpusRepacketizer (rtp.go) turns them into RTP for a
// WebRTC track or any other RTP-shaped sink.
func (b *Broadcaster) Audio(frame streamplane.AudioFrame) { b.publish("audio", frame) }
