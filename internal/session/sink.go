package session

import "github.com/flexradio/flex-sdr/internal/streamplane"

// StreamSink receives decoded stream-plane samples, per spec §3 "decoded
// samples are forwarded to a consumer-provided sink." Implementations
// must not block for long: a per-family delivery goroutine calls these
// methods from a bounded queue, and once a slow sink lets that queue
// fill, FFT/waterfall samples are dropped oldest-first and meter/audio
// samples are dropped or make the VITA receive loop wait, per the
// session's overflow policy.
type StreamSink interface {
	FFT(frame streamplane.FFTFrame)
	Waterfall(frame streamplane.WaterfallFrame)
	Meter(samples []streamplane.MeterSample)
	Audio(frame streamplane.AudioFrame)
}

// NoopSink discards every sample, useful when a caller only cares about
// the object graph and command/reply traffic.
type NoopSink struct{}

func (NoopSink) FFT(streamplane.FFTFrame)           {}
func (NoopSink) Waterfall(streamplane.WaterfallFrame) {}
func (NoopSink) Meter([]streamplane.MeterSample)    {}
func (NoopSink) Audio(streamplane.AudioFrame)       {}
