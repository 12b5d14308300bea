package session

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/flexradio/flex-sdr/internal/nat"
	"github.com/flexradio/flex-sdr/internal/objgraph"
	"github.com/flexradio/flex-sdr/internal/replyreg"
	"github.com/flexradio/flex-sdr/internal/status"
	"github.com/flexradio/flex-sdr/internal/streamplane"
	"github.com/flexradio/flex-sdr/internal/transport"
	"github.com/flexradio/flex-sdr/internal/wire"
	"github.com/flexradio/flex-sdr/internal/wirelog"
)

// subscribeAllCommands are issued once the handle banner arrives, before
// udp_register, so every status line the radio can emit for an existing
// entity arrives and seeds the object graph (spec §4.8 "query the radio
// with a subscribe-all command per object type").
var subscribeAllCommands = []string{
	"sub slice all",
	"sub pan all",
	"sub waterfall all",
	"sub meter all",
	"sub usb_cable all",
	"sub memories all",
	"sub tx all",
	"sub audio_stream all",
}

// housekeepingInterval drives the reply-registry timeout sweep and the
// FFT/waterfall reassembly eviction (spec §5 "periodic sweep").
const housekeepingInterval = time.Second

// natKeepAliveInterval is how often a WAN session sends a "ping"
// command to the radio over the TCP command channel. No keep-alive
// packet is written to the UDP stream socket.
const natKeepAliveInterval = 5 * time.Second

// streamQueueCapacity bounds each per-stream-family consumer queue
// between the VITA receive loop and the caller's sink (spec §5
// "stream consumer queues are bounded").
const streamQueueCapacity = 64

// Session orchestrates the transport, reply registry, status router,
// object graph, and VITA stream plane for one connected radio (spec
// §4.8, §2).
type Session struct {
	cfg Config

	stateMu sync.Mutex
	state   State

	tr       *transport.Transport
	replies  *replyreg.Registry
	router   *status.Router
	Graph    *objgraph.Graph
	pool     *streamplane.Pool
	gap      *streamplane.GapTracker
	fft      *streamplane.FFTDecoder
	waterfall *streamplane.WaterfallDecoder

	sink StreamSink

	// Per-stream-family bounded consumer queues (spec §5): handlePacket
	// and decodeAudio enqueue onto these instead of calling sink methods
	// directly, so a slow sink applies back-pressure (or loses the
	// oldest sample) according to cfg.StreamOverflowPolicy instead of
	// stalling the VITA receive loop indefinitely.
	fftCh       chan streamplane.FFTFrame
	waterfallCh chan streamplane.WaterfallFrame
	meterCh     chan []streamplane.MeterSample
	audioCh     chan streamplane.AudioFrame

	Handle  uint32
	Version string

	LostPackets objgraph.Counter

	natMapper *nat.PortMapper
	wlogger   *wirelog.Logger
	wlog      *wirelog.Conn

	Events chan Event

	handleCh chan struct{}
	handleOnce sync.Once

	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// Connect dials the radio's command channel, waits for the handle
// banner, subscribes to every object type, allocates the stream-plane
// socket, and announces it to the radio. The returned Session is in
// state Connected.
func Connect(ctx context.Context, cfg Config, sink StreamSink) (*Session, error) {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = NoopSink{}
	}

	s := &Session{
		cfg:         cfg,
		replies:     replyreg.New(cfg.ReplyTimeout),
		Graph:       objgraph.New(),
		pool:        streamplane.NewPool(),
		gap:         streamplane.NewGapTracker(),
		fft:         streamplane.NewFFTDecoder(),
		waterfall:   streamplane.NewWaterfallDecoder(),
		sink:        sink,
		fftCh:       make(chan streamplane.FFTFrame, streamQueueCapacity),
		waterfallCh: make(chan streamplane.WaterfallFrame, streamQueueCapacity),
		meterCh:     make(chan []streamplane.MeterSample, streamQueueCapacity),
		audioCh:     make(chan streamplane.AudioFrame, streamQueueCapacity),
		Events:      make(chan Event, 16),
		handleCh:    make(chan struct{}),
		stop:        make(chan struct{}),
	}
	s.setState(Connecting)

	s.wg.Add(4)
	go s.deliverFFT()
	go s.deliverWaterfall()
	go s.deliverMeter()
	go s.deliverAudio()

	s.router = status.NewRouter(s.replies, s)
	s.router.RegisterHandler("slice", status.SliceHandler{Slices: s.Graph.Slices})
	s.router.RegisterHandler("pan", status.PanadapterHandler{Panadapters: s.Graph.Panadapters})
	s.router.RegisterHandler("waterfall", status.WaterfallHandler{Waterfalls: s.Graph.Waterfalls})
	s.router.RegisterHandler("meter", status.MeterHandler{Meters: s.Graph.Meters})
	s.router.RegisterHandler("audio_stream", status.AudioStreamHandler{AudioStreams: s.Graph.AudioStreams})
	s.router.RegisterHandler("usb_cable", status.USBCableHandler{USBCables: s.Graph.USBCables})
	s.router.RegisterHandler("memory", status.MemoryHandler{Memories: s.Graph.Memories})

	tr, err := transport.Connect(ctx, cfg.Host, cfg.Port, transport.Options{
		UseTLS:      cfg.UseTLS,
		TrustRoots:  cfg.TrustRoots,
		DialTimeout: cfg.DialTimeout,
	}, s.onDisconnect)
	if err != nil {
		s.setState(Disconnected)
		return nil, err
	}
	s.tr = tr

	if cfg.APILogPath != "" {
		logger, err := wirelog.Open(cfg.APILogPath)
		if err != nil {
			log.Printf("[session] api log disabled, open %q failed: %v", cfg.APILogPath, err)
		} else {
			s.wlogger = logger
			s.wlog = logger.NewConnection(0, cfg.Host, cfg.Port)
			tr.OnRawLine = s.wlog.OnRawLine
		}
	}

	s.wg.Add(1)
	go s.pumpLines()

	select {
	case <-s.handleCh:
	case <-ctx.Done():
		_ = tr.Close()
		s.setState(Disconnected)
		return nil, ctx.Err()
	}

	for _, cmd := range subscribeAllCommands {
		if _, err := s.tr.Send(cmd); err != nil {
			log.Printf("[session] subscribe command %q failed: %v", cmd, err)
		}
	}

	port, err := s.pool.Open("data", cfg.LocalBindIP, s.handlePacket)
	if err != nil {
		_ = tr.Close()
		s.setState(Disconnected)
		return nil, fmt.Errorf("session: open stream socket: %w", err)
	}
	if _, err := s.tr.Send(fmt.Sprintf("client udp_register port=%d", port)); err != nil {
		log.Printf("[session] udp_register failed: %v", err)
	}

	if cfg.WAN {
		s.startWAN(port)
	}

	s.wg.Add(1)
	go s.housekeeping()

	s.setState(Connected)
	return s, nil
}

// HandleVersion implements status.SessionSink.
func (s *Session) HandleVersion(version string) {
	s.Version = version
}

// HandleHandle implements status.SessionSink. A second H banner with a
// different handle is logged as a protocol anomaly but never torn down
// (spec §7 "malformed content never tears down the session"); the same
// handle repeated is a silent no-op.
func (s *Session) HandleHandle(handle uint32) {
	s.handleOnce.Do(func() {
		s.Handle = handle
		s.wlog.Rebind(handle)
		close(s.handleCh)
	})
	if s.Handle != handle {
		log.Printf("[session] received handle 0x%08X, already bound to 0x%08X", handle, s.Handle)
	}
}

// HandleMessage implements status.SessionSink.
func (s *Session) HandleMessage(msg wire.Message) {
	log.Printf("[session] radio message (level=0x%x): %s", msg.Level, msg.Text)
}

// Send issues a fire-and-forget command.
func (s *Session) Send(text string) (uint32, error) {
	return s.tr.Send(text)
}

// SendWithReply issues a command and registers sink for its reply.
func (s *Session) SendWithReply(text string, sink replyreg.Sink) (uint32, error) {
	return s.tr.SendWithReply(s.replies, text, sink)
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.stateMu.Lock()
	s.state = next
	s.stateMu.Unlock()
	select {
	case s.Events <- Event{Kind: StateChanged, State: next}:
	default:
	}
}

// Close tears the session down per spec §4.8 exit-from-Connected: drain
// outstanding writes (handled by the transport's serialized writer),
// close VITA sockets, close the transport, fail outstanding replies with
// Disconnected, and emit a single terminal notification.
func (s *Session) Close() error {
	return s.shutdown(nil)
}

func (s *Session) onDisconnect(err error) {
	_ = s.shutdown(err)
}

func (s *Session) shutdown(cause error) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.setState(Closing)
		close(s.stop)

		s.replies.FailAll()
		s.pool.Close()
		if s.natMapper != nil {
			s.natMapper.Close()
		}
		closeErr = s.tr.Close()

		s.wg.Wait()
		_ = s.wlogger.Close()

		s.setState(Disconnected)
		select {
		case s.Events <- Event{Kind: Terminal, State: Disconnected, Err: cause}:
		default:
		}
		close(s.Events)
	})
	return closeErr
}

func (s *Session) pumpLines() {
	defer s.wg.Done()
	for line := range s.tr.Lines {
		s.router.Route(line)
	}
}

func (s *Session) housekeeping() {
	defer s.wg.Done()
	t := time.NewTicker(housekeepingInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			evicted := s.replies.Sweep(time.Now())
			s.cfg.Metrics.AddReplyTimeouts(evicted)
			s.fft.EvictStale()
			s.waterfall.EvictStale()
		case <-s.stop:
			return
		}
	}
}

func (s *Session) startWAN(localPort int) {
	mapper, externalIP, err := nat.DiscoverGateway()
	if err != nil {
		log.Printf("[session] nat discovery failed, continuing without port mapping: %v", err)
	} else {
		s.natMapper = mapper
		if err := mapper.MapStreamPort(localPort, "data", 0); err != nil {
			log.Printf("[session] nat port mapping failed: %v", err)
		} else {
			mapper.Refresh(0)
			log.Printf("[session] external address for stream socket: %s", externalIP)
		}
	}

	s.wg.Add(1)
	go s.natKeepAlive()
}

func (s *Session) natKeepAlive() {
	defer s.wg.Done()
	t := time.NewTicker(natKeepAliveInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if _, err := s.tr.Send("ping"); err != nil {
				return
			}
		case <-s.stop:
			return
		}
	}
}

// handlePacket is the stream-plane socket's PacketHandler: it drops
// packets for unknown stream ids as orphans (spec §8 "if the object
// graph has no entry for id, packets increment orphan_packets and do
// not mutate state"), tracks per-stream packet-count gaps, and
// dispatches by class code to the matching decoder.
func (s *Session) handlePacket(pkt wire.Packet, from net.Addr) {
	// Meter data is not tied to a per-entity stream id: one shared
	// meter stream carries samples for every meter index known to the
	// object graph, so it is exempt from the orphan-stream check.
	if pkt.ClassCode != wire.ClassCodeMeter && !s.Graph.HasStream(pkt.StreamID) {
		s.Graph.OrphanPackets.Inc()
		s.cfg.Metrics.AddOrphanPackets(s.cfg.Host, 1)
		return
	}

	if s.gap.Observe(pkt.StreamID, pkt.PacketCount) {
		s.LostPackets.Inc()
		s.cfg.Metrics.AddLostPackets(s.cfg.Host, 1)
	}

	switch pkt.ClassCode {
	case wire.ClassCodeFFT:
		if frame, ok, err := s.fft.Decode(pkt); err != nil {
			log.Printf("[session] fft decode: %v", err)
		} else if ok {
			// Spectrum frames always drop the oldest pending frame on
			// overflow: a display only ever wants the latest one (spec
			// §5 "latest-wins"), regardless of cfg.StreamOverflowPolicy.
			enqueueDropOldest(s.fftCh, *frame)
		}
	case wire.ClassCodeWaterfall:
		if frame, ok, err := s.waterfall.Decode(pkt); err != nil {
			log.Printf("[session] waterfall decode: %v", err)
		} else if ok {
			enqueueDropOldest(s.waterfallCh, *frame)
		}
	case wire.ClassCodeMeter:
		enqueueWithPolicy(s.meterCh, s.stop, s.cfg.StreamOverflowPolicy, streamplane.DecodeMeterPacket(pkt, time.Now()))
	case wire.ClassCodeOpus:
		s.decodeAudio(pkt, true)
	default:
		s.decodeAudio(pkt, false)
	}
}

func (s *Session) decodeAudio(pkt wire.Packet, isOpus bool) {
	stream, ok := s.Graph.AudioStreams.Find(pkt.StreamID)
	if !ok {
		return
	}
	if isOpus || stream.Codec == objgraph.AudioCodecOpus {
		data, err := streamplane.DecodeOpus(pkt.Payload)
		if err != nil {
			log.Printf("[session] opus decode: %v", err)
			return
		}
		frame := streamplane.AudioFrame{StreamID: pkt.StreamID, Codec: objgraph.AudioCodecOpus, Opus: data}
		// Audio preserves ordering by default (spec §5 "blocks the
		// producer for audio"), but honors cfg.StreamOverflowPolicy so a
		// caller that would rather drop samples than stall the receive
		// loop can opt in to drop-oldest instead.
		enqueueWithPolicy(s.audioCh, s.stop, s.cfg.StreamOverflowPolicy, frame)
		return
	}
	pcm, err := streamplane.DecodePCM(pkt.Payload)
	if err != nil {
		log.Printf("[session] pcm decode: %v", err)
		return
	}
	frame := streamplane.AudioFrame{StreamID: pkt.StreamID, Codec: objgraph.AudioCodecPCM, PCM: pcm}
	enqueueWithPolicy(s.audioCh, s.stop, s.cfg.StreamOverflowPolicy, frame)
}

// enqueueDropOldest pushes v into ch, evicting the oldest pending entry
// first if ch is already full, so the receive loop never blocks on a
// slow consumer (spec §5 "latest-wins" for spectrum/waterfall).
func enqueueDropOldest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// enqueueWithPolicy pushes v into ch per policy: Block waits for room so
// delivery order is preserved (meter/audio's default), falling back to
// enqueueDropOldest otherwise. The send also races s.stop so a session
// tearing down never leaves the VITA receive loop stuck on a full
// channel no consumer will ever drain again.
func enqueueWithPolicy[T any](ch chan T, stop <-chan struct{}, policy OverflowPolicy, v T) {
	if policy == Block {
		select {
		case ch <- v:
		case <-stop:
		}
		return
	}
	enqueueDropOldest(ch, v)
}

func (s *Session) deliverFFT() {
	defer s.wg.Done()
	for {
		select {
		case frame := <-s.fftCh:
			s.sink.FFT(frame)
		case <-s.stop:
			return
		}
	}
}

func (s *Session) deliverWaterfall() {
	defer s.wg.Done()
	for {
		select {
		case frame := <-s.waterfallCh:
			s.sink.Waterfall(frame)
		case <-s.stop:
			return
		}
	}
}

func (s *Session) deliverMeter() {
	defer s.wg.Done()
	for {
		select {
		case samples := <-s.meterCh:
			s.sink.Meter(samples)
		case <-s.stop:
			return
		}
	}
}

func (s *Session) deliverAudio() {
	defer s.wg.Done()
	for {
		select {
		case frame := <-s.audioCh:
			s.sink.Audio(frame)
		case <-s.stop:
			return
		}
	}
}
