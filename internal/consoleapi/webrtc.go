package consoleapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/flexradio/flex-sdr/internal/objgraph"
	"github.com/flexradio/flex-sdr/internal/session"
	"github.com/flexradio/flex-sdr/internal/streamplane"
)

// Options configures the consoleapi WebRTC publishing surface, carried
// over from the teacher's internal/rtc.Options. NAT1To1IPs is supplied
// by the caller (normally config.Config.NAT1To1IPs, taken as configured)
// and used as given: Server runs no NAT discovery of its own, so
// fd/go-nat discovery happens only in internal/session's WAN path.
type Options struct {
	ICEPortStart int
	ICEPortEnd   int
	STUN         []string
	NAT1To1IPs   []string
}

// Server publishes one or more radio sessions' live audio and object-
// graph/stream-plane state over WebRTC: an Opus audio track per
// session with an active Opus audio stream, plus a "console"
// DataChannel carrying object-graph change events in the JSON envelope
// NewWSHandler uses for them; stream-plane samples are not sent on it.
// Where the teacher's internal/rtc.Server held one *core.SessionManager
// of raw TCP/UDP sockets, Server holds typed *session.Session handles
// registered by the caller via Attach.
type Server struct {
	iceServers []webrtc.ICEServer
	api        *webrtc.API

	mu       sync.Mutex
	sessions map[string]*attachment
}

type attachment struct {
	sess *session.Session
	bc   *Broadcaster
	pc   *webrtc.PeerConnection
	dc   *webrtc.DataChannel
}

// New constructs a Server, setting up the ICE UDP mux/ephemeral range
// and NAT1:1 mapping exactly as the teacher's internal/rtc.New did.
func New(opt Options) *Server {
	var se webrtc.SettingEngine
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4, webrtc.NetworkTypeUDP6})

	if opt.ICEPortStart == opt.ICEPortEnd && opt.ICEPortStart != 0 {
		if mux, err := ice.NewMultiUDPMuxFromPort(opt.ICEPortStart); err == nil {
			se.SetICEUDPMux(mux)
			log.Printf("[consoleapi] webrtc: UDP mux on all interfaces, port %d", opt.ICEPortStart)
		} else {
			log.Printf("[consoleapi] webrtc: failed UDP mux on port %d: %v", opt.ICEPortStart, err)
		}
	} else if opt.ICEPortStart != 0 || opt.ICEPortEnd != 0 {
		if err := se.SetEphemeralUDPPortRange(uint16(opt.ICEPortStart), uint16(opt.ICEPortEnd)); err != nil {
			log.Printf("[consoleapi] webrtc: invalid ICE port range %d-%d: %v", opt.ICEPortStart, opt.ICEPortEnd, err)
		}
	}
	if len(opt.NAT1To1IPs) > 0 {
		se.SetNAT1To1IPs(opt.NAT1To1IPs, webrtc.ICECandidateTypeHost)
	}

	var iceServers []webrtc.ICEServer
	if len(opt.STUN) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: opt.STUN})
	}

	return &Server{
		iceServers: iceServers,
		api:        webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		sessions:   make(map[string]*attachment),
	}
}

// Attach registers sess (and the Broadcaster already passed to
// session.Connect as its sink) under label, the same label a browser
// client names in its offer's sessionId field. Calling Attach again
// with the same label replaces the previous registration.
func (s *Server) Attach(label string, sess *session.Session, bc *Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[label] = &attachment{sess: sess, bc: bc}
}

// Detach closes and forgets any PeerConnection publishing label.
func (s *Server) Detach(label string) {
	s.mu.Lock()
	a, ok := s.sessions[label]
	delete(s.sessions, label)
	s.mu.Unlock()
	if ok && a.pc != nil {
		_ = a.pc.Close()
	}
}

type offerRequest struct {
	SessionID string `json:"sessionId"`
	SDP       string `json:"sdp"`
}

type answerResponse struct {
	SDP string `json:"sdp"`
}

// OfferHandler is the /rtc/offer endpoint, structurally identical to
// the teacher's OfferHandler but resolving sessions from Attach's
// label map instead of a core.SessionManager.
func (s *Server) OfferHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
		return
	}
	label := strings.TrimSpace(req.SessionID)
	if label == "" || req.SDP == "" || !strings.HasPrefix(req.SDP, "v=") {
		http.Error(w, `{"error":"missing/invalid sessionId or sdp"}`, http.StatusBadRequest)
		return
	}

	ans, err := s.handleOffer(label, req.SDP)
	if err != nil {
		log.Printf("[consoleapi] webrtc offer failed: %v", err)
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(answerResponse{SDP: ans})
}

func (s *Server) handleOffer(label, offerSDP string) (string, error) {
	s.mu.Lock()
	a, ok := s.sessions[label]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no session attached as %q", label)
	}

	newConnection := a.pc == nil
	if newConnection {
		pc, err := s.api.NewPeerConnection(webrtc.Configuration{ICEServers: s.iceServers})
		if err != nil {
			return "", fmt.Errorf("new peer connection: %w", err)
		}
		a.pc = pc
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() != "console" {
				return
			}
			a.dc = dc
		})
		pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
			log.Printf("[consoleapi] webrtc session %q: %s", label, st)
			if st == webrtc.PeerConnectionStateFailed || st == webrtc.PeerConnectionStateClosed {
				_ = pc.Close()
			}
		})
	}

	if err := a.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(a.pc)

	if newConnection {
		if err := s.addAudioTrackIfActive(a); err != nil {
			log.Printf("[consoleapi] audio track: %v", err)
		}
	}

	answer, err := a.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := a.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	ld := a.pc.LocalDescription()
	if ld == nil {
		return "", errors.New("no local description after gathering")
	}

	if newConnection {
		go s.pumpConsoleChannel(a)
	}
	return ld.SDP, nil
}

// addAudioTrackIfActive installs an Opus sample track and starts
// forwarding the session's Broadcaster Opus frames onto it, if the
// object graph already has an Opus audio stream (spec §3's AudioStream
// entity, codec field).
func (s *Server) addAudioTrackIfActive(a *attachment) error {
	var streamID uint32
	var found bool
	for _, as := range a.sess.Graph.AudioStreams.List() {
		if as.Codec == objgraph.AudioCodecOpus {
			streamID, found = as.StreamID, true
			break
		}
	}
	if !found {
		return nil
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", fmt.Sprintf("0x%08X", streamID),
	)
	if err != nil {
		return err
	}
	if _, err := a.pc.AddTrack(track); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		if st == webrtc.PeerConnectionStateFailed || st == webrtc.PeerConnectionStateClosed {
			cancel()
		}
	})
	go publishOpusTrack(ctx, a.bc, track)
	return nil
}

// publishOpusTrack subscribes to bc and writes every Opus audio frame
// to track as a WebRTC media sample, generalizing the teacher's
// NoteStreamCreated (which only ever drove one hard-wired track off
// raw UDP bytes) to run off typed streamplane.AudioFrame values.
func publishOpusTrack(ctx context.Context, bc *Broadcaster, track *webrtc.TrackLocalStaticSample) {
	ch := bc.Subscribe()
	defer bc.Unsubscribe(ch)
	for {
		select {
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var env sampleEvent
			if err := json.Unmarshal(raw, &env); err != nil || env.Type != "audio" {
				continue
			}
			frameJSON, err := json.Marshal(env.Data)
			if err != nil {
				continue
			}
			var frame streamplane.AudioFrame
			if err := json.Unmarshal(frameJSON, &frame); err != nil || frame.Codec != objgraph.AudioCodecOpus {
				continue
			}
			samples := opusFrameSamples(frame.Opus)
			dur := time.Duration(samples) * time.Second / 48000
			_ = track.WriteSample(media.Sample{Data: frame.Opus, Duration: dur})
		case <-ctx.Done():
			return
		}
	}
}

// pumpConsoleChannel forwards object-graph change events over the
// "console" DataChannel once the browser client opens it, in the same
// envelope NewWSHandler uses for them, so a single client-side parser
// handles both transports. Unlike NewWSHandler, it forwards no
// stream-plane samples and no session lifecycle events.
func (s *Server) pumpConsoleChannel(a *attachment) {
	out := make(chan []byte, 256)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		if st == webrtc.PeerConnectionStateFailed || st == webrtc.PeerConnectionStateClosed {
			cancel()
		}
	})
	go pumpGraph(ctx, a.sess.Graph, out)
	for {
		select {
		case b, ok := <-out:
			if !ok {
				return
			}
			if a.dc != nil && a.dc.ReadyState() == webrtc.DataChannelStateOpen {
				_ = a.dc.Send(b)
			}
		case <-ctx.Done():
			return
		}
	}
}
