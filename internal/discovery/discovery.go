// Package discovery implements the LAN broadcast listener from spec
// §4.7: a single UDP socket accepting VITA discovery beacons, which
// materializes a live set of Radio records with create/refresh/evict
// lifecycle and Discovered/Updated/Lost notifications.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flexradio/flex-sdr/internal/objgraph"
	"github.com/flexradio/flex-sdr/internal/wire"
)

// Options configures a Service.
type Options struct {
	Port           int
	StaleTimeout   time.Duration // default 10s, spec §6 discovery_timeout_ms
	SweepInterval  time.Duration // default 1s
	IdleRestart    time.Duration // default 30s
	HealthInterval time.Duration // default 5s
	MaxBackoff     time.Duration // default 5s
}

// Service is a running discovery listener. Socket handling (dual-stack
// bind-with-fallback, exponential-backoff reconnect, idle-restart health
// ticker) is carried over from the original bridge's broadcast relay;
// only the payload interpretation changed, from raw byte fan-out to
// parsed Radio records.
type Service struct {
	opt Options

	mu sync.Mutex
	c4 net.PacketConn
	c6 net.PacketConn

	lastPktUnix atomic.Int64

	Radios *objgraph.Collection[string, Radio]
}

// New constructs a Service with defaults applied for any zero-valued
// Options field.
func New(opt Options) *Service {
	if opt.StaleTimeout == 0 {
		opt.StaleTimeout = 10 * time.Second
	}
	if opt.SweepInterval == 0 {
		opt.SweepInterval = time.Second
	}
	if opt.IdleRestart == 0 {
		opt.IdleRestart = 30 * time.Second
	}
	if opt.HealthInterval == 0 {
		opt.HealthInterval = 5 * time.Second
	}
	if opt.MaxBackoff == 0 {
		opt.MaxBackoff = 5 * time.Second
	}
	s := &Service{opt: opt, Radios: objgraph.NewCollection[string, Radio]()}
	s.lastPktUnix.Store(time.Now().UnixNano())
	return s
}

// Run binds the discovery socket(s) and serves until ctx is cancelled,
// reconnecting with exponential backoff on bind or read failure.
func (s *Service) Run(ctx context.Context) error {
	backoff := time.Duration(0)
	for {
		if err := s.bindAll(ctx); err != nil {
			backoff = nextBackoff(backoff, s.opt.MaxBackoff)
			log.Printf("[discovery] bind error: %v; retrying in %v", err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		backoff = 0
		if err := s.serve(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Printf("[discovery] serve ended: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (s *Service) bindAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c4 != nil {
		_ = s.c4.Close()
		s.c4 = nil
	}
	if s.c6 != nil {
		_ = s.c6.Close()
		s.c6 = nil
	}

	addr := fmt.Sprintf(":%d", s.opt.Port)
	lc := net.ListenConfig{Control: applyUDPSocketOptions}

	if c6, err := lc.ListenPacket(ctx, "udp6", addr); err == nil {
		s.c6 = c6
		s.lastPktUnix.Store(time.Now().UnixNano())
		return nil
	}

	c4, e4 := lc.ListenPacket(ctx, "udp4", addr)
	c6, e6 := lc.ListenPacket(ctx, "udp6", addr)
	if e4 != nil && e6 != nil {
		return errors.Join(e4, e6)
	}
	s.c4, s.c6 = c4, c6
	s.lastPktUnix.Store(time.Now().UnixNano())
	return nil
}

func (s *Service) serve(ctx context.Context) error {
	s.mu.Lock()
	c4, c6 := s.c4, s.c6
	s.mu.Unlock()

	errCh := make(chan error, 2)
	done := make(chan struct{})
	var wg sync.WaitGroup
	if c4 != nil {
		wg.Add(1)
		go func() { defer wg.Done(); s.readLoop(c4, errCh, done) }()
	}
	if c6 != nil {
		wg.Add(1)
		go func() { defer wg.Done(); s.readLoop(c6, errCh, done) }()
	}

	sweep := time.NewTicker(s.opt.SweepInterval)
	defer sweep.Stop()
	health := time.NewTicker(s.opt.HealthInterval)
	defer health.Stop()

	defer func() {
		close(done)
		s.closeAll()
		wg.Wait()
	}()

	for {
		select {
		case err := <-errCh:
			return err
		case <-sweep.C:
			s.evictStale(time.Now())
		case <-health.C:
			last := time.Unix(0, s.lastPktUnix.Load())
			if time.Since(last) > s.opt.IdleRestart {
				return errors.New("discovery: idle restart")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) readLoop(pc net.PacketConn, errCh chan<- error, done <-chan struct{}) {
	buf := make([]byte, wire.MaxPacketBytes)
	for {
		_ = pc.SetReadDeadline(time.Now().Add(10 * time.Second))
		n, _, err := pc.ReadFrom(buf)
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			select {
			case <-done:
				return
			default:
				continue
			}
		}
		if err != nil {
			select {
			case errCh <- err:
			case <-done:
			}
			return
		}

		s.lastPktUnix.Store(time.Now().UnixNano())
		s.handleBeacon(buf[:n])

		select {
		case <-done:
			return
		default:
		}
	}
}

// handleBeacon parses one inbound datagram as a VITA discovery packet
// and applies it to the Radio set. Both the outer VITA framing and a
// bare key=value payload (no VITA header) are accepted, since field
// captures of real radios show both forms depending on firmware
// version.
func (s *Service) handleBeacon(b []byte) {
	payload := b
	if pkt, err := wire.ParsePacket(b); err == nil {
		payload = pkt.Payload
	}

	radio, ok := parseBeacon(payload)
	if !ok {
		log.Printf("[discovery] dropped malformed beacon (%d bytes)", len(b))
		return
	}
	radio.LastSeen = time.Now()

	s.Radios.Mutate(radio.Serial, func(cur Radio, existed bool) (Radio, []string) {
		return radio, []string{"last_seen"}
	})
}

// evictStale removes every radio not refreshed within StaleTimeout,
// firing a Removed (Lost) notification for each.
func (s *Service) evictStale(now time.Time) {
	for _, r := range s.Radios.List() {
		if now.Sub(r.LastSeen) > s.opt.StaleTimeout {
			s.Radios.Remove(r.Serial)
		}
	}
}

func (s *Service) closeAll() {
	s.mu.Lock()
	if s.c4 != nil {
		_ = s.c4.Close()
		s.c4 = nil
	}
	if s.c6 != nil {
		_ = s.c6.Close()
		s.c6 = nil
	}
	s.mu.Unlock()
}

// nextBackoff grows exponential backoff with bounded jitter.
func nextBackoff(cur, max time.Duration) time.Duration {
	if cur <= 0 {
		cur = 250 * time.Millisecond
	} else {
		cur *= 2
		if cur > max {
			cur = max
		}
	}
	jmax := cur / 4
	if jmax < 50*time.Millisecond {
		jmax = 50 * time.Millisecond
	}
	jitter := time.Duration(rand.Int63n(int64(jmax)))
	return cur + jitter
}
