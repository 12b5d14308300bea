// Package flexsdr is the API facade from spec §2/§9: the lifecycle
// entry point that starts discovery, enumerates visible radios, and
// opens/closes per-radio sessions. It is the composition root the
// teacher's cmd/bridge/main.go played for a single WebSocket-bridged
// radio, generalized into a library facade with no HTTP server opinion
// of its own beyond the optional /metrics and consoleapi mux it can
// hand to a caller.
package flexsdr

import (
	"context"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/flexradio/flex-sdr/internal/config"
	"github.com/flexradio/flex-sdr/internal/discovery"
	"github.com/flexradio/flex-sdr/internal/metrics"
	"github.com/flexradio/flex-sdr/internal/objgraph"
	"github.com/flexradio/flex-sdr/internal/session"
	"github.com/flexradio/flex-sdr/internal/wirelog"
)

// RadioEvent is one discovery lifecycle notification (spec §4.7
// Discovered/Updated/Lost), carrying the current snapshot of the radio
// the event concerns.
type RadioEvent struct {
	Kind  objgraph.ChangeKind
	Radio discovery.Radio
}

// Facade owns the discovery service and the set of sessions opened
// against it. Callers construct exactly one Facade per process.
type Facade struct {
	cfg     config.Config
	disco   *discovery.Service
	metrics *metrics.Metrics
	wirelog *wirelog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session.Session // keyed by radio serial
}

// New constructs a Facade from cfg without starting anything; call
// Start to begin discovery.
func New(cfg config.Config) (*Facade, error) {
	var wl *wirelog.Logger
	if cfg.APILogFile != "" {
		var err error
		wl, err = wirelog.Open(cfg.APILogFile)
		if err != nil {
			return nil, fmt.Errorf("flexsdr: open api log: %w", err)
		}
	}

	var m *metrics.Metrics
	if cfg.EnableMetrics {
		m = metrics.New()
	}

	return &Facade{
		cfg:      cfg,
		disco:    discovery.New(discovery.Options{Port: cfg.DiscoveryPort, StaleTimeout: time.Duration(cfg.DiscoveryTimeoutMS) * time.Millisecond}),
		metrics:  m,
		wirelog:  wl,
		sessions: make(map[string]*session.Session),
	}, nil
}

// Start launches the discovery listener and its housekeeping loop in
// background goroutines and returns immediately, without waiting for the
// discovery socket to bind; discovery keeps running, with
// exponential-backoff reconnect, until Close is called.
func (f *Facade) Start(ctx context.Context) {
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		_ = f.disco.Run(f.ctx)
	}()
	if f.metrics != nil {
		f.wg.Add(1)
		go f.reportDiscoverySize()
	}
}

func (f *Facade) reportDiscoverySize() {
	defer f.wg.Done()
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			f.metrics.SetRadiosDiscovered(f.disco.Radios.Len())
		case <-f.ctx.Done():
			return
		}
	}
}

// Radios returns a channel of lifecycle events for the live discovered
// radio set (spec §4.7). When ctx is done or Close is called, the
// underlying discovery subscription is released and the channel is
// closed; no separate unsubscribe call exists or is needed.
func (f *Facade) Radios(ctx context.Context) <-chan RadioEvent {
	sub := f.disco.Radios.Subscribe()
	out := make(chan RadioEvent, 16)
	go func() {
		defer close(out)
		defer f.disco.Radios.Unsubscribe(sub)
		for {
			select {
			case ch, ok := <-sub:
				if !ok {
					return
				}
				radio, _ := f.disco.Radios.Find(ch.Key)
				select {
				case out <- RadioEvent{Kind: ch.Kind, Radio: radio}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			case <-f.ctx.Done():
				return
			}
		}
	}()
	return out
}

// ListRadios returns a point-in-time snapshot of every currently
// visible radio.
func (f *Facade) ListRadios() []discovery.Radio {
	return f.disco.Radios.List()
}

// Open dials the radio with the given serial (looked up in the live
// discovery set) and opens a session against it, applying cfg's
// recognized options (spec §6) and the facade's shared metrics/wirelog
// instances. The caller owns the returned Session and must Close it.
func (f *Facade) Open(ctx context.Context, serial string, sink session.StreamSink) (*session.Session, error) {
	radio, ok := f.disco.Radios.Find(serial)
	if !ok {
		return nil, fmt.Errorf("flexsdr: radio %q not in discovery set", serial)
	}
	return f.OpenAddr(ctx, radio.IP.String(), radio.Port, serial, sink)
}

// OpenAddr opens a session against an explicit host:port, bypassing
// discovery — useful for radios reachable only by a pre-known address
// (WAN deployments, static configuration).
func (f *Facade) OpenAddr(ctx context.Context, host string, port int, label string, sink session.StreamSink) (*session.Session, error) {
	scfg := session.Config{
		Host:                 host,
		Port:                 port,
		UseTLS:               f.cfg.UseTLS,
		ReplyTimeout:         time.Duration(f.cfg.ReplyTimeoutMS) * time.Millisecond,
		LocalBindIP:          net.ParseIP(f.cfg.LocalBindIP),
		StreamOverflowPolicy: session.ParseOverflowPolicy(f.cfg.StreamOverflowPolicy),
		APILogPath:           f.cfg.APILogFile,
		Metrics:              f.metrics,
	}
	if f.cfg.UseTLS && f.cfg.TrustRootsFile != "" {
		pem, err := os.ReadFile(f.cfg.TrustRootsFile)
		if err != nil {
			return nil, fmt.Errorf("flexsdr: read trust roots: %w", err)
		}
		if !x509.NewCertPool().AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("flexsdr: trust roots file %q had no usable certificates", f.cfg.TrustRootsFile)
		}
		scfg.TrustRoots = pem
	}

	sess, err := session.Connect(ctx, scfg, sink)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.sessions[label] = sess
	if f.metrics != nil {
		f.metrics.SetSessionsConnected(len(f.sessions))
	}
	f.mu.Unlock()

	go func() {
		for range sess.Events {
		}
		f.mu.Lock()
		delete(f.sessions, label)
		if f.metrics != nil {
			f.metrics.SetSessionsConnected(len(f.sessions))
		}
		f.mu.Unlock()
	}()

	return sess, nil
}

// Sessions returns the radios (by label passed to Open/OpenAddr)
// currently connected.
func (f *Facade) Sessions() map[string]*session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*session.Session, len(f.sessions))
	for k, v := range f.sessions {
		out[k] = v
	}
	return out
}

// Mux returns an http.ServeMux exposing /metrics (when enabled). It
// applies no middleware itself; the COOP/COEP and permissive-CORS
// headers per cfg.EnableCOI/EnableCORS come from Middleware, which wraps
// a handler separately. internal/consoleapi handlers can be mounted
// onto the returned mux by the caller, which owns the consoleapi
// construction (it needs a *session.Session to attach to).
func (f *Facade) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	if f.metrics != nil {
		mux.Handle("/metrics", f.metrics.Handler())
	}
	return mux
}

// Metrics returns the facade's metrics instance, or nil if metrics are
// disabled, for embedding in a caller-owned HTTP mux alongside
// consoleapi routes.
func (f *Facade) Metrics() *metrics.Metrics { return f.metrics }

// Close stops discovery, closes every open session, and releases the
// wirelog file.
func (f *Facade) Close() error {
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Lock()
	sessions := f.sessions
	f.sessions = make(map[string]*session.Session)
	f.mu.Unlock()
	for _, s := range sessions {
		_ = s.Close()
	}
	f.wg.Wait()
	return f.wirelog.Close()
}

// withCOI adds COOP/COEP/CORP so SharedArrayBuffer-backed consumers
// (e.g. a browser console attached via consoleapi) work cross-origin,
// carried over from the teacher's bridge HTTP middleware.
func withCOI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

// withCORS mirrors the teacher's permissive development CORS policy.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Middleware wraps next with the facade's configured COI/CORS policy,
// for a caller building its own mux around Mux()'s routes.
func (f *Facade) Middleware(next http.Handler) http.Handler {
	if f.cfg.EnableCORS {
		next = withCORS(next)
	}
	if f.cfg.EnableCOI {
		next = withCOI(next)
	}
	return next
}
