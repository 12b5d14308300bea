// Package nat maps the client's ephemeral VITA-49 stream socket through
// a home-gateway NAT for WAN-connected radios (spec §6: "for WAN, a NAT
// keep-alive packet is sent every few seconds" — this package is the
// complementary router-side half, a best-effort UPnP/NAT-PMP port
// mapping, so inbound stream packets reach the client even when the
// session's own keep-alive pings alone wouldn't punch a hole through a
// symmetric NAT).
package nat

import (
	"fmt"
	"log"
	"time"

	gonat "github.com/fd/go-nat"
)

// defaultMappingTTL is how long a gateway holds a port mapping before it
// expires without a refresh.
const defaultMappingTTL = 30 * time.Minute

// defaultRefreshInterval renews mappings comfortably inside
// defaultMappingTTL.
const defaultRefreshInterval = 10 * time.Minute

// streamMapping is one UDP port this client has asked the gateway to
// forward through to its VITA stream socket.
type streamMapping struct {
	streamName   string
	internalPort int
	externalPort int
	ttl          time.Duration
}

// PortMapper holds the gateway NAT client plus every VITA stream port
// mapping it has requested, so a session's WAN path can punch through a
// home router for inbound spectrum/waterfall/meter/audio packets. Every
// mapping it tracks is UDP — the stream plane never speaks TCP — so
// unlike a general-purpose port-forwarding helper this has no protocol
// parameter to thread through its API.
type PortMapper struct {
	gateway gonat.NAT
	streams []streamMapping
	stop    chan struct{}
}

// DiscoverGateway finds the LAN's NAT gateway (UPnP IGD or NAT-PMP) and
// reports its external IP, which a WAN session needs before it can tell
// the radio where to send stream traffic.
func DiscoverGateway() (*PortMapper, string, error) {
	gw, err := gonat.DiscoverGateway()
	if err != nil {
		return nil, "", fmt.Errorf("nat: discover gateway: %w", err)
	}
	if gw == nil {
		return nil, "", fmt.Errorf("nat: no gateway found")
	}

	externalIP, err := gw.GetExternalAddress()
	if err != nil {
		return nil, "", fmt.Errorf("nat: external address: %w", err)
	}
	return &PortMapper{gateway: gw, stop: make(chan struct{})}, externalIP.String(), nil
}

// MapStreamPort asks the gateway to forward UDP traffic for one of the
// session's stream-plane ports (streamName is the streamplane.Pool
// socket name, e.g. "data", used only for logging). A zero ttl falls
// back to defaultMappingTTL.
func (m *PortMapper) MapStreamPort(internalPort int, streamName string, ttl time.Duration) error {
	if m == nil || m.gateway == nil {
		return fmt.Errorf("nat: port mapper not ready")
	}
	if ttl <= 0 {
		ttl = defaultMappingTTL
	}
	externalPort, err := m.gateway.AddPortMapping("udp", internalPort, streamName, ttl)
	if err != nil {
		return fmt.Errorf("nat: map stream %q port %d: %w", streamName, internalPort, err)
	}
	log.Printf("[nat] mapped stream %q udp %d->%d, ttl %s", streamName, internalPort, externalPort, ttl)
	m.streams = append(m.streams, streamMapping{
		streamName: streamName, internalPort: internalPort, externalPort: externalPort, ttl: ttl,
	})
	return nil
}

// Refresh starts a background ticker that renews every tracked stream
// mapping before its TTL expires, so a long-lived WAN session keeps its
// gateway hole punched open. A zero interval falls back to
// defaultRefreshInterval.
func (m *PortMapper) Refresh(interval time.Duration) {
	if m == nil || m.gateway == nil {
		return
	}
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-t.C:
				m.refreshAll()
			}
		}
	}()
}

func (m *PortMapper) refreshAll() {
	for i, sm := range m.streams {
		externalPort, err := m.gateway.AddPortMapping("udp", sm.internalPort, sm.streamName, sm.ttl)
		if err != nil {
			log.Printf("[nat] refresh stream %q udp %d->%d failed: %v", sm.streamName, sm.internalPort, sm.externalPort, err)
			continue
		}
		m.streams[i].externalPort = externalPort
	}
}

// Mappings reports every stream port currently mapped through the
// gateway, for session diagnostics.
func (m *PortMapper) Mappings() map[string]int {
	out := make(map[string]int, len(m.streams))
	for _, sm := range m.streams {
		out[sm.streamName] = sm.externalPort
	}
	return out
}

// Close stops the refresher and tears down every mapping this client
// requested, so a departing WAN session doesn't leave stale forwards on
// the gateway.
func (m *PortMapper) Close() {
	if m == nil || m.gateway == nil {
		return
	}
	close(m.stop)
	for _, sm := range m.streams {
		log.Printf("[nat] removing stream %q udp %d->%d", sm.streamName, sm.internalPort, sm.externalPort)
		if err := m.gateway.DeletePortMapping("udp", sm.internalPort); err != nil {
			log.Printf("[nat] delete stream %q udp %d->%d failed: %v", sm.streamName, sm.internalPort, sm.externalPort, err)
		}
	}
}
