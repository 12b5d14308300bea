// Package streamplane implements the VITA-49 stream plane (spec §4.6):
// per-stream-family UDP sockets, the FFT/waterfall/meter/audio decoders,
// multi-packet frame reassembly, and packet-count gap detection.
package streamplane

import (
	"log"
	"net"
	"sync"

	"github.com/flexradio/flex-sdr/internal/wire"
)

// recvBufferBytes is the socket receive buffer size recommendation from
// spec §4.1 ("receive buffers SHOULD be at least 750 KiB per socket"),
// applied via SetReadBuffer rather than the per-packet read buffer (a
// single VITA packet is capped at wire.MaxPacketBytes).
const recvBufferBytes = 750 * 1024

// PacketHandler is invoked once per successfully parsed inbound VITA
// packet; the Packet's Payload slice aliases an internal read buffer
// and must be copied by the handler if it needs to outlive the call.
type PacketHandler func(pkt wire.Packet, from net.Addr)

// socket owns one UDP receive socket bound to an ephemeral local port.
type socket struct {
	name string
	conn *net.UDPConn
	done chan struct{}
}

func (s *socket) recvLoop(handler PacketHandler) {
	buf := make([]byte, wire.MaxPacketBytes)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
			default:
				log.Printf("[streamplane] socket %q read error: %v", s.name, err)
			}
			return
		}
		pkt, perr := wire.ParsePacket(buf[:n])
		if perr != nil {
			// Malformed packet: drop it, never halt the stream (spec §7).
			continue
		}
		handler(pkt, from)
	}
}

// Pool manages the set of per-stream-family receive sockets for one
// session. Each call to Open binds a fresh ephemeral UDP port, sets the
// recommended receive buffer size, and starts its own receive loop.
type Pool struct {
	mu      sync.Mutex
	sockets map[string]*socket
}

// NewPool constructs an empty socket pool.
func NewPool() *Pool {
	return &Pool{sockets: make(map[string]*socket)}
}

// Open binds a UDP socket named name (e.g. "pan", "waterfall", "meter",
// "audio", or "data" for a single multiplexed socket carrying every
// family) optionally pinned to localIP (spec §6 local_bind_ip, for WAN
// cross-subnet deployments), and starts dispatching decoded packets to
// handler. It returns the bound local port so the caller can advertise
// it to the radio via "client udp_register port=<n>".
func (p *Pool) Open(name string, localIP net.IP, handler PacketHandler) (port int, err error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: localIP, Port: 0})
	if err != nil {
		return 0, err
	}
	if err := conn.SetReadBuffer(recvBufferBytes); err != nil {
		log.Printf("[streamplane] socket %q: SetReadBuffer: %v", name, err)
	}

	sock := &socket{name: name, conn: conn, done: make(chan struct{})}
	p.mu.Lock()
	p.sockets[name] = sock
	p.mu.Unlock()

	go sock.recvLoop(handler)

	return conn.LocalAddr().(*net.UDPAddr).Port, nil
}

// Ports returns the bound local port for every open socket, by name.
func (p *Pool) Ports() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.sockets))
	for name, s := range p.sockets {
		out[name] = s.conn.LocalAddr().(*net.UDPAddr).Port
	}
	return out
}

// Close closes every socket in the pool, releasing all sockets within
// one synchronous pass (spec §5 cancellation contract).
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sockets {
		close(s.done)
		_ = s.conn.Close()
	}
	p.sockets = make(map[string]*socket)
}
