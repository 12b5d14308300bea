// Package transport implements the command/reply TCP or TLS channel
// described in spec §4.2: framed line writes serialized on a single
// writer, an atomic per-connection sequence counter, and an inbound
// line event stream.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/flexradio/flex-sdr/internal/wire"
)

// Options configures how Connect dials the radio's command port.
type Options struct {
	UseTLS     bool
	TrustRoots []byte // PEM-encoded roots; nil means use the system pool
	DialTimeout time.Duration
}

// ErrClosed is returned by Send/SendWithReply once the transport has
// been closed or has observed a disconnect.
var ErrClosed = errors.New("transport: closed")

// Transport owns one TCP or TLS connection to a radio's command port.
// Writes are serialized so a send never interleaves bytes with another
// (spec §4.2); sequence numbers are assigned atomically so send order
// on the wire matches sequence order.
type Transport struct {
	conn net.Conn

	writeMu sync.Mutex
	seq     atomic.Uint32

	closed  atomic.Bool
	closeMu sync.Mutex

	Lines chan wire.Line // inbound parsed lines; closed when the reader stops

	onDisconnect func(error)

	// OnRawLine, when set, is called with every line written or read on
	// the wire before it is framed/parsed, in IN/OUT order. Used by the
	// session package to drive an optional raw protocol log (spec §6
	// api_log_path) without coupling this package to a logger type.
	OnRawLine func(direction string, line string)
}

// Connect dials host:port, either plain TCP or TLS depending on opt.
func Connect(ctx context.Context, host string, port int, opt Options, onDisconnect func(error)) (*Transport, error) {
	dialTimeout := opt.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 9 * time.Second
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	dialer := &net.Dialer{Timeout: dialTimeout}
	var conn net.Conn
	var err error
	if opt.UseTLS {
		tlsConf := &tls.Config{ServerName: host}
		if len(opt.TrustRoots) > 0 {
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(opt.TrustRoots) {
				return nil, errors.New("transport: no valid certificates in trust_roots")
			}
			tlsConf.RootCAs = pool
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConf)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	t := &Transport{
		conn:         conn,
		Lines:        make(chan wire.Line, 256),
		onDisconnect: onDisconnect,
	}
	go t.readLoop()
	return t, nil
}

// LocalAddr returns the local address of the underlying connection, used
// by the session to learn the bind address it should advertise for the
// VITA stream plane.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// NextSeq allocates the next sequence number without sending anything,
// for callers that need to reserve a seq ahead of building a command.
func (t *Transport) NextSeq() uint32 {
	return t.seq.Add(1) - 1
}

// Send writes a fire-and-forget command and returns the sequence number
// it was assigned. No reply is awaited; pair with a reply registry via
// SendWithReply when the caller needs to know the outcome.
func (t *Transport) Send(text string) (uint32, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	seq := t.NextSeq()
	cmd := wire.Command{Seq: seq, Text: text}
	line, err := cmd.Encode()
	if err != nil {
		return 0, err
	}
	if err := t.writeLine(line); err != nil {
		return 0, err
	}
	return seq, nil
}

// ReplyRegistrar is the subset of *replyreg.Registry that SendWithReply
// needs, kept as an interface so transport does not import replyreg and
// create a dependency cycle with the session package that wires them
// together.
type ReplyRegistrar interface {
	Register(seq uint32, sink interface {
		Complete(wire.Reply)
		Fail(error)
	}) uuid.UUID
	Cancel(seq uint32)
}

// SendWithReply registers sink under the next sequence number *before*
// writing the command, so an immediate reply can never race ahead of
// the registration (spec §4.3). If the write fails, the registration is
// canceled so the sink is never orphaned.
func (t *Transport) SendWithReply(registrar ReplyRegistrar, text string, sink interface {
	Complete(wire.Reply)
	Fail(error)
}) (uint32, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	seq := t.NextSeq()
	registrar.Register(seq, sink)

	cmd := wire.Command{Seq: seq, Text: text}
	line, err := cmd.Encode()
	if err != nil {
		registrar.Cancel(seq)
		return 0, err
	}
	if err := t.writeLine(line); err != nil {
		registrar.Cancel(seq)
		return 0, err
	}
	return seq, nil
}

func (t *Transport) writeLine(line string) error {
	if t.OnRawLine != nil {
		t.OnRawLine("OUT", line)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := t.conn.Write([]byte(line + "\n"))
	return err
}

// Close tears down the connection and stops the reader. Safe to call
// more than once.
func (t *Transport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	if t.closed.Swap(true) {
		return nil
	}
	return t.conn.Close()
}

func (t *Transport) readLoop() {
	defer close(t.Lines)
	scan := bufio.NewScanner(t.conn)
	scan.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scan.Scan() {
		raw := scan.Text()
		if t.OnRawLine != nil {
			t.OnRawLine("IN", raw)
		}
		line, err := wire.ParseLine(raw)
		if err != nil {
			// Malformed line: drop it, never tear down the session (§7).
			continue
		}
		t.Lines <- line
	}
	err := scan.Err()
	if err == nil {
		err = errors.New("transport: connection closed by peer")
	}
	t.closed.Store(true)
	if t.onDisconnect != nil {
		t.onDisconnect(err)
	}
}
