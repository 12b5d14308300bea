package session

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flexradio/flex-sdr/internal/flexerr"
	"github.com/flexradio/flex-sdr/internal/replyreg"
	"github.com/flexradio/flex-sdr/internal/wire"
	"github.com/stretchr/testify/require"
)

// fakeRadio accepts exactly one connection, immediately sends the H1
// handle banner (mirroring a real radio's connect sequence), and
// forwards every inbound line to a channel for assertions.
type fakeRadio struct {
	ln    net.Listener
	lines chan string

	mu   sync.Mutex
	conn net.Conn
	got  chan struct{}
}

func newFakeRadio(t *testing.T) *fakeRadio {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fr := &fakeRadio{ln: ln, lines: make(chan string, 64), got: make(chan struct{})}
	go fr.serve()
	return fr
}

func (fr *fakeRadio) serve() {
	conn, err := fr.ln.Accept()
	if err != nil {
		return
	}
	fr.mu.Lock()
	fr.conn = conn
	fr.mu.Unlock()
	close(fr.got)

	fmt.Fprintf(conn, "H1\n")

	scan := bufio.NewScanner(conn)
	for scan.Scan() {
		fr.lines <- scan.Text()
	}
	close(fr.lines)
}

func (fr *fakeRadio) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(fr.ln.Addr().String())
	require.NoError(t, err)
	var port int
	_, err = fmt.Sscanf(portStr, "%d", &port)
	require.NoError(t, err)
	return host, port
}

func (fr *fakeRadio) waitConnected(t *testing.T) net.Conn {
	t.Helper()
	select {
	case <-fr.got:
	case <-time.After(2 * time.Second):
		t.Fatal("fake radio: client never connected")
	}
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return fr.conn
}

func (fr *fakeRadio) send(t *testing.T, line string) {
	t.Helper()
	fr.mu.Lock()
	conn := fr.conn
	fr.mu.Unlock()
	require.NotNil(t, conn)
	_, err := fmt.Fprintf(conn, "%s\n", line)
	require.NoError(t, err)
}

// nextLine drains fr.lines until it finds one matching prefix, skipping
// any subscribe-all housekeeping commands sent ahead of it in Connect.
func (fr *fakeRadio) nextLineWithPrefix(t *testing.T, prefix string) string {
	t.Helper()
	for {
		select {
		case line := <-fr.lines:
			if strings.Contains(line, prefix) {
				return line
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for a line containing %q", prefix)
		}
	}
}

func closeSessionQuiet(s *Session) {
	_ = s.Close()
}

func TestConnectReachesConnectedStateAndSubscribesAll(t *testing.T) {
	fr := newFakeRadio(t)
	host, port := fr.hostPort(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := Connect(ctx, Config{Host: host, Port: port}, nil)
	require.NoError(t, err)
	defer closeSessionQuiet(s)

	require.Equal(t, Connected, s.State())
	require.Equal(t, uint32(1), s.Handle)

	for _, want := range subscribeAllCommands {
		line := <-fr.lines
		require.Contains(t, line, want)
	}

	registerLine := fr.nextLineWithPrefix(t, "client udp_register port=")
	require.Contains(t, registerLine, "client udp_register port=")
}

func TestConnectTimesOutIfHandleNeverArrives(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Never sends the H banner; just hold the connection open.
		<-time.After(3 * time.Second)
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	var port int
	_, err = fmt.Sscanf(portStr, "%d", &port)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = Connect(ctx, Config{Host: host, Port: port}, nil)
	require.Error(t, err)
}

func TestSendWithReplySuccessAndError(t *testing.T) {
	fr := newFakeRadio(t)
	host, port := fr.hostPort(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Connect(ctx, Config{Host: host, Port: port}, nil)
	require.NoError(t, err)
	defer closeSessionQuiet(s)

	for range subscribeAllCommands {
		<-fr.lines
	}
	fr.nextLineWithPrefix(t, "client udp_register port=")

	okCh := make(chan wire.Reply, 1)
	seq, err := s.SendWithReply("slice create", replyreg.FuncSink{
		OnComplete: func(r wire.Reply) { okCh <- r },
	})
	require.NoError(t, err)

	cmdLine := <-fr.lines
	require.Contains(t, cmdLine, "slice create")
	fr.send(t, fmt.Sprintf("R%d|0|0x00000001", seq))

	select {
	case r := <-okCh:
		require.True(t, r.Success())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for success reply")
	}

	failCh := make(chan wire.Reply, 1)
	seq2, err := s.SendWithReply("slice set 99 foo=bar", replyreg.FuncSink{
		OnComplete: func(r wire.Reply) { failCh <- r },
	})
	require.NoError(t, err)
	<-fr.lines
	fr.send(t, fmt.Sprintf("R%d|1|unknown slice", seq2))

	select {
	case r := <-failCh:
		require.False(t, r.Success())
		require.Equal(t, uint32(1), r.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error reply")
	}
}

// Scenario 6 (spec §8): two pending replies and open stream sockets at
// close time. Both futures must resolve with a disconnected error, the
// stream socket pool must release, and exactly one terminal event fires.
func TestCloseWithPendingRepliesResolvesDisconnected(t *testing.T) {
	fr := newFakeRadio(t)
	host, port := fr.hostPort(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Connect(ctx, Config{Host: host, Port: port}, nil)
	require.NoError(t, err)

	for range subscribeAllCommands {
		<-fr.lines
	}
	fr.nextLineWithPrefix(t, "client udp_register port=")

	require.NotEmpty(t, s.pool.Ports())

	var mu sync.Mutex
	var failures []error
	onFail := func(err error) {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	}

	_, err = s.SendWithReply("slice create", replyreg.FuncSink{OnFail: onFail})
	require.NoError(t, err)
	<-fr.lines
	_, err = s.SendWithReply("slice create", replyreg.FuncSink{OnFail: onFail})
	require.NoError(t, err)
	<-fr.lines

	var terminalCount int
	var lastErr error
	done := make(chan struct{})
	go func() {
		for ev := range s.Events {
			if ev.Kind == Terminal {
				terminalCount++
				lastErr = ev.Err
			}
		}
		close(done)
	}()

	conn := fr.waitConnected(t)
	require.NoError(t, conn.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Events to close")
	}

	require.Equal(t, Disconnected, s.State())
	require.Equal(t, 1, terminalCount)
	require.Error(t, lastErr)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failures, 2)
	for _, err := range failures {
		var disconnected *flexerr.Disconnected
		require.ErrorAs(t, err, &disconnected)
	}
	require.Empty(t, s.pool.Ports())
}

func TestCloseIsIdempotentAndEmitsSingleTerminalEvent(t *testing.T) {
	fr := newFakeRadio(t)
	host, port := fr.hostPort(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Connect(ctx, Config{Host: host, Port: port}, nil)
	require.NoError(t, err)

	for range subscribeAllCommands {
		<-fr.lines
	}
	fr.nextLineWithPrefix(t, "client udp_register port=")

	var terminalCount int
	done := make(chan struct{})
	go func() {
		for ev := range s.Events {
			if ev.Kind == Terminal {
				terminalCount++
			}
		}
		close(done)
	}()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Events to close")
	}
	require.Equal(t, 1, terminalCount)
}
