package streamplane

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/flexradio/flex-sdr/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestPoolOpenDispatchesParsedPackets(t *testing.T) {
	pool := NewPool()
	defer pool.Close()

	received := make(chan wire.Packet, 1)
	port, err := pool.Open("pan", net.ParseIP("127.0.0.1"), func(pkt wire.Packet, from net.Addr) {
		received <- pkt
	})
	require.NoError(t, err)
	require.NotZero(t, port)

	sender, err := net.Dial("udp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer sender.Close()

	payload := buildIFDataPacket(t, 0xAABBCCDD, []byte{1, 2, 3, 4})
	_, err = sender.Write(payload)
	require.NoError(t, err)

	select {
	case pkt := <-received:
		require.Equal(t, uint32(0xAABBCCDD), pkt.StreamID)
		require.Equal(t, []byte{1, 2, 3, 4}, pkt.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dispatched packet")
	}
}

func TestPoolPortsReportsEveryOpenSocket(t *testing.T) {
	pool := NewPool()
	defer pool.Close()

	_, err := pool.Open("pan", net.ParseIP("127.0.0.1"), func(wire.Packet, net.Addr) {})
	require.NoError(t, err)
	_, err = pool.Open("meter", net.ParseIP("127.0.0.1"), func(wire.Packet, net.Addr) {})
	require.NoError(t, err)

	ports := pool.Ports()
	require.Len(t, ports, 2)
	require.Contains(t, ports, "pan")
	require.Contains(t, ports, "meter")
}

func TestPoolCloseStopsDispatch(t *testing.T) {
	pool := NewPool()
	port, err := pool.Open("pan", net.ParseIP("127.0.0.1"), func(wire.Packet, net.Addr) {})
	require.NoError(t, err)
	require.NotZero(t, port)
	pool.Close()
	require.Empty(t, pool.Ports())
}
