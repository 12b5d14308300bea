package streamplane

import (
	"io"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ReplayPCAP reads UDP datagrams out of a pcap capture and hands each
// payload to handler, in capture order. It is a drop-in alternate
// packet source to a live Pool socket: the VITA parsing and decoder
// stages downstream don't know or care whether bytes came off a live
// UDP socket or a recorded capture, which makes this the basis for
// deterministic tests and field-capture replay against stream plane
// decoders.
func ReplayPCAP(r io.Reader, handler func(payload []byte, from net.Addr)) error {
	src, err := pcapgo.NewReader(r)
	if err != nil {
		return err
	}
	packets := gopacket.NewPacketSource(src, src.LinkType())
	for packet := range packets.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}

		var from net.Addr
		if ipLayer := packet.Layer(layers.LayerTypeIPv4); ipLayer != nil {
			if ip, ok := ipLayer.(*layers.IPv4); ok {
				from = &net.UDPAddr{IP: ip.SrcIP, Port: int(udp.SrcPort)}
			}
		}

		payload := make([]byte, len(udp.Payload))
		copy(payload, udp.Payload)
		handler(payload, from)
	}
	return nil
}
