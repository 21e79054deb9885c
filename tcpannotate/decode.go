package tcpannotate

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/openhsflow/hsflowd/sflowio"
)

// decodeHeader extracts the IP version, transport protocol, addresses
// and ports from a sampled packet's captured header bytes, assumed to
// start at the link layer (spec §4.4). Both TCP and UDP L4 layers are
// recognized; anything else reports false. It fills the relevant fields
// on ps directly rather than returning a separate struct, mirroring the
// teacher's in-place accessor style over its own Session state.
//
// Grounded on the teacher's gopacket/layers import (superfly/dropspy's
// cmd/dropspy/main.go builds a capture pipeline around the same
// package); this module only needs the decode half, not dropspy's pcap
// capture/BPF-filter half, since samples arrive already captured.
func decodeHeader(ps *sflowio.PendingSample) bool {
	packet := gopacket.NewPacket(ps.Header, layers.LayerTypeEthernet, gopacket.NoCopy)

	if ip4, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		ps.IPVersion = 4
		ps.Proto = uint8(ip4.Protocol)
		ps.Src = ip4.SrcIP
		ps.Dst = ip4.DstIP
	} else if ip6, ok := packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6); ok {
		ps.IPVersion = 6
		ps.Proto = uint8(ip6.NextHeader)
		ps.Src = ip6.SrcIP
		ps.Dst = ip6.DstIP
	} else {
		return false
	}

	if tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		ps.SrcPort = uint16(tcp.SrcPort)
		ps.DstPort = uint16(tcp.DstPort)
		return true
	}
	if udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		ps.SrcPort = uint16(udp.SrcPort)
		ps.DstPort = uint16(udp.DstPort)
		return true
	}
	return false
}
