// Package decoder turns raw IPv4 packet bytes into models.PacketData.
//
// The input is untrusted. Decode never reads past the valid length and never
// panics; a buffer that is not a usable IPv4 header yields ok == false.
package decoder

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"netsniff/internal/models"
)

const minIPv4HeaderLen = 20

// IP protocol numbers with a named label.
const (
	ProtoICMP = 1
	ProtoIGMP = 2
	ProtoTCP  = 6
	ProtoUDP  = 17
	ProtoGRE  = 47
	ProtoESP  = 50
	ProtoAH   = 51
	ProtoOSPF = 89
)

var protocolNames = map[uint8]string{
	ProtoICMP: "ICMP",
	ProtoIGMP: "IGMP",
	ProtoTCP:  "TCP",
	ProtoUDP:  "UDP",
	ProtoGRE:  "GRE",
	ProtoESP:  "ESP",
	ProtoAH:   "AH",
	ProtoOSPF: "OSPF",
}

var icmpTypes = map[uint8]string{
	0:  "Echo Reply",
	3:  "Dest Unreachable",
	5:  "Redirect",
	8:  "Echo Request",
	11: "Time Exceeded",
}

// TCP flag bits in rendering order.
var tcpFlags = []struct {
	bit  uint8
	name string
}{
	{0x01, "FIN"},
	{0x02, "SYN"},
	{0x04, "RST"},
	{0x08, "PSH"},
	{0x10, "ACK"},
	{0x20, "URG"},
}

// ProtocolName returns the label for an IP protocol number.
func ProtocolName(proto uint8) string {
	if name, ok := protocolNames[proto]; ok {
		return name
	}
	return fmt.Sprintf("Proto-%d", proto)
}

// ICMPTypeName returns the label for an ICMP type, or "Unknown".
func ICMPTypeName(t uint8) string {
	if name, ok := icmpTypes[t]; ok {
		return name
	}
	return "Unknown"
}

// TCPFlags renders a TCP flags byte as a space separated list, e.g. "SYN ACK".
func TCPFlags(flags uint8) string {
	names := make([]string, 0, len(tcpFlags))
	for _, f := range tcpFlags {
		if flags&f.bit != 0 {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, " ")
}

// Decode parses buf[:length] as an IPv4 packet captured at ts.
//
// A truncated transport header does not fail the decode: the IP fields are
// returned with zero ports and an empty summary.
func Decode(buf []byte, length int, ts time.Time) (models.PacketData, bool) {
	if length > len(buf) {
		length = len(buf)
	}
	if length < minIPv4HeaderLen {
		return models.PacketData{}, false
	}
	data := buf[:length]

	version := data[0] >> 4
	if version != 4 {
		return models.PacketData{}, false
	}
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < minIPv4HeaderLen {
		headerLen = minIPv4HeaderLen
	}

	proto := data[9]
	pkt := models.PacketData{
		Timestamp:      ts,
		Protocol:       ProtocolName(proto),
		ProtocolNumber: proto,
		SrcIP:          netip.AddrFrom4([4]byte(data[12:16])).String(),
		DstIP:          netip.AddrFrom4([4]byte(data[16:20])).String(),
		Length:         length,
	}

	if length > headerLen {
		transport := data[headerLen:]
		switch proto {
		case ProtoTCP:
			decodeTCP(transport, &pkt)
		case ProtoUDP:
			decodeUDP(transport, &pkt)
		case ProtoICMP:
			decodeICMP(transport, &pkt)
		}
	}

	return pkt, true
}

func decodeTCP(b []byte, pkt *models.PacketData) {
	if len(b) < 20 {
		return
	}
	src := binary.BigEndian.Uint16(b[0:2])
	dst := binary.BigEndian.Uint16(b[2:4])
	seq := binary.BigEndian.Uint32(b[4:8])
	flags := b[13]

	pkt.SrcPort = int(src)
	pkt.DstPort = int(dst)
	pkt.Summary = fmt.Sprintf("Port %d -> %d [%s] Seq=%d", src, dst, TCPFlags(flags), seq)
}

func decodeUDP(b []byte, pkt *models.PacketData) {
	if len(b) < 8 {
		return
	}
	src := binary.BigEndian.Uint16(b[0:2])
	dst := binary.BigEndian.Uint16(b[2:4])
	udpLen := binary.BigEndian.Uint16(b[4:6])

	pkt.SrcPort = int(src)
	pkt.DstPort = int(dst)
	pkt.Summary = fmt.Sprintf("Port %d -> %d Len=%d", src, dst, udpLen)
}

func decodeICMP(b []byte, pkt *models.PacketData) {
	if len(b) < 8 {
		return
	}
	t, code := b[0], b[1]
	pkt.Summary = fmt.Sprintf("Type=%d (%s) Code=%d", t, ICMPTypeName(t), code)
}
