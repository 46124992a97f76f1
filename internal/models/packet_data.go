package models

import (
	"fmt"
	"time"
)

// PacketData holds the fields decoded from a single IPv4 packet.
type PacketData struct {
	Timestamp      time.Time
	Protocol       string // TCP, UDP, ICMP, IGMP, GRE, ESP, AH, OSPF or Proto-<n>
	ProtocolNumber uint8
	SrcIP          string
	DstIP          string
	SrcPort        int // 0 when the transport has no ports or failed to decode
	DstPort        int
	Summary        string // Short transport-layer description, empty if not decoded
	Length         int    // Valid bytes handed to the decoder
	DstMAC         string // link-layer destination, empty when the link carries none
}

// String renders the packet as a single console line.
func (p PacketData) String() string {
	return fmt.Sprintf("[%s] %-8s %-15s -> %-15s %s",
		p.Timestamp.Format("15:04:05.000"), p.Protocol, p.SrcIP, p.DstIP, p.Summary)
}
