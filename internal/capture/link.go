package capture

import (
	"encoding/binary"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Frame is one captured IPv4 packet with the link layer removed.
type Frame struct {
	Data      []byte // IPv4 header onward
	Length    int    // valid bytes in Data
	Timestamp time.Time
	SrcMAC    string // empty when the link layer carries no addresses
	DstMAC    string
}

// StripLink removes the link-layer header of data according to lt. It
// returns false for frames that do not carry IPv4.
func StripLink(data []byte, lt layers.LinkType) (Frame, bool) {
	switch lt {
	case layers.LinkTypeEthernet:
		return stripEthernet(data)
	case layers.LinkTypeLinuxSLL:
		var sll layers.LinuxSLL
		if err := sll.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
			return Frame{}, false
		}
		if sll.EthernetType != layers.EthernetTypeIPv4 {
			return Frame{}, false
		}
		f := ipFrame(sll.Payload)
		if sll.AddrType == 1 && sll.AddrLen == 6 { // ARPHRD_ETHER
			f.SrcMAC = sll.Addr.String()
		}
		return f, isIPv4(f.Data)
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		var lo layers.Loopback
		if err := lo.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
			return Frame{}, false
		}
		if lo.Family != layers.ProtocolFamilyIPv4 {
			return Frame{}, false
		}
		return ipFrame(lo.Payload), isIPv4(lo.Payload)
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		return ipFrame(data), isIPv4(data)
	default:
		return Frame{}, false
	}
}

func stripEthernet(data []byte) (Frame, bool) {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return Frame{}, false
	}

	payload, etype := eth.Payload, eth.EthernetType
	for etype == layers.EthernetTypeDot1Q || etype == layers.EthernetTypeQinQ {
		var tag layers.Dot1Q
		if err := tag.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return Frame{}, false
		}
		payload, etype = tag.Payload, tag.Type
	}
	if etype != layers.EthernetTypeIPv4 || !isIPv4(payload) {
		return Frame{}, false
	}

	f := ipFrame(payload)
	f.SrcMAC = eth.SrcMAC.String()
	f.DstMAC = eth.DstMAC.String()
	return f, true
}

// ipFrame trims link-layer padding using the IPv4 total length field.
func ipFrame(payload []byte) Frame {
	if len(payload) >= 4 {
		total := int(binary.BigEndian.Uint16(payload[2:4]))
		if total >= 20 && total < len(payload) {
			payload = payload[:total]
		}
	}
	return Frame{Data: payload, Length: len(payload)}
}

func isIPv4(b []byte) bool {
	return len(b) > 0 && b[0]>>4 == 4
}
