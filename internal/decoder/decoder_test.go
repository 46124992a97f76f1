package decoder

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("Failed to serialize packet: %v", err)
	}
	return buf.Bytes()
}

func ipv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IP{192, 168, 1, 20},
		DstIP:    net.IP{8, 8, 4, 4},
	}
}

func TestDecodeTCP(t *testing.T) {
	ip := ipv4(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 51000, DstPort: 443, Seq: 123456, SYN: true, ACK: true, Window: 1024}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("SetNetworkLayerForChecksum: %v", err)
	}
	data := serialize(t, ip, tcp, gopacket.Payload([]byte("hello")))

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	pkt, ok := Decode(data, len(data), ts)
	if !ok {
		t.Fatalf("Decode returned no record for a valid TCP packet")
	}
	if pkt.Protocol != "TCP" || pkt.ProtocolNumber != ProtoTCP {
		t.Errorf("Protocol = %s (%d), want TCP", pkt.Protocol, pkt.ProtocolNumber)
	}
	if pkt.SrcIP != "192.168.1.20" || pkt.DstIP != "8.8.4.4" {
		t.Errorf("Addresses = %s -> %s", pkt.SrcIP, pkt.DstIP)
	}
	if pkt.SrcPort != 51000 || pkt.DstPort != 443 {
		t.Errorf("Ports = %d -> %d", pkt.SrcPort, pkt.DstPort)
	}
	want := "Port 51000 -> 443 [SYN ACK] Seq=123456"
	if pkt.Summary != want {
		t.Errorf("Summary = %q, want %q", pkt.Summary, want)
	}
	if pkt.Length != len(data) || !pkt.Timestamp.Equal(ts) {
		t.Errorf("Length/Timestamp not carried through: %d %v", pkt.Length, pkt.Timestamp)
	}
}

func TestDecodeUDP(t *testing.T) {
	ip := ipv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 5353, DstPort: 5353}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("SetNetworkLayerForChecksum: %v", err)
	}
	data := serialize(t, ip, udp, gopacket.Payload(make([]byte, 12)))

	pkt, ok := Decode(data, len(data), time.Now())
	if !ok {
		t.Fatalf("Decode returned no record for a valid UDP packet")
	}
	if pkt.SrcPort != 5353 || pkt.DstPort != 5353 {
		t.Errorf("Ports = %d -> %d", pkt.SrcPort, pkt.DstPort)
	}
	if want := "Port 5353 -> 5353 Len=20"; pkt.Summary != want {
		t.Errorf("Summary = %q, want %q", pkt.Summary, want)
	}
}

func TestDecodeICMP(t *testing.T) {
	ip := ipv4(layers.IPProtocolICMPv4)
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
	data := serialize(t, ip, icmp)

	pkt, ok := Decode(data, len(data), time.Now())
	if !ok {
		t.Fatalf("Decode returned no record for a valid ICMP packet")
	}
	if pkt.Protocol != "ICMP" {
		t.Errorf("Protocol = %s, want ICMP", pkt.Protocol)
	}
	if want := "Type=8 (Echo Request) Code=0"; pkt.Summary != want {
		t.Errorf("Summary = %q, want %q", pkt.Summary, want)
	}
	if pkt.SrcPort != 0 || pkt.DstPort != 0 {
		t.Errorf("ICMP should not carry ports, got %d -> %d", pkt.SrcPort, pkt.DstPort)
	}
}

// header returns a bare 20 byte IPv4 header with the given protocol.
func header(proto byte) []byte {
	return []byte{
		0x45, 0x00, 0x00, 0x28, 0x00, 0x00, 0x40, 0x00,
		0x40, proto, 0x00, 0x00,
		10, 0, 0, 1,
		172, 16, 254, 9,
	}
}

func TestDecodeAddressesMatchHeaderBytes(t *testing.T) {
	for _, addr := range [][8]byte{
		{0, 0, 0, 0, 255, 255, 255, 255},
		{1, 2, 3, 4, 5, 6, 7, 8},
		{192, 168, 0, 1, 10, 20, 30, 40},
	} {
		b := header(47)
		copy(b[12:20], addr[:])
		pkt, ok := Decode(b, len(b), time.Now())
		if !ok {
			t.Fatalf("Decode failed for %v", addr)
		}
		wantSrc := net.IPv4(addr[0], addr[1], addr[2], addr[3]).String()
		wantDst := net.IPv4(addr[4], addr[5], addr[6], addr[7]).String()
		if pkt.SrcIP != wantSrc || pkt.DstIP != wantDst {
			t.Errorf("got %s -> %s, want %s -> %s", pkt.SrcIP, pkt.DstIP, wantSrc, wantDst)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	v6 := header(6)
	v6[0] = 0x65

	tests := []struct {
		name   string
		buf    []byte
		length int
	}{
		{"empty", nil, 0},
		{"short buffer", header(6)[:19], 19},
		{"short valid length", header(6), 19},
		{"version 6", v6, len(v6)},
		{"length larger than buffer", header(6)[:10], 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Decode(tt.buf, tt.length, time.Now()); ok {
				t.Errorf("Decode should fail closed")
			}
		})
	}
}

func TestDecodeTruncatedTransport(t *testing.T) {
	for _, proto := range []byte{ProtoTCP, ProtoUDP, ProtoICMP} {
		b := append(header(proto), 0x1F, 0x49, 0x00, 0x50, 0x00) // 5 bytes, shorter than any header
		pkt, ok := Decode(b, len(b), time.Now())
		if !ok {
			t.Fatalf("proto %d: IP fields should still decode", proto)
		}
		if pkt.SrcPort != 0 || pkt.DstPort != 0 || pkt.Summary != "" {
			t.Errorf("proto %d: transport fields should stay default, got %+v", proto, pkt)
		}
		if pkt.SrcIP != "10.0.0.1" {
			t.Errorf("proto %d: SrcIP = %s", proto, pkt.SrcIP)
		}
	}
}

func TestDecodeIgnoresBytesPastLength(t *testing.T) {
	b := append(header(ProtoUDP), 0x00, 0x35, 0x00, 0x35, 0x00, 0x08, 0x00, 0x00)
	pkt, ok := Decode(b, 20, time.Now())
	if !ok {
		t.Fatalf("Decode failed")
	}
	if pkt.Summary != "" || pkt.DstPort != 0 {
		t.Errorf("Decoder read past the valid length: %+v", pkt)
	}
}

func TestProtocolName(t *testing.T) {
	tests := map[uint8]string{
		1: "ICMP", 2: "IGMP", 6: "TCP", 17: "UDP",
		47: "GRE", 50: "ESP", 51: "AH", 89: "OSPF",
		132: "Proto-132", 0: "Proto-0",
	}
	for n, want := range tests {
		if got := ProtocolName(n); got != want {
			t.Errorf("ProtocolName(%d) = %s, want %s", n, got, want)
		}
	}
	b := header(132)
	pkt, _ := Decode(b, len(b), time.Now())
	if pkt.Protocol != "Proto-132" {
		t.Errorf("Protocol = %s, want Proto-132", pkt.Protocol)
	}
}

func TestTCPFlags(t *testing.T) {
	tests := []struct {
		flags uint8
		want  string
	}{
		{0x12, "SYN ACK"},
		{0x00, ""},
		{0x01, "FIN"},
		{0x3F, "FIN SYN RST PSH ACK URG"},
		{0x18, "PSH ACK"},
		{0xC0, ""},
	}
	for _, tt := range tests {
		if got := TCPFlags(tt.flags); got != tt.want {
			t.Errorf("TCPFlags(%#x) = %q, want %q", tt.flags, got, tt.want)
		}
	}
}

func TestICMPTypeName(t *testing.T) {
	if got := ICMPTypeName(11); got != "Time Exceeded" {
		t.Errorf("ICMPTypeName(11) = %q", got)
	}
	if got := ICMPTypeName(42); got != "Unknown" {
		t.Errorf("ICMPTypeName(42) = %q", got)
	}
}
