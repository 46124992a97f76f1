package capture

import (
	"errors"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	srcMAC = net.HardwareAddr{0x6c, 0xad, 0xf8, 0x01, 0x02, 0x03}
	dstMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

func ipv4UDP(t *testing.T) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{192, 168, 1, 40},
		DstIP:    net.IP{192, 168, 1, 255},
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 5353}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatal(err)
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload([]byte("hello"))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, ls...); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestStripEthernet(t *testing.T) {
	ip := ipv4UDP(t)
	frame := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4},
		gopacket.Payload(ip),
	)

	f, ok := StripLink(frame, layers.LinkTypeEthernet)
	if !ok {
		t.Fatalf("ethernet frame rejected")
	}
	if f.Length != len(ip) || string(f.Data) != string(ip) {
		t.Errorf("payload mismatch: got %d bytes, want %d", f.Length, len(ip))
	}
	if f.SrcMAC != "6c:ad:f8:01:02:03" || f.DstMAC != "ff:ff:ff:ff:ff:ff" {
		t.Errorf("MACs = %s -> %s", f.SrcMAC, f.DstMAC)
	}
}

func TestStripEthernetVLAN(t *testing.T) {
	ip := ipv4UDP(t)
	frame := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeDot1Q},
		&layers.Dot1Q{VLANIdentifier: 10, Type: layers.EthernetTypeIPv4},
		gopacket.Payload(ip),
	)

	f, ok := StripLink(frame, layers.LinkTypeEthernet)
	if !ok || f.Length != len(ip) {
		t.Fatalf("tagged frame: ok=%v len=%d", ok, f.Length)
	}
}

func TestStripRejectsNonIPv4(t *testing.T) {
	arp := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeARP},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   srcMAC,
			SourceProtAddress: []byte{192, 168, 1, 40},
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    []byte{192, 168, 1, 1},
		},
	)
	if _, ok := StripLink(arp, layers.LinkTypeEthernet); ok {
		t.Errorf("ARP frame accepted")
	}

	// EtherType claims IPv4 but the payload is IPv6.
	v6 := append([]byte{0x60}, make([]byte, 39)...)
	lying := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4},
		gopacket.Payload(v6),
	)
	if _, ok := StripLink(lying, layers.LinkTypeEthernet); ok {
		t.Errorf("non-IPv4 payload accepted")
	}

	if _, ok := StripLink([]byte{1, 2, 3}, layers.LinkTypeEthernet); ok {
		t.Errorf("runt frame accepted")
	}
	if _, ok := StripLink(ipv4UDP(t), layers.LinkTypeFDDI); ok {
		t.Errorf("unsupported link type accepted")
	}
}

func TestStripLinuxSLL(t *testing.T) {
	ip := ipv4UDP(t)
	hdr := []byte{
		0x00, 0x00, // packet type: to us
		0x00, 0x01, // ARPHRD_ETHER
		0x00, 0x06, // address length
		0x6c, 0xad, 0xf8, 0x01, 0x02, 0x03, 0x00, 0x00,
		0x08, 0x00, // IPv4
	}
	f, ok := StripLink(append(hdr, ip...), layers.LinkTypeLinuxSLL)
	if !ok {
		t.Fatalf("SLL frame rejected")
	}
	if f.Length != len(ip) || f.SrcMAC != "6c:ad:f8:01:02:03" || f.DstMAC != "" {
		t.Errorf("frame = %+v", f)
	}
}

func TestStripLoopbackAndRaw(t *testing.T) {
	ip := ipv4UDP(t)

	f, ok := StripLink(append([]byte{2, 0, 0, 0}, ip...), layers.LinkTypeNull)
	if !ok || f.Length != len(ip) || f.SrcMAC != "" {
		t.Errorf("loopback: ok=%v frame=%+v", ok, f)
	}

	f, ok = StripLink(ip, layers.LinkTypeRaw)
	if !ok || f.Length != len(ip) {
		t.Errorf("raw: ok=%v len=%d", ok, f.Length)
	}
	if _, ok := StripLink([]byte{0x60, 0, 0, 0}, layers.LinkTypeRaw); ok {
		t.Errorf("raw IPv6 accepted")
	}
}

func TestIsPermissionError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"eth0: You don't have permission to capture on that device (socket: Operation not permitted)", true},
		{"socket: Operation not permitted", true},
		{"Error opening adapter: Access denied", true},
		{"eth9: No such device exists", false},
	}
	for _, tt := range tests {
		if got := isPermissionError(errors.New(tt.msg)); got != tt.want {
			t.Errorf("isPermissionError(%q) = %v", tt.msg, got)
		}
	}
}

func TestPickDefault(t *testing.T) {
	ifaces := []Interface{
		{Name: "lo", Addresses: []net.IP{net.IPv4(127, 0, 0, 1)}},
		{Name: "wg0", Addresses: []net.IP{net.ParseIP("fd00::1")}},
		{Name: "eth0", Addresses: []net.IP{net.ParseIP("fe80::1"), net.IPv4(192, 168, 1, 10)}},
	}
	name, ok := pickDefault(ifaces)
	if !ok || name != "eth0" {
		t.Errorf("pickDefault = %q, %v", name, ok)
	}
	if _, ok := pickDefault(ifaces[:2]); ok {
		t.Errorf("loopback-only list should have no default")
	}
}

func TestStripTrimsPadding(t *testing.T) {
	ip := ipv4UDP(t)
	padded := append(append([]byte{}, ip...), make([]byte, 12)...)
	f, ok := StripLink(padded, layers.LinkTypeRaw)
	if !ok || f.Length != len(ip) {
		t.Errorf("padding not trimmed: ok=%v len=%d want %d", ok, f.Length, len(ip))
	}
}
