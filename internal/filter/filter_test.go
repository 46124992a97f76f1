package filter

import (
	"errors"
	"testing"

	"netsniff/internal/models"
)

func intPtr(v int) *int { return &v }

func TestMatches(t *testing.T) {
	pkt := models.PacketData{Protocol: "TCP", SrcIP: "192.168.1.5", DstIP: "1.1.1.1", SrcPort: 51515, DstPort: 443}

	tests := []struct {
		name string
		spec Spec
		want bool
	}{
		{"empty spec", Spec{}, true},
		{"protocol case-insensitive", Spec{Protocol: "tcp"}, true},
		{"protocol mismatch", Spec{Protocol: "UDP"}, false},
		{"protocol prefix is not a match", Spec{Protocol: "TC"}, false},
		{"source match", Spec{SrcIP: "192.168.1.5"}, true},
		{"source mismatch", Spec{SrcIP: "192.168.1.6"}, false},
		{"destination match", Spec{DstIP: "1.1.1.1"}, true},
		{"destination mismatch", Spec{DstIP: "192.168.1.5"}, false},
		{"port equals destination", Spec{Port: intPtr(443)}, true},
		{"port equals source", Spec{Port: intPtr(51515)}, true},
		{"port neither", Spec{Port: intPtr(80)}, false},
		{"all constraints", Spec{Protocol: "TCP", SrcIP: "192.168.1.5", DstIP: "1.1.1.1", Port: intPtr(443)}, true},
		{"one failing constraint", Spec{Protocol: "TCP", SrcIP: "192.168.1.5", Port: intPtr(22)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(pkt, tt.spec); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesUnknownProtocolLabel(t *testing.T) {
	pkt := models.PacketData{Protocol: "Proto-132"}
	if !(Spec{Protocol: "proto-132"}).Matches(pkt) {
		t.Errorf("synthesized protocol labels should be matchable")
	}
}

func TestParse(t *testing.T) {
	spec, err := Parse("udp", "10.0.0.1", "", "53")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if spec.Protocol != "UDP" || spec.SrcIP != "10.0.0.1" || spec.DstIP != "" || spec.Port == nil || *spec.Port != 53 {
		t.Errorf("unexpected spec: %+v", spec)
	}
	if !spec.HasFilters() {
		t.Errorf("HasFilters() = false")
	}
	if got := spec.String(); got != "Protocol: UDP, Source IP: 10.0.0.1, Port: 53" {
		t.Errorf("String() = %q", got)
	}

	empty, err := Parse("", "", "", "")
	if err != nil || empty.HasFilters() {
		t.Errorf("empty Parse should yield no filters, got %+v, %v", empty, err)
	}
	if empty.String() != "none" {
		t.Errorf("String() = %q", empty.String())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name           string
		src, dst, port string
		want           error
	}{
		{"bad source", "300.1.1.1", "", "", ErrInvalidIP},
		{"ipv6 destination", "", "::1", "", ErrInvalidIP},
		{"port zero", "", "", "0", ErrInvalidPort},
		{"port too big", "", "", "65536", ErrInvalidPort},
		{"port not a number", "", "", "http", ErrInvalidPort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("", tt.src, tt.dst, tt.port)
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}
