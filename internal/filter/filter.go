// Package filter decides whether a decoded packet passes the operator's
// protocol, address and port constraints.
package filter

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"netsniff/internal/models"
)

var (
	ErrInvalidIP   = errors.New("invalid IPv4 address")
	ErrInvalidPort = errors.New("invalid port number, must be 1-65535")
)

// Spec holds the optional constraints. Empty strings and a nil Port are
// unconstrained.
type Spec struct {
	Protocol string
	SrcIP    string
	DstIP    string
	Port     *int
}

// Parse builds a Spec from raw command line values, validating addresses and
// the port. Empty values leave the field unconstrained.
func Parse(protocol, srcIP, dstIP, port string) (Spec, error) {
	spec := Spec{Protocol: strings.ToUpper(strings.TrimSpace(protocol))}

	for _, f := range []struct {
		raw string
		dst *string
	}{{srcIP, &spec.SrcIP}, {dstIP, &spec.DstIP}} {
		if f.raw == "" {
			continue
		}
		addr, err := netip.ParseAddr(f.raw)
		if err != nil || !addr.Is4() {
			return Spec{}, fmt.Errorf("%w: %s", ErrInvalidIP, f.raw)
		}
		*f.dst = addr.String()
	}

	if port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p < 1 || p > 65535 {
			return Spec{}, fmt.Errorf("%w: %s", ErrInvalidPort, port)
		}
		spec.Port = &p
	}

	return spec, nil
}

// HasFilters reports whether any constraint is set.
func (s Spec) HasFilters() bool {
	return s.Protocol != "" || s.SrcIP != "" || s.DstIP != "" || s.Port != nil
}

// Matches reports whether pkt satisfies every constraint in s.
func (s Spec) Matches(pkt models.PacketData) bool {
	if s.Protocol != "" && !strings.EqualFold(pkt.Protocol, s.Protocol) {
		return false
	}
	if s.SrcIP != "" && pkt.SrcIP != s.SrcIP {
		return false
	}
	if s.DstIP != "" && pkt.DstIP != s.DstIP {
		return false
	}
	if s.Port != nil && pkt.SrcPort != *s.Port && pkt.DstPort != *s.Port {
		return false
	}
	return true
}

// Matches is the free-function form of Spec.Matches.
func Matches(pkt models.PacketData, s Spec) bool {
	return s.Matches(pkt)
}

// String lists the active constraints, comma separated.
func (s Spec) String() string {
	if !s.HasFilters() {
		return "none"
	}
	var lines []string
	if s.Protocol != "" {
		lines = append(lines, "Protocol: "+s.Protocol)
	}
	if s.SrcIP != "" {
		lines = append(lines, "Source IP: "+s.SrcIP)
	}
	if s.DstIP != "" {
		lines = append(lines, "Destination IP: "+s.DstIP)
	}
	if s.Port != nil {
		lines = append(lines, "Port: "+strconv.Itoa(*s.Port))
	}
	return strings.Join(lines, ", ")
}
