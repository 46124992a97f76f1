package reporting

import (
	"fmt"
	"slices"
	"strings"

	"netsniff/internal/devices"
)

type portHint struct {
	ports []int
	all   bool // every port must be present
	text  string
}

var portHints = []portHint{
	{ports: []int{5353}, text: "Uses mDNS (Multicast DNS) - likely Apple device, smart TV, or IoT device"},
	{ports: []int{8009}, text: "Uses port 8009 - likely Google Cast device (Chromecast, Google Home, Smart TV with Cast)"},
	{ports: []int{1900}, text: "Uses SSDP (port 1900) - UPnP device (Smart TV, media player, printer, or IoT device)"},
	{ports: []int{3389}, text: "Uses RDP (port 3389) - Windows computer with Remote Desktop enabled"},
	{ports: []int{22}, text: "Uses SSH (port 22) - Linux/Unix computer or network device"},
	{ports: []int{445, 139}, text: "Uses SMB - Windows computer or NAS device"},
	{ports: []int{548}, text: "Uses AFP (port 548) - macOS device or Apple network storage"},
	{ports: []int{62078, 7000}, text: "Uses Apple AirPlay ports - Apple TV, HomePod, or AirPlay-enabled device"},
	{ports: []int{80, 443}, all: true, text: "Heavy HTTP/HTTPS traffic - could be computer, phone, or smart device"},
	{ports: []int{53}, text: "DNS traffic - likely your router or a computer making DNS queries"},
}

const (
	lowPacketCount = 10
	smallAvgSize   = 100
	largeAvgSize   = 1000
)

// Hints returns human-readable guesses about what kind of device d is,
// derived from its ports, address and packet sizes.
func Hints(d devices.Device) []string {
	var hints []string

	for _, h := range portHints {
		match := h.all
		for _, p := range h.ports {
			has := slices.Contains(d.Ports, p)
			if h.all {
				match = match && has
			} else if has {
				match = true
				break
			}
		}
		if match {
			hints = append(hints, h.text)
		}
	}

	if strings.HasSuffix(d.IP, ".1") {
		hints = append(hints, "IP ends in .1 - commonly used for routers/gateways")
	}
	if strings.HasSuffix(d.IP, ".255") {
		hints = append(hints, "Broadcast address - not a specific device")
	}
	if d.TotalPackets < lowPacketCount {
		hints = append(hints, "Low packet count - device may be idle or just powered on")
	}

	var sum, n int
	for _, sizes := range d.SizeSamples {
		for _, s := range sizes {
			sum += s
		}
		n += len(sizes)
	}
	if n > 0 {
		avg := sum / n
		switch {
		case avg < smallAvgSize:
			hints = append(hints, fmt.Sprintf("Small packets (avg %d bytes) - likely control/signaling traffic", avg))
		case avg > largeAvgSize:
			hints = append(hints, fmt.Sprintf("Large packets (avg %d bytes) - likely streaming or file transfer", avg))
		}
	}

	if len(hints) == 0 {
		hints = append(hints, "Not enough distinctive traffic patterns to identify device type")
	}
	return hints
}
