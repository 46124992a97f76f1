// Package refdata holds the read-only reference tables the classifier
// consults: well-known ports, MAC vendor prefixes, device signatures and
// operator-confirmed known devices.
package refdata

import (
	"context"
	"strings"
	"time"
)

// Rule types understood by the classifier.
const (
	RulePort       = "PORT"
	RulePacketSize = "PACKET_SIZE"
	RuleFrequency  = "FREQUENCY"
)

// PortEntry is a port registry row.
type PortEntry struct {
	Port        int    `json:"port"`
	Transport   string `json:"transport"` // TCP, UDP or BOTH
	Service     string `json:"service"`
	Description string `json:"description,omitempty"`
	WellKnown   bool   `json:"well_known"`
}

// VendorEntry maps a 3-octet MAC prefix ("AA:BB:CC") to a vendor.
type VendorEntry struct {
	Prefix  string `json:"prefix"`
	Vendor  string `json:"vendor"`
	Details string `json:"details,omitempty"`
}

// Rule is one weighted traffic-pattern rule of a signature.
//
// PORT values are a decimal port. PACKET_SIZE and FREQUENCY values are
// "<port>:<number>".
type Rule struct {
	Type        string  `json:"type"`
	Value       string  `json:"value"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description,omitempty"`
}

// Signature describes a device type by its traffic rules.
type Signature struct {
	DeviceType   string  `json:"device_type"`
	Manufacturer string  `json:"manufacturer"`
	Threshold    float64 `json:"threshold"`
	Description  string  `json:"description,omitempty"`
	Rules        []Rule  `json:"rules"`
}

// KnownDevice is a device whose type was previously confirmed.
type KnownDevice struct {
	IP           string    `json:"ip"`
	MAC          string    `json:"mac"`
	DeviceType   string    `json:"device_type"`
	FriendlyName string    `json:"friendly_name,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
}

// Store is the lookup surface used by the classifier. Lookups that find
// nothing return a nil entry and a nil error.
type Store interface {
	KnownDevice(ctx context.Context, ip, mac string) (*KnownDevice, error)
	MACVendor(ctx context.Context, prefix string) (*VendorEntry, error)
	PortService(ctx context.Context, port int) (*PortEntry, error)
	Signatures(ctx context.Context) ([]Signature, error)
}

// MACPrefix returns the upper-case first three octets of mac, e.g.
// "6c:ad:f8:01:02:03" -> "6C:AD:F8". Dash separated input is accepted.
// It returns "" when mac has fewer than three octets.
func MACPrefix(mac string) string {
	mac = strings.ReplaceAll(strings.TrimSpace(mac), "-", ":")
	parts := strings.Split(mac, ":")
	if len(parts) < 3 {
		return ""
	}
	for _, p := range parts[:3] {
		if len(p) != 2 {
			return ""
		}
	}
	return strings.ToUpper(strings.Join(parts[:3], ":"))
}

func normalizePrefix(prefix string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(prefix), "-", ":"))
}
