package refdata

// DefaultPorts is the seed port registry.
var DefaultPorts = []PortEntry{
	{Port: 80, Transport: "TCP", Service: "HTTP", Description: "Hypertext Transfer Protocol", WellKnown: true},
	{Port: 443, Transport: "TCP", Service: "HTTPS", Description: "HTTP over TLS/SSL", WellKnown: true},
	{Port: 8009, Transport: "TCP", Service: "Google Cast", Description: "Chromecast Protocol", WellKnown: true},
	{Port: 5353, Transport: "UDP", Service: "mDNS", Description: "Multicast DNS", WellKnown: true},
	{Port: 1900, Transport: "UDP", Service: "SSDP", Description: "Simple Service Discovery Protocol", WellKnown: true},
}

// DefaultVendors is the seed MAC vendor table.
var DefaultVendors = []VendorEntry{
	{Prefix: "6C:AD:F8", Vendor: "Google", Details: "Google Home/Chromecast devices"},
	{Prefix: "54:60:09", Vendor: "Google", Details: "Google Home/Chromecast devices"},
	{Prefix: "B4:F6:1C", Vendor: "Google", Details: "Google Nest devices"},
}

// DefaultSignatures is the seed signature set.
var DefaultSignatures = []Signature{
	{
		DeviceType:   "Chromecast",
		Manufacturer: "Google",
		Threshold:    0.70,
		Description:  "Google Chromecast streaming device",
		Rules: []Rule{
			{Type: RulePort, Value: "8009", Weight: 1.5, Description: "Uses Google Cast protocol"},
			{Type: RulePort, Value: "5353", Weight: 0.8, Description: "Advertises via mDNS"},
			{Type: RulePacketSize, Value: "8009:110", Weight: 1.0, Description: "Regular heartbeat packets ~110 bytes"},
			{Type: RuleFrequency, Value: "8009:5000", Weight: 1.2, Description: "Heartbeat every ~5 seconds"},
		},
	},
}
