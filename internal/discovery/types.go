package discovery

// Host is an address that answered an ARP probe.
type Host struct {
	IP  string `json:"ip"`
	MAC string `json:"mac"`
}
