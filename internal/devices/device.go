package devices

import (
	"maps"
	"slices"
	"sort"
	"time"

	"netsniff/internal/classifier"
)

// Device is the traffic profile accumulated for one address.
type Device struct {
	IP           string    `json:"ip"`
	MAC          string    `json:"mac,omitempty"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	TotalPackets int64     `json:"total_packets"`
	Ports        []int     `json:"ports"` // sorted, unique

	// Per local port samples, oldest first.
	SizeSamples map[int][]int       `json:"-"`
	TimeSamples map[int][]time.Time `json:"-"`

	Classification *classifier.Result `json:"classification,omitempty"`
	LastClassified time.Time          `json:"last_classified,omitzero"`
}

// PortStat summarises the samples held for one port.
type PortStat struct {
	Port          int `json:"port"`
	Packets       int `json:"packets"`
	AvgSize       int `json:"avg_size"`
	MinSize       int `json:"min_size"`
	MaxSize       int `json:"max_size"`
	AvgIntervalMs int `json:"avg_interval_ms,omitempty"`
}

func newDevice(ip string, now time.Time) *Device {
	return &Device{
		IP:          ip,
		FirstSeen:   now,
		LastSeen:    now,
		Ports:       []int{},
		SizeSamples: make(map[int][]int),
		TimeSamples: make(map[int][]time.Time),
	}
}

// addSample records one packet seen on the device's local port. Sample lists
// longer than limit drop their oldest entries; limit <= 0 keeps everything.
func (d *Device) addSample(port, size int, ts time.Time, limit int) {
	if i, found := slices.BinarySearch(d.Ports, port); !found {
		d.Ports = slices.Insert(d.Ports, i, port)
	}

	sizes := append(d.SizeSamples[port], size)
	times := append(d.TimeSamples[port], ts)
	if limit > 0 && len(sizes) > limit {
		sizes = sizes[len(sizes)-limit:]
	}
	if limit > 0 && len(times) > limit {
		times = times[len(times)-limit:]
	}
	d.SizeSamples[port] = sizes
	d.TimeSamples[port] = times
}

func (d *Device) clone() Device {
	c := *d
	c.Ports = slices.Clone(d.Ports)
	c.SizeSamples = make(map[int][]int, len(d.SizeSamples))
	for p, s := range d.SizeSamples {
		c.SizeSamples[p] = slices.Clone(s)
	}
	c.TimeSamples = make(map[int][]time.Time, len(d.TimeSamples))
	for p, s := range d.TimeSamples {
		c.TimeSamples[p] = slices.Clone(s)
	}
	if d.Classification != nil {
		res := *d.Classification
		res.Methods = slices.Clone(res.Methods)
		res.Evidence = slices.Clone(res.Evidence)
		c.Classification = &res
	}
	return c
}

// DeviceType returns the classified type, or "" if the device was never
// classified.
func (d Device) DeviceType() string {
	if d.Classification == nil {
		return ""
	}
	return d.Classification.DeviceType
}

// AvgSizeByPort returns the truncated average packet size per port.
func (d Device) AvgSizeByPort() map[int]int {
	out := make(map[int]int, len(d.SizeSamples))
	for port, sizes := range d.SizeSamples {
		if len(sizes) == 0 {
			continue
		}
		sum := 0
		for _, s := range sizes {
			sum += s
		}
		out[port] = sum / len(sizes)
	}
	return out
}

// FreqByPort returns the average inter-arrival interval in milliseconds for
// every port with at least two timestamp samples.
func (d Device) FreqByPort() map[int]int {
	out := make(map[int]int, len(d.TimeSamples))
	for port, times := range d.TimeSamples {
		if ms, ok := avgIntervalMs(times); ok {
			out[port] = ms
		}
	}
	return out
}

func avgIntervalMs(times []time.Time) (int, bool) {
	if len(times) < 2 {
		return 0, false
	}
	sorted := slices.Clone(times)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })
	span := sorted[len(sorted)-1].Sub(sorted[0])
	return int((span / time.Duration(len(sorted)-1)).Milliseconds()), true
}

// TopPorts returns up to n ports ordered by sample count, most used first.
// Ports with equal counts are ordered by number.
func (d Device) TopPorts(n int) []int {
	ports := slices.Sorted(maps.Keys(d.SizeSamples))
	sort.SliceStable(ports, func(i, j int) bool {
		return len(d.SizeSamples[ports[i]]) > len(d.SizeSamples[ports[j]])
	})
	if n >= 0 && len(ports) > n {
		ports = ports[:n]
	}
	return ports
}

// PortStats returns per-port sample statistics in TopPorts order.
func (d Device) PortStats() []PortStat {
	ports := d.TopPorts(-1)
	stats := make([]PortStat, 0, len(ports))
	for _, port := range ports {
		sizes := d.SizeSamples[port]
		if len(sizes) == 0 {
			continue
		}
		st := PortStat{
			Port:    port,
			Packets: len(sizes),
			MinSize: slices.Min(sizes),
			MaxSize: slices.Max(sizes),
		}
		sum := 0
		for _, s := range sizes {
			sum += s
		}
		st.AvgSize = sum / len(sizes)
		if ms, ok := avgIntervalMs(d.TimeSamples[port]); ok {
			st.AvgIntervalMs = ms
		}
		stats = append(stats, st)
	}
	return stats
}
