package analysis

import (
	"sort"
	"sync"
	"time"

	"netsniff/internal/models"
)

// IPStat holds stats for a single address.
type IPStat struct {
	IP      string `json:"ip"`
	Packets int64  `json:"packets"`
	Bytes   int64  `json:"bytes"`
}

// ProtocolStat holds stats for a single protocol.
type ProtocolStat struct {
	Protocol string `json:"protocol"`
	Count    int64  `json:"count"`
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Start        time.Time      `json:"start"`
	Duration     time.Duration  `json:"duration_ns"`
	TotalPackets int64          `json:"total_packets"`
	TotalBytes   int64          `json:"total_bytes"`
	Protocols    []ProtocolStat `json:"protocols"`
	Addresses    []IPStat       `json:"addresses"`
}

// PacketsPerSecond returns the average packet rate over the snapshot duration.
func (s StatsSnapshot) PacketsPerSecond() float64 {
	secs := s.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.TotalPackets) / secs
}

// TrafficStats tracks network statistics.
type TrafficStats struct {
	mu             sync.Mutex
	start          time.Time
	totalPackets   int64
	totalBytes     int64
	windowBytes    int64
	windowPackets  int64
	lastTick       time.Time
	ipStats        map[string]*IPStat
	protocolCounts map[string]int64

	anomalyDetector *AnomalyDetector
	now             func() time.Time
}

// NewTrafficStats creates a new TrafficStats instance.
func NewTrafficStats(cfg Config) *TrafficStats {
	now := time.Now()
	return &TrafficStats{
		start:           now,
		lastTick:        now,
		ipStats:         make(map[string]*IPStat),
		protocolCounts:  make(map[string]int64),
		anomalyDetector: NewAnomalyDetector(cfg),
		now:             time.Now,
	}
}

// ProcessPacket updates stats with a new packet.
func (s *TrafficStats) ProcessPacket(pkt models.PacketData) {
	s.mu.Lock()
	s.totalPackets++
	s.totalBytes += int64(pkt.Length)
	s.windowBytes += int64(pkt.Length)
	s.windowPackets++

	// Both ends of the conversation are counted.
	s.countAddress(pkt.SrcIP, pkt.Length)
	s.countAddress(pkt.DstIP, pkt.Length)

	proto := pkt.Protocol
	if proto == "" {
		proto = "Unknown"
	}
	s.protocolCounts[proto]++
	s.mu.Unlock()

	// Detector has its own mutex
	s.anomalyDetector.ProcessPacket(pkt)
}

func (s *TrafficStats) countAddress(ip string, length int) {
	if ip == "" {
		return
	}
	st, ok := s.ipStats[ip]
	if !ok {
		st = &IPStat{IP: ip}
		s.ipStats[ip] = st
	}
	st.Packets++
	st.Bytes += int64(length)
}

// GetRates returns the bandwidth (bps) and packet rate (pps) since the last call.
func (s *TrafficStats) GetRates() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	duration := now.Sub(s.lastTick).Seconds()
	if duration <= 0 {
		return 0, 0
	}

	// Bytes * 8 = Bits
	bps := (float64(s.windowBytes) * 8) / duration
	pps := float64(s.windowPackets) / duration

	// Reset window
	s.windowBytes = 0
	s.windowPackets = 0
	s.lastTick = now

	return bps, pps
}

// TotalPackets returns the number of packets processed.
func (s *TrafficStats) TotalPackets() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalPackets
}

// GetTotalDataTransferred returns the total bytes processed.
func (s *TrafficStats) GetTotalDataTransferred() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalBytes
}

// GetTopTalkers returns the top N addresses by packet count. A negative
// limit returns all of them.
func (s *TrafficStats) GetTopTalkers(limit int) []IPStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topTalkers(limit)
}

func (s *TrafficStats) topTalkers(limit int) []IPStat {
	stats := make([]IPStat, 0, len(s.ipStats))
	for _, st := range s.ipStats {
		stats = append(stats, *st)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Packets != stats[j].Packets {
			return stats[i].Packets > stats[j].Packets
		}
		return stats[i].IP < stats[j].IP
	})

	if limit >= 0 && len(stats) > limit {
		return stats[:limit]
	}
	return stats
}

// GetProtocolStats returns the protocol distribution.
func (s *TrafficStats) GetProtocolStats() []ProtocolStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolStats()
}

func (s *TrafficStats) protocolStats() []ProtocolStat {
	stats := make([]ProtocolStat, 0, len(s.protocolCounts))
	for proto, count := range s.protocolCounts {
		stats = append(stats, ProtocolStat{Protocol: proto, Count: count})
	}

	// Sort descending by count
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Protocol < stats[j].Protocol
	})

	return stats
}

// Snapshot returns a copy of all counters.
func (s *TrafficStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StatsSnapshot{
		Start:        s.start,
		Duration:     s.now().Sub(s.start),
		TotalPackets: s.totalPackets,
		TotalBytes:   s.totalBytes,
		Protocols:    s.protocolStats(),
		Addresses:    s.topTalkers(-1),
	}
}

// GetAlerts returns recent security alerts.
func (s *TrafficStats) GetAlerts() []Alert {
	return s.anomalyDetector.GetRecentAlerts(5)
}

// GetAllAlerts returns the whole alert history.
func (s *TrafficStats) GetAllAlerts() []Alert {
	return s.anomalyDetector.Alerts()
}
