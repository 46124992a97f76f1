package analysis

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"netsniff/internal/models"
)

// AnomalyType represents the type of anomaly detected.
type AnomalyType string

const (
	AnomalyBroadcastStorm AnomalyType = "BROADCAST_STORM"
	AnomalyUnsecure       AnomalyType = "UNSECURE_PROTOCOL"
	AnomalyDoS            AnomalyType = "POSSIBLE_DOS"
)

const broadcastMAC = "ff:ff:ff:ff:ff:ff"

// Config holds configuration for the anomaly detector.
type Config struct {
	BroadcastThreshold int           // broadcasts per second
	DoSThreshold       int           // packets per second from one source
	UnsecureCooldown   time.Duration // per source and port
	CleanupInterval    time.Duration
	DataRetention      time.Duration // idle tracking state older than this is dropped
	MaxAlerts          int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BroadcastThreshold: 50,
		DoSThreshold:       500,
		UnsecureCooldown:   10 * time.Second,
		CleanupInterval:    time.Minute,
		DataRetention:      5 * time.Minute,
		MaxAlerts:          20,
	}
}

// Alert represents a detected security anomaly.
type Alert struct {
	Type      AnomalyType `json:"type"`
	Source    string      `json:"source"`  // IP or source identifier
	Message   string      `json:"message"` // Human-readable description
	Timestamp time.Time   `json:"timestamp"`
}

var unsecurePorts = map[int]string{
	21: "FTP",
	23: "Telnet",
	80: "HTTP",
}

// rateWindow counts events in a one-second window that restarts on the
// first event after it lapses.
type rateWindow struct {
	start time.Time
	count int
}

func (w *rateWindow) hit(now time.Time) int {
	if now.Sub(w.start) > time.Second {
		w.reset(now)
	}
	w.count++
	return w.count
}

func (w *rateWindow) reset(now time.Time) {
	w.start, w.count = now, 0
}

// AnomalyDetector monitors network traffic for suspicious patterns.
type AnomalyDetector struct {
	mu  sync.Mutex
	cfg Config

	broadcasts rateWindow
	sources    map[string]*rateWindow
	plaintext  map[string]time.Time // "ip:port" -> last alert

	alerts    []Alert // oldest first, at most cfg.MaxAlerts
	lastSweep time.Time
}

// NewAnomalyDetector creates a new anomaly detection engine.
func NewAnomalyDetector(cfg Config) *AnomalyDetector {
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = DefaultConfig().MaxAlerts
	}
	return &AnomalyDetector{
		cfg:       cfg,
		sources:   make(map[string]*rateWindow),
		plaintext: make(map[string]time.Time),
	}
}

// ProcessPacket analyzes a packet for anomalies. Windows are measured on
// capture timestamps so offline replays behave like live captures.
func (ad *AnomalyDetector) ProcessPacket(pkt models.PacketData) {
	now := pkt.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()

	switch {
	case ad.lastSweep.IsZero():
		ad.lastSweep = now
	case now.Sub(ad.lastSweep) > ad.cfg.CleanupInterval:
		ad.expire(now)
		ad.lastSweep = now
	}

	if isBroadcast(pkt) {
		if n := ad.broadcasts.hit(now); n > ad.cfg.BroadcastThreshold {
			ad.broadcasts.reset(now)
			ad.record(AnomalyBroadcastStorm, "Network", now,
				"Broadcast storm detected: %d broadcasts in 1 second", n)
		}
	}

	if name, ok := unsecurePorts[pkt.DstPort]; ok && pkt.Protocol == "TCP" {
		key := fmt.Sprintf("%s:%d", pkt.SrcIP, pkt.DstPort)
		if last, seen := ad.plaintext[key]; !seen || now.Sub(last) > ad.cfg.UnsecureCooldown {
			ad.plaintext[key] = now
			ad.record(AnomalyUnsecure, pkt.SrcIP, now,
				"Plaintext %s traffic on port %d from %s", name, pkt.DstPort, pkt.SrcIP)
		}
	}

	if pkt.SrcIP != "" {
		w := ad.sources[pkt.SrcIP]
		if w == nil {
			w = &rateWindow{}
			ad.sources[pkt.SrcIP] = w
		}
		if n := w.hit(now); n > ad.cfg.DoSThreshold {
			w.reset(now)
			ad.record(AnomalyDoS, pkt.SrcIP, now, "High packet rate from %s: %d pps", pkt.SrcIP, n)
		}
	}
}

// expire drops rate windows and alert cooldowns idle for longer than the
// retention period.
func (ad *AnomalyDetector) expire(now time.Time) {
	stale := func(t time.Time) bool { return now.Sub(t) > ad.cfg.DataRetention }
	maps.DeleteFunc(ad.plaintext, func(_ string, last time.Time) bool { return stale(last) })
	maps.DeleteFunc(ad.sources, func(_ string, w *rateWindow) bool { return stale(w.start) })
}

func (ad *AnomalyDetector) record(typ AnomalyType, source string, at time.Time, format string, args ...any) {
	ad.alerts = append(ad.alerts, Alert{
		Type:      typ,
		Source:    source,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: at,
	})
	if over := len(ad.alerts) - ad.cfg.MaxAlerts; over > 0 {
		ad.alerts = slices.Delete(ad.alerts, 0, over)
	}
}

// GetRecentAlerts returns up to limit of the newest alerts, oldest first.
func (ad *AnomalyDetector) GetRecentAlerts(limit int) []Alert {
	ad.mu.Lock()
	defer ad.mu.Unlock()

	tail := ad.alerts[max(len(ad.alerts)-max(limit, 0), 0):]
	return append([]Alert{}, tail...)
}

// Alerts returns the whole retained alert history.
func (ad *AnomalyDetector) Alerts() []Alert {
	return ad.GetRecentAlerts(ad.cfg.MaxAlerts)
}

// isBroadcast reports frames sent to the Ethernet broadcast address. When
// the link layer gave no destination only the limited IPv4 broadcast counts,
// since a .255 host part is a valid unicast address on wider prefixes.
func isBroadcast(pkt models.PacketData) bool {
	if pkt.DstMAC != "" {
		return pkt.DstMAC == broadcastMAC
	}
	return pkt.DstIP == "255.255.255.255"
}
