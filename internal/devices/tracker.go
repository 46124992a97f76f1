// Package devices keeps a traffic profile per observed address and
// periodically classifies the active ones.
package devices

import (
	"context"
	"net/netip"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"netsniff/internal/classifier"
	"netsniff/internal/models"
)

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

// IsPrivate reports whether ip is a dotted IPv4 address inside an RFC 1918
// range.
func IsPrivate(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return false
	}
	for _, p := range privateRanges {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Classifier is the decision step run for every active device.
type Classifier interface {
	Classify(ctx context.Context, in classifier.Input) (classifier.Result, error)
}

// Config holds tracker tuning.
type Config struct {
	Interval          time.Duration // minimum time between classification runs
	MinPackets        int64         // devices below this count are not classified
	MaxSamplesPerPort int           // per-port sample cap, <= 0 for unbounded
	Retention         time.Duration // idle devices older than this are pruned, 0 disables
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Interval:          30 * time.Second,
		MinPackets:        10,
		MaxSamplesPerPort: 1000,
	}
}

// Classified is one device decision produced by a scan.
type Classified struct {
	IP     string
	MAC    string
	Result classifier.Result
	At     time.Time
}

// ScanReport describes one classification run.
type ScanReport struct {
	ID         string
	Started    time.Time
	Duration   time.Duration
	Candidates int
	Failed     int
	Results    []Classified
}

// Tracker owns the address -> Device map.
type Tracker struct {
	mu         sync.Mutex
	devices    map[string]*Device
	pendingMAC map[string]string

	cfg        Config
	classifier Classifier
	log        zerolog.Logger

	lastRun atomic.Int64 // unix nanos, 0 before the first run
	now     func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker(cfg Config, c Classifier, log zerolog.Logger) *Tracker {
	return &Tracker{
		devices:    make(map[string]*Device),
		pendingMAC: make(map[string]string),
		cfg:        cfg,
		classifier: c,
		log:        log,
		now:        time.Now,
	}
}

// Record attributes pkt to its source address and, when private, to its
// destination address.
func (t *Tracker) Record(pkt models.PacketData) {
	ts := pkt.Timestamp
	if ts.IsZero() {
		ts = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if pkt.SrcIP != "" {
		t.attribute(pkt.SrcIP, pkt.SrcPort, pkt.Length, ts)
	}
	if pkt.DstIP != "" && IsPrivate(pkt.DstIP) {
		t.attribute(pkt.DstIP, pkt.DstPort, pkt.Length, ts)
	}
}

// attribute must be called with t.mu held.
func (t *Tracker) attribute(ip string, localPort, size int, ts time.Time) {
	d, ok := t.devices[ip]
	if !ok {
		d = newDevice(ip, ts)
		if mac, ok := t.pendingMAC[ip]; ok {
			d.MAC = mac
			delete(t.pendingMAC, ip)
		}
		t.devices[ip] = d
	}

	d.TotalPackets++
	if ts.After(d.LastSeen) {
		d.LastSeen = ts
	}
	if localPort != 0 {
		d.addSample(localPort, size, ts, t.cfg.MaxSamplesPerPort)
	}
}

// LearnMAC associates mac with ip. If the address has not been seen yet
// the MAC is kept until its first packet.
func (t *Tracker) LearnMAC(ip, mac string) {
	if ip == "" || mac == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if d, ok := t.devices[ip]; ok {
		d.MAC = mac
		return
	}
	t.pendingMAC[ip] = mac
}

// RunClassification classifies every device with enough packets. It does
// nothing and returns false when the previous run started less than
// Config.Interval ago or another run won the race for this slot.
//
// The classifier is called without holding the tracker lock. A failure for
// one device is logged and the scan continues.
func (t *Tracker) RunClassification(ctx context.Context) (ScanReport, bool) {
	start := t.now()
	last := t.lastRun.Load()
	if last != 0 && start.Sub(time.Unix(0, last)) < t.cfg.Interval {
		return ScanReport{}, false
	}
	if !t.lastRun.CompareAndSwap(last, start.UnixNano()) {
		return ScanReport{}, false
	}
	return t.scan(ctx, start), true
}

// ClassifyAll runs a scan regardless of the time gate. It is meant for a
// final pass once capture has stopped.
func (t *Tracker) ClassifyAll(ctx context.Context) ScanReport {
	start := t.now()
	t.lastRun.Store(start.UnixNano())
	return t.scan(ctx, start)
}

func (t *Tracker) scan(ctx context.Context, start time.Time) ScanReport {
	report := ScanReport{ID: uuid.NewString(), Started: start}
	candidates := t.snapshot()
	report.Candidates = len(candidates)

	for _, d := range candidates {
		if err := ctx.Err(); err != nil {
			t.log.Debug().Err(err).Str("scan", report.ID).Msg("classification scan interrupted")
			break
		}

		res, err := t.classifier.Classify(ctx, classifier.Input{
			IP:            d.IP,
			MAC:           d.MAC,
			Ports:         d.Ports,
			AvgSizeByPort: d.AvgSizeByPort(),
			FreqByPort:    d.FreqByPort(),
		})
		if err != nil {
			report.Failed++
			t.log.Warn().Err(err).Str("ip", d.IP).Str("scan", report.ID).Msg("classification failed")
			continue
		}

		at := t.now()
		t.store(d.IP, res, at)
		report.Results = append(report.Results, Classified{IP: d.IP, MAC: d.MAC, Result: res, At: at})
	}

	report.Duration = t.now().Sub(start)
	t.log.Debug().
		Str("scan", report.ID).
		Int("candidates", report.Candidates).
		Int("classified", len(report.Results)).
		Int("failed", report.Failed).
		Dur("took", report.Duration).
		Msg("classification scan done")
	return report
}

func (t *Tracker) snapshot() []Device {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Device, 0, len(t.devices))
	for _, d := range t.devices {
		if d.TotalPackets >= t.cfg.MinPackets {
			out = append(out, d.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

func (t *Tracker) store(ip string, res classifier.Result, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// The device may have been pruned while the classifier ran.
	if d, ok := t.devices[ip]; ok {
		d.Classification = &res
		d.LastClassified = at
	}
}

// Devices returns copies of all devices, most packets first.
func (t *Tracker) Devices() []Device {
	t.mu.Lock()
	out := make([]Device, 0, len(t.devices))
	for _, d := range t.devices {
		out = append(out, d.clone())
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPackets != out[j].TotalPackets {
			return out[i].TotalPackets > out[j].TotalPackets
		}
		return out[i].IP < out[j].IP
	})
	return out
}

// Device returns a copy of the device for ip.
func (t *Tracker) Device(ip string) (Device, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.devices[ip]
	if !ok {
		return Device{}, false
	}
	return d.clone(), true
}

// Len returns the number of tracked devices.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.devices)
}

// Prune removes devices idle for longer than Config.Retention and returns
// how many were removed.
func (t *Tracker) Prune(now time.Time) int {
	if t.cfg.Retention <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for ip, d := range t.devices {
		if now.Sub(d.LastSeen) > t.cfg.Retention {
			delete(t.devices, ip)
			removed++
		}
	}
	return removed
}
