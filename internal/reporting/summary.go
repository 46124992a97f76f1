// Package reporting renders the end-of-session console summary and the HTML
// session report.
package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"netsniff/internal/analysis"
	"netsniff/internal/devices"
)

const (
	topAddresses   = 10
	summaryDevices = 20
	summaryPorts   = 5
)

type summaryWriter struct {
	w       io.Writer
	heading lipgloss.Style
	section lipgloss.Style
	err     error
}

func (s *summaryWriter) printf(format string, args ...any) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintf(s.w, format, args...)
}

// WriteSummary prints the capture statistics followed by the device summary.
// With detailed set every device gets its per-port breakdown and type hints.
func WriteSummary(w io.Writer, snap analysis.StatsSnapshot, devs []devices.Device, detailed bool) error {
	r := lipgloss.NewRenderer(w)
	s := &summaryWriter{
		w:       w,
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")),
		section: r.NewStyle().Bold(true),
	}

	writeStatistics(s, snap)
	if detailed {
		writeDetailedDevices(s, devs)
	} else {
		writeDeviceSummary(s, devs)
	}
	return s.err
}

func writeStatistics(s *summaryWriter, snap analysis.StatsSnapshot) {
	s.printf("\n%s\n", s.heading.Render("=== Packet Capture Statistics ==="))
	s.printf("Capture Duration: %.2f seconds\n", snap.Duration.Seconds())
	s.printf("Total Packets Captured: %d\n", snap.TotalPackets)
	s.printf("Total Data: %s\n", formatBytes(snap.TotalBytes))
	if snap.TotalPackets > 0 {
		s.printf("Average Packets/Second: %.2f\n", snap.PacketsPerSecond())
	}

	if len(snap.Protocols) > 0 && snap.TotalPackets > 0 {
		s.printf("\n%s\n", s.section.Render("--- Protocol Distribution ---"))
		for _, p := range snap.Protocols {
			pct := float64(p.Count) / float64(snap.TotalPackets) * 100
			bar := strings.Repeat("█", int(pct/2))
			s.printf("  %-10s %8d packets (%5.1f%%) %s\n", p.Protocol, p.Count, pct, bar)
		}
	}

	if len(snap.Addresses) > 0 && snap.TotalPackets > 0 {
		s.printf("\n%s\n", s.section.Render("--- Top 10 Most Active IPs ---"))
		// Each packet is counted for its source and its destination.
		denom := float64(snap.TotalPackets * 2)
		for i, a := range snap.Addresses[:min(topAddresses, len(snap.Addresses))] {
			pct := float64(a.Packets) / denom * 100
			s.printf("  %2d. %-15s %8d packets (%5.1f%%)\n", i+1, a.IP, a.Packets, pct)
		}
	}
}

func writeDeviceSummary(s *summaryWriter, devs []devices.Device) {
	s.printf("\n%s\n", s.heading.Render("=== Identified Devices ==="))
	s.printf("Total Devices Tracked: %d\n\n", len(devs))

	for _, d := range devs[:min(summaryDevices, len(devs))] {
		s.printf("IP: %-15s Packets: %6d\n", d.IP, d.TotalPackets)
		if c := d.Classification; c != nil {
			s.printf("  Type: %s\n", c.DeviceType)
			s.printf("  Confidence: %.1f%%\n", c.Confidence*100)
			s.printf("  Method: %s\n", c.MethodString())
			if ports := d.TopPorts(summaryPorts); len(ports) > 0 {
				s.printf("  Top Ports: %s\n", joinInts(ports))
			}
		} else {
			s.printf("  Type: Not yet identified\n")
		}
		s.printf("  Last Seen: %s\n\n", d.LastSeen.Format("15:04:05"))
	}
}

func writeDetailedDevices(s *summaryWriter, devs []devices.Device) {
	s.printf("\n%s\n", s.heading.Render("=== Detailed Device Analysis ==="))
	s.printf("Total Devices Tracked: %d\n", len(devs))

	for _, d := range devs {
		rule := strings.Repeat("=", 60)
		s.printf("\n%s\nDevice: %s\n%s\n", rule, d.IP, rule)
		if d.MAC != "" {
			s.printf("MAC: %s\n", d.MAC)
		}
		s.printf("Total Packets: %d\n", d.TotalPackets)
		s.printf("First Seen: %s\n", d.FirstSeen.Format("2006-01-02 15:04:05"))
		s.printf("Last Seen: %s\n", d.LastSeen.Format("2006-01-02 15:04:05"))
		s.printf("Active Duration: %.1f seconds\n", d.LastSeen.Sub(d.FirstSeen).Seconds())
		if c := d.Classification; c != nil {
			s.printf("Type: %s (%.1f%%, %s)\n", c.DeviceType, c.Confidence*100, c.MethodString())
		}

		if stats := d.PortStats(); len(stats) > 0 {
			s.printf("\n%s\n", s.section.Render("--- Port Activity ---"))
			for _, ps := range stats {
				s.printf("  Port %d:\n", ps.Port)
				s.printf("    Packets: %d\n", ps.Packets)
				s.printf("    Avg Size: %d bytes (min: %d, max: %d)\n", ps.AvgSize, ps.MinSize, ps.MaxSize)
				if desc, ok := analysis.ServiceDescription(ps.Port); ok {
					s.printf("    Service: %s\n", desc)
				}
				if ps.AvgIntervalMs > 0 {
					s.printf("    Avg Interval: %dms (~%.1f packets/sec)\n", ps.AvgIntervalMs, 1000/float64(ps.AvgIntervalMs))
				}
			}
		}

		s.printf("\n%s\n", s.section.Render("--- Device Type Hints ---"))
		for _, h := range Hints(d) {
			s.printf("  • %s\n", h)
		}
	}
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = fmt.Sprint(n)
	}
	return strings.Join(s, ", ")
}
