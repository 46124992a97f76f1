package reporting

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"netsniff/internal/analysis"
	"netsniff/internal/classifier"
	"netsniff/internal/devices"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testSnapshot() analysis.StatsSnapshot {
	return analysis.StatsSnapshot{
		Start:        t0,
		Duration:     10 * time.Second,
		TotalPackets: 100,
		TotalBytes:   64000,
		Protocols: []analysis.ProtocolStat{
			{Protocol: "TCP", Count: 60},
			{Protocol: "UDP", Count: 40},
		},
		Addresses: []analysis.IPStat{
			{IP: "192.168.1.10", Packets: 80, Bytes: 50000},
			{IP: "1.1.1.1", Packets: 50, Bytes: 30000},
		},
	}
}

func castDevice() devices.Device {
	d := devices.Device{
		IP:           "192.168.1.40",
		MAC:          "6c:ad:f8:01:02:03",
		FirstSeen:    t0,
		LastSeen:     t0.Add(10 * time.Second),
		TotalPackets: 3,
		Ports:        []int{5353, 8009},
		SizeSamples: map[int][]int{
			8009: {110, 110},
			5353: {80},
		},
		TimeSamples: map[int][]time.Time{
			8009: {t0, t0.Add(5 * time.Second)},
			5353: {t0},
		},
		Classification: &classifier.Result{
			DeviceType: "Chromecast",
			Confidence: 0.9,
			Methods:    []classifier.Method{classifier.MethodPattern},
		},
	}
	return d
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	unknown := devices.Device{IP: "192.168.1.1", TotalPackets: 50, LastSeen: t0}
	if err := WriteSummary(&buf, testSnapshot(), []devices.Device{unknown, castDevice()}, false); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Capture Duration: 10.00 seconds",
		"Total Packets Captured: 100",
		"Average Packets/Second: 10.00",
		"TCP              60 packets ( 60.0%) " + strings.Repeat("█", 30),
		" 1. 192.168.1.10          80 packets ( 40.0%)",
		"Total Devices Tracked: 2",
		"Type: Not yet identified",
		"Type: Chromecast",
		"Confidence: 90.0%",
		"Method: PATTERN",
		"Top Ports: 8009, 5353",
		"Last Seen: 12:00:10",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "Device Type Hints") {
		t.Error("hints should only appear in detailed mode")
	}
}

func TestWriteSummaryDetailed(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummary(&buf, testSnapshot(), []devices.Device{castDevice()}, true); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Device: 192.168.1.40",
		"MAC: 6c:ad:f8:01:02:03",
		"Active Duration: 10.0 seconds",
		"Port 8009:",
		"Avg Size: 110 bytes (min: 110, max: 110)",
		"Service: Google Cast",
		"Avg Interval: 5000ms (~0.2 packets/sec)",
		"Uses port 8009",
		"Uses mDNS",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("detailed summary missing %q\n%s", want, out)
		}
	}
}

func TestHints(t *testing.T) {
	tests := []struct {
		name string
		dev  devices.Device
		want []string
	}{
		{
			name: "router",
			dev: devices.Device{IP: "192.168.1.1", TotalPackets: 50, Ports: []int{53, 80, 443},
				SizeSamples: map[int][]int{53: {70, 90}}},
			want: []string{"Heavy HTTP/HTTPS", "DNS traffic", "IP ends in .1", "Small packets (avg 80 bytes)"},
		},
		{
			name: "only http",
			dev:  devices.Device{IP: "192.168.1.20", TotalPackets: 50, Ports: []int{80}},
			want: []string{"Not enough distinctive traffic patterns"},
		},
		{
			name: "smb via netbios",
			dev:  devices.Device{IP: "192.168.1.30", TotalPackets: 5, Ports: []int{139}},
			want: []string{"Uses SMB", "Low packet count"},
		},
		{
			name: "streaming",
			dev: devices.Device{IP: "192.168.1.255", TotalPackets: 50, Ports: []int{7000},
				SizeSamples: map[int][]int{7000: {1400, 1200}}},
			want: []string{"AirPlay", "Broadcast address", "Large packets (avg 1300 bytes)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Hints(tt.dev)
			if len(got) != len(tt.want) {
				t.Fatalf("Hints() = %q, want %d hints", got, len(tt.want))
			}
			for i, w := range tt.want {
				if !strings.Contains(got[i], w) {
					t.Errorf("hint %d = %q, want it to contain %q", i, got[i], w)
				}
			}
		})
	}
}

func TestGenerateSessionReport(t *testing.T) {
	dir := t.TempDir()
	alerts := []analysis.Alert{{
		Type:      analysis.AnomalyUnsecure,
		Source:    "192.168.1.10",
		Message:   "Telnet <plaintext>",
		Timestamp: t0,
	}}

	filename, err := GenerateSessionReport(testSnapshot(), alerts, []devices.Device{castDevice()}, dir)
	if err != nil {
		t.Fatalf("Failed to generate report: %v", err)
	}
	if filepath.Dir(filename) != dir {
		t.Errorf("report written to %s, want dir %s", filename, dir)
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Failed to read report file: %v", err)
	}
	html := string(content)

	for _, want := range []string{
		"netsniff Session Report",
		"<td>192.168.1.40</td>",
		"<td>Chromecast</td>",
		"<td>90.0%</td>",
		"<td>8009, 5353</td>",
		"<td>192.168.1.10</td>",
		"62.5 KB",
		"Telnet &lt;plaintext&gt;",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestGenerateSessionReportEmpty(t *testing.T) {
	filename, err := GenerateSessionReport(analysis.StatsSnapshot{}, nil, nil, t.TempDir())
	if err != nil {
		t.Fatalf("Failed to generate report: %v", err)
	}
	content, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Failed to read report file: %v", err)
	}
	if !strings.Contains(string(content), "No alerts triggered during this session.") {
		t.Error("Report missing empty alert row")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:           "0 B",
		1023:        "1023 B",
		1024:        "1.0 KB",
		1536:        "1.5 KB",
		5 * 1 << 20: "5.0 MB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
