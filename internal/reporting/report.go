package reporting

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"netsniff/internal/analysis"
	"netsniff/internal/devices"
)

// GenerateSessionReport writes an HTML report of the session to dir and
// returns the file name.
func GenerateSessionReport(snap analysis.StatsSnapshot, alerts []analysis.Alert, devs []devices.Device, dir string) (string, error) {
	now := time.Now()
	timestamp := now.Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("report_%s.html", timestamp))

	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>netsniff Session Report - %s</title>
    <style>
        body { font-family: sans-serif; margin: 20px; color: #333; }
        h1, h2 { color: #2c3e50; }
        table { width: 100%%; border-collapse: collapse; margin-bottom: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f2f2f2; }
        tr:nth-child(even) { background-color: #f9f9f9; }
        .summary { background: #eef; padding: 15px; border-radius: 5px; margin-bottom: 20px; }
        .alert { color: #d9534f; font-weight: bold; }
    </style>
</head>
<body>
    <h1>netsniff Session Report</h1>
    <div class="summary">
        <p><strong>Date:</strong> %s</p>
        <p><strong>Capture Duration:</strong> %.0f seconds</p>
        <p><strong>Total Packets:</strong> %d (%.2f/s)</p>
        <p><strong>Total Data Transferred:</strong> %s</p>
        <p><strong>Devices Tracked:</strong> %d</p>
    </div>
`, timestamp, now.Format(time.RFC1123), snap.Duration.Seconds(), snap.TotalPackets,
		snap.PacketsPerSecond(), formatBytes(snap.TotalBytes), len(devs))

	writeTable(&b, "Devices",
		[]string{"IP Address", "MAC", "Type", "Confidence", "Method", "Packets", "Top Ports", "Last Seen"},
		"No devices tracked.", len(devs), func(i int) []string {
			d := devs[i]
			typ, conf, method := "Not yet identified", "", ""
			if c := d.Classification; c != nil {
				typ, conf, method = c.DeviceType, fmt.Sprintf("%.1f%%", c.Confidence*100), c.MethodString()
			}
			return []string{d.IP, d.MAC, typ, conf, method, fmt.Sprint(d.TotalPackets),
				joinInts(d.TopPorts(summaryPorts)), d.LastSeen.Format("15:04:05")}
		})

	writeTable(&b, "Protocols", []string{"Protocol", "Packets"},
		"No packets captured.", len(snap.Protocols), func(i int) []string {
			p := snap.Protocols[i]
			return []string{p.Protocol, fmt.Sprint(p.Count)}
		})

	talkers := snap.Addresses[:min(topAddresses, len(snap.Addresses))]
	writeTable(&b, "Top 10 Talkers", []string{"IP Address", "Packets", "Data Transferred"},
		"No traffic.", len(talkers), func(i int) []string {
			t := talkers[i]
			return []string{t.IP, fmt.Sprint(t.Packets), formatBytes(t.Bytes)}
		})

	writeTable(&b, "Security Alerts", []string{"Time", "Type", "Source", "Message"},
		"No alerts triggered during this session.", len(alerts), func(i int) []string {
			a := alerts[i]
			return []string{a.Timestamp.Format("15:04:05"), string(a.Type), a.Source, a.Message}
		})

	b.WriteString("</body>\n</html>\n")

	if err := os.WriteFile(filename, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return filename, nil
}

func writeTable(b *strings.Builder, title string, headers []string, empty string, n int, row func(int) []string) {
	fmt.Fprintf(b, "\n    <h2>%s</h2>\n    <table>\n        <thead>\n            <tr>", html.EscapeString(title))
	for _, h := range headers {
		fmt.Fprintf(b, "<th>%s</th>", html.EscapeString(h))
	}
	b.WriteString("</tr>\n        </thead>\n        <tbody>\n")

	if n == 0 {
		fmt.Fprintf(b, "            <tr><td colspan=\"%d\">%s</td></tr>\n", len(headers), html.EscapeString(empty))
	}
	for i := range n {
		b.WriteString("            <tr>")
		for _, cell := range row(i) {
			fmt.Fprintf(b, "<td>%s</td>", html.EscapeString(cell))
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("        </tbody>\n    </table>\n")
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
