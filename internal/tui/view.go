package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	alertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

func (m AnalysisModel) View() string {
	headerText := fmt.Sprintf("netsniff - Monitoring: %s", m.interfaceName)
	if m.filter != "" && m.filter != "none" {
		headerText += fmt.Sprintf(" [Filter: %s]", m.filter)
	}
	title := titleStyle.Render(headerText)

	qos := fmt.Sprintf("Bandwidth: %s\nPacket Rate: %.2f PPS\nTotal: %s\nDevices: %d",
		formatBps(m.bps), m.pps, formatBytes(m.totalBytes), m.deviceN)
	qosBox := infoStyle.Render(qos)

	var protoStrs []string
	for _, p := range m.protocols[:min(5, len(m.protocols))] {
		protoStrs = append(protoStrs, fmt.Sprintf("%s: %d", p.Protocol, p.Count))
	}
	if len(protoStrs) == 0 {
		protoStrs = append(protoStrs, "Waiting for data...")
	}
	protoBox := infoStyle.Render("Protocols:\n" + strings.Join(protoStrs, "\n"))

	alertStrs := []string{"No alerts"}
	if len(m.alerts) > 0 {
		alertStrs = alertStrs[:0]
		for _, a := range m.alerts {
			alertStrs = append(alertStrs, alertStyle.Render(fmt.Sprintf("%s %s: %s", a.Timestamp.Format("15:04:05"), a.Type, a.Message)))
		}
	}
	alertBox := infoStyle.Render("Alerts:\n" + strings.Join(alertStrs, "\n"))

	ttBox := infoStyle.Render("Top Talkers\n" + m.talkers.View())
	devBox := infoStyle.Render("Devices\n" + m.devices.View())

	row1 := lipgloss.JoinHorizontal(lipgloss.Top, qosBox, protoBox, alertBox)
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, ttBox, devBox)
	body := lipgloss.JoinVertical(lipgloss.Left, title, row1, row2)

	return body + "\nPress q to quit."
}

func formatBps(bps float64) string {
	if bps >= 1e6 {
		return fmt.Sprintf("%.2f Mbps", bps/1e6)
	}
	if bps >= 1e3 {
		return fmt.Sprintf("%.2f Kbps", bps/1e3)
	}
	return fmt.Sprintf("%.2f bps", bps)
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
