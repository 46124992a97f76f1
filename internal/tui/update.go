package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

func (m AnalysisModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case TickMsg:
		m.refresh()
		return m, tickCmd()
	}

	m.devices, cmd = m.devices.Update(msg)
	return m, cmd
}

func (m *AnalysisModel) refresh() {
	m.bps, m.pps = m.stats.GetRates()
	m.totalBytes = m.stats.GetTotalDataTransferred()
	m.topTalkers = m.stats.GetTopTalkers(10)
	m.protocols = m.stats.GetProtocolStats()
	m.alerts = m.stats.GetAlerts()

	rows := make([]table.Row, len(m.topTalkers))
	for i, stat := range m.topTalkers {
		rows[i] = table.Row{stat.IP, fmt.Sprintf("%d", stat.Packets), formatBytes(stat.Bytes)}
	}
	m.talkers.SetRows(rows)

	devs := m.devs.Devices()
	m.deviceN = len(devs)
	devRows := make([]table.Row, len(devs))
	for i, d := range devs {
		typ, conf, method := "-", "", ""
		if c := d.Classification; c != nil {
			typ, conf, method = c.DeviceType, fmt.Sprintf("%.0f%%", c.Confidence*100), c.MethodString()
		}
		ports := make([]string, 0, 5)
		for _, p := range d.TopPorts(5) {
			ports = append(ports, fmt.Sprint(p))
		}
		devRows[i] = table.Row{d.IP, d.MAC, typ, conf, method, fmt.Sprintf("%d", d.TotalPackets), strings.Join(ports, ",")}
	}
	m.devices.SetRows(devRows)
}
